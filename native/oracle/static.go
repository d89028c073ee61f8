package oracle

import (
	"fmt"
	"math/big"
	"sync"
)

// StaticRouter quotes from a fixed rate table. It stands in for the external
// DEX in local deployments and tests; pairs without a configured rate fail
// like an illiquid pool so the adapter's fallback path is exercised.
type StaticRouter struct {
	mu    sync.RWMutex
	rates map[string]map[string]*big.Rat
}

// NewStaticRouter returns an empty rate table.
func NewStaticRouter() *StaticRouter {
	return &StaticRouter{rates: make(map[string]map[string]*big.Rat)}
}

// SetRate configures the spot rate from one asset to another.
func (r *StaticRouter) SetRate(from, to string, rate *big.Rat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rates[from] == nil {
		r.rates[from] = make(map[string]*big.Rat)
	}
	r.rates[from][to] = new(big.Rat).Set(rate)
}

// DropRate removes a configured pair, simulating drained liquidity.
func (r *StaticRouter) DropRate(from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pairs, ok := r.rates[from]; ok {
		delete(pairs, to)
	}
}

// AmountsOut implements Router by applying each hop's rate in sequence with
// truncating division.
func (r *StaticRouter) AmountsOut(amountIn *big.Int, path []string) ([]*big.Int, error) {
	if amountIn == nil || len(path) < 2 {
		return nil, fmt.Errorf("static router: invalid request")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	amounts := make([]*big.Int, 0, len(path))
	current := new(big.Int).Set(amountIn)
	amounts = append(amounts, new(big.Int).Set(current))
	for i := 0; i+1 < len(path); i++ {
		rate, ok := r.rates[path[i]][path[i+1]]
		if !ok {
			return nil, fmt.Errorf("static router: no liquidity for %s/%s", path[i], path[i+1])
		}
		next := new(big.Int).Mul(current, rate.Num())
		next.Div(next, rate.Denom())
		current = next
		amounts = append(amounts, new(big.Int).Set(current))
	}
	return amounts, nil
}
