package oracle

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	errNilRouter    = errors.New("oracle: router not configured")
	errEmptyQuote   = errors.New("oracle: router returned no amounts")
	errZeroAmount   = errors.New("oracle: amount must be positive")
	errUnknownAsset = errors.New("oracle: empty asset identifier")
)

// Router abstracts the external DEX price source. AmountsOut quotes the
// output amount per hop for an ordered asset path and may fail when a pair
// has no liquidity; the adapter applies the documented fallback route.
type Router interface {
	AmountsOut(amountIn *big.Int, path []string) ([]*big.Int, error)
}

// Adapter quotes amounts between the reference unit and payment assets.
// Quotes are spot reads: callers must tolerate the router failing and must
// not assume two consecutive quotes agree.
type Adapter struct {
	router    Router
	reference string
	bridge    string
	dust      *big.Int
}

// NewAdapter builds an adapter that quotes from the reference asset, using
// the bridge asset for the fallback route. Amounts at or below dust are
// valued at zero without consulting the router; a nil dust disables the
// short-circuit.
func NewAdapter(router Router, referenceAsset, bridgeAsset string, dust *big.Int) *Adapter {
	threshold := big.NewInt(0)
	if dust != nil {
		threshold = new(big.Int).Set(dust)
	}
	return &Adapter{
		router:    router,
		reference: referenceAsset,
		bridge:    bridgeAsset,
		dust:      threshold,
	}
}

// ReferenceAsset returns the stable accounting asset identifier.
func (a *Adapter) ReferenceAsset() string { return a.reference }

// Quote converts an amount denominated in the reference unit into the target
// asset. The direct pair is tried first; on router failure the route through
// the bridge asset is used and its failure propagates.
func (a *Adapter) Quote(referenceAmount *big.Int, targetAsset string) (*big.Int, error) {
	if targetAsset == "" {
		return nil, errUnknownAsset
	}
	if referenceAmount == nil || referenceAmount.Sign() <= 0 {
		return nil, errZeroAmount
	}
	if targetAsset == a.reference {
		return new(big.Int).Set(referenceAmount), nil
	}
	if a.router == nil {
		return nil, errNilRouter
	}
	out, err := a.lastAmountOut(referenceAmount, []string{a.reference, targetAsset})
	if err == nil {
		return out, nil
	}
	out, err = a.lastAmountOut(referenceAmount, []string{a.reference, a.bridge, targetAsset})
	if err != nil {
		return nil, fmt.Errorf("oracle: quote %s via %s: %w", targetAsset, a.bridge, err)
	}
	return out, nil
}

// QuoteToReference values an amount of an arbitrary asset in the reference
// unit. Dust amounts short-circuit to zero without a router call.
func (a *Adapter) QuoteToReference(sourceAsset string, amount *big.Int) (*big.Int, error) {
	if sourceAsset == "" {
		return nil, errUnknownAsset
	}
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	if sourceAsset == a.reference {
		return new(big.Int).Set(amount), nil
	}
	if a.dust != nil && a.dust.Sign() > 0 && amount.Cmp(a.dust) <= 0 {
		return big.NewInt(0), nil
	}
	if a.router == nil {
		return nil, errNilRouter
	}
	out, err := a.lastAmountOut(amount, []string{sourceAsset, a.reference})
	if err == nil {
		return out, nil
	}
	out, err = a.lastAmountOut(amount, []string{sourceAsset, a.bridge, a.reference})
	if err != nil {
		return nil, fmt.Errorf("oracle: value %s via %s: %w", sourceAsset, a.bridge, err)
	}
	return out, nil
}

func (a *Adapter) lastAmountOut(amountIn *big.Int, path []string) (*big.Int, error) {
	amounts, err := a.router.AmountsOut(amountIn, path)
	if err != nil {
		return nil, err
	}
	if len(amounts) == 0 || amounts[len(amounts)-1] == nil {
		return nil, errEmptyQuote
	}
	return new(big.Int).Set(amounts[len(amounts)-1]), nil
}
