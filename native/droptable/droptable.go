package droptable

import (
	"encoding/binary"
	"errors"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"forgechain/native/common"
)

var errEmptyTable = errors.New("droptable: table has no entries")

// Entry pairs a result type with its configured weight. Weights are scaled
// against common.PercentPrecision.
type Entry struct {
	ResultTypeID uint64 `json:"resultTypeId"`
	Weight       uint64 `json:"weight"`
}

// Table is an ordered weighted outcome list. Index 0 is the residual bucket:
// its weight is never read during resolution, and weights above index 0 are
// not required to sum to the precision constant.
type Table []Entry

// Outcome reports the resolved entry for a draw. Index 0 means "no special
// outcome"; callers treat it as no-mint.
type Outcome struct {
	Index        int
	ResultTypeID uint64
}

// None reports whether the outcome is the index-0 residual bucket.
func (o Outcome) None() bool { return o.Index == 0 }

// Resolve maps a draw in [0, PercentPrecision) onto an outcome. The walk
// runs from the highest index down to index 1, accumulating weights; the
// first index whose cumulative weight reaches the draw wins, and index 0
// catches everything else. The walk order is load-bearing.
func (t Table) Resolve(draw uint64) (Outcome, error) {
	if len(t) == 0 {
		return Outcome{}, errEmptyTable
	}
	cumulative := uint64(0)
	for i := len(t) - 1; i >= 1; i-- {
		cumulative += t[i].Weight
		if cumulative >= draw {
			return Outcome{Index: i, ResultTypeID: t[i].ResultTypeID}, nil
		}
	}
	return Outcome{Index: 0, ResultTypeID: t[0].ResultTypeID}, nil
}

// Entropy produces pseudo-random draws in [0, max). Implementations are not
// expected to be cryptographically secure; outcomes gate cosmetic and
// economic tiers only.
type Entropy interface {
	Draw(max uint64) uint64
}

// HashEntropy derives draws from a keccak hash over a seed, the current unix
// timestamp, and a monotonically incrementing counter.
type HashEntropy struct {
	mu      sync.Mutex
	seed    []byte
	counter uint64
	nowFn   func() int64
}

// NewHashEntropy builds an entropy source keyed by the supplied seed bytes
// (typically recent block entropy).
func NewHashEntropy(seed []byte) *HashEntropy {
	stored := make([]byte, len(seed))
	copy(stored, seed)
	return &HashEntropy{seed: stored, nowFn: func() int64 { return time.Now().Unix() }}
}

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (h *HashEntropy) SetNowFunc(now func() int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if now == nil {
		h.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	h.nowFn = now
}

// SetSeed replaces the seed bytes, e.g. when fresh block entropy arrives.
func (h *HashEntropy) SetSeed(seed []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seed = make([]byte, len(seed))
	copy(h.seed, seed)
}

// Draw returns a pseudo-random value in [0, max).
func (h *HashEntropy) Draw(max uint64) uint64 {
	if max == 0 {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.counter++
	buf := make([]byte, 0, len(h.seed)+16)
	buf = append(buf, h.seed...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(h.nowFn()))
	buf = binary.BigEndian.AppendUint64(buf, h.counter)
	digest := ethcrypto.Keccak256(buf)
	return binary.BigEndian.Uint64(digest[:8]) % max
}

// FixedEntropy replays a scripted sequence of draws. Intended for tests.
type FixedEntropy struct {
	mu    sync.Mutex
	draws []uint64
	pos   int
}

// NewFixedEntropy builds an entropy source that yields the supplied draws in
// order, repeating the final value once exhausted.
func NewFixedEntropy(draws ...uint64) *FixedEntropy {
	return &FixedEntropy{draws: append([]uint64{}, draws...)}
}

// Draw returns the next scripted value reduced mod max.
func (f *FixedEntropy) Draw(max uint64) uint64 {
	if max == 0 {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.draws) == 0 {
		return 0
	}
	idx := f.pos
	if idx >= len(f.draws) {
		idx = len(f.draws) - 1
	} else {
		f.pos++
	}
	return f.draws[idx] % max
}

// DefaultDraw is a convenience helper drawing against the percentage
// precision constant.
func DefaultDraw(e Entropy) uint64 {
	if e == nil {
		return 0
	}
	return e.Draw(common.PercentPrecision)
}
