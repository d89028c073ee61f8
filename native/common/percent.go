package common

import "math/big"

// PercentPrecision is the fixed-point scale factor representing 100%. All
// configured shares, discounts, and referral level weights are expressed
// against this denominator.
const PercentPrecision uint64 = 1_000_000

// NativeAsset is the sentinel symbol for the chain's native coin. It shares
// the balance map with fungible token assets.
const NativeAsset = "NATIVE"

// PercentOf returns amount * percent / PercentPrecision with truncating
// division. Multiply-then-divide only; the truncation order is load-bearing
// for revenue accounting.
func PercentOf(amount *big.Int, percent uint64) *big.Int {
	if amount == nil || amount.Sign() == 0 || percent == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(percent))
	return out.Div(out, new(big.Int).SetUint64(PercentPrecision))
}
