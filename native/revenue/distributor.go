package revenue

import (
	"errors"
	"fmt"
	"math/big"

	"forgechain/native/common"
	"forgechain/native/referral"
)

var (
	errNilAmount  = errors.New("revenue: amount must be positive")
	errNilPayFunc = errors.New("revenue: pay function not configured")
	errCapRange   = errors.New("revenue: sink cap exceeds 100%")
)

var zeroAddr [20]byte

// PayFunc executes one payment leg. The caller supplies it so the same
// allocation logic serves both pull-from-buyer token flows and
// pay-from-collected-value native flows. Any error aborts the distribution.
type PayFunc func(to [20]byte, amount *big.Int) error

// Leg records one executed payment.
type Leg struct {
	To     [20]byte
	Amount *big.Int
}

// Breakdown summarises every leg of a distribution for event emission and
// auditing.
type Breakdown struct {
	Referral []Leg // indexed by chain level, zero-amount legs omitted
	Levels   []int // chain level of each referral leg
	Team     *Leg
	Sink     Leg
}

// Distribute fans totalAmount out across the referral chain, the team
// account, and the sink account.
//
// The chain is walked in order and stops at the first zero-address entry;
// each paid level's weight is subtracted from the remaining percentage. If
// the remainder exceeds sinkCap, the excess goes to the team and the
// remainder is clamped to sinkCap. The sink is paid last from the leftover
// percentage rather than as an independent percentage-of-total, so all
// truncation dust concentrates in the sink leg. That ordering is
// load-bearing and must not be "corrected".
func Distribute(totalAmount *big.Int, chain []referral.Entry, teamAccount, sinkAccount [20]byte, sinkCap uint64, pay PayFunc) (*Breakdown, error) {
	if totalAmount == nil || totalAmount.Sign() <= 0 {
		return nil, errNilAmount
	}
	if pay == nil {
		return nil, errNilPayFunc
	}
	if sinkCap > common.PercentPrecision {
		return nil, errCapRange
	}
	breakdown := &Breakdown{}
	remaining := common.PercentPrecision
	for level, entry := range chain {
		if entry.Parent == zeroAddr {
			break
		}
		amount := common.PercentOf(totalAmount, entry.Weight)
		if err := pay(entry.Parent, amount); err != nil {
			return nil, fmt.Errorf("revenue: referral leg %d: %w", level, err)
		}
		breakdown.Referral = append(breakdown.Referral, Leg{To: entry.Parent, Amount: amount})
		breakdown.Levels = append(breakdown.Levels, level)
		remaining -= entry.Weight
	}
	if remaining > sinkCap {
		amount := common.PercentOf(totalAmount, remaining-sinkCap)
		if err := pay(teamAccount, amount); err != nil {
			return nil, fmt.Errorf("revenue: team leg: %w", err)
		}
		breakdown.Team = &Leg{To: teamAccount, Amount: amount}
		remaining = sinkCap
	}
	amount := common.PercentOf(totalAmount, remaining)
	if err := pay(sinkAccount, amount); err != nil {
		return nil, fmt.Errorf("revenue: sink leg: %w", err)
	}
	breakdown.Sink = Leg{To: sinkAccount, Amount: amount}
	return breakdown, nil
}
