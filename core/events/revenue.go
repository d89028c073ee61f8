package events

import (
	"math/big"

	"forgechain/core/types"
)

const (
	TypeReferralReward = "revenue.referral.reward"
	TypeTeamReward     = "revenue.team.reward"
	TypeSinkFunded     = "revenue.sink.funded"
)

type ReferralReward struct {
	Payer  [20]byte
	Parent [20]byte
	Level  int
	Asset  string
	Amount *big.Int
}

func (ReferralReward) EventType() string { return TypeReferralReward }

func (e ReferralReward) Event() *types.Event {
	return &types.Event{
		Type: TypeReferralReward,
		Attributes: map[string]string{
			"payer":  formatAddr(e.Payer),
			"parent": formatAddr(e.Parent),
			"level":  intToString(int64(e.Level)),
			"asset":  e.Asset,
			"amount": formatAmount(e.Amount),
		},
	}
}

type TeamReward struct {
	Payer  [20]byte
	Team   [20]byte
	Asset  string
	Amount *big.Int
}

func (TeamReward) EventType() string { return TypeTeamReward }

func (e TeamReward) Event() *types.Event {
	return &types.Event{
		Type: TypeTeamReward,
		Attributes: map[string]string{
			"payer":  formatAddr(e.Payer),
			"team":   formatAddr(e.Team),
			"asset":  e.Asset,
			"amount": formatAmount(e.Amount),
		},
	}
}

type SinkFunded struct {
	Payer  [20]byte
	Sink   [20]byte
	Asset  string
	Amount *big.Int
}

func (SinkFunded) EventType() string { return TypeSinkFunded }

func (e SinkFunded) Event() *types.Event {
	return &types.Event{
		Type: TypeSinkFunded,
		Attributes: map[string]string{
			"payer":  formatAddr(e.Payer),
			"sink":   formatAddr(e.Sink),
			"asset":  e.Asset,
			"amount": formatAmount(e.Amount),
		},
	}
}
