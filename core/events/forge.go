package events

import (
	"math/big"

	"forgechain/core/types"
)

const (
	TypeForgeUpgraded       = "forge.upgraded"
	TypeForgeBurned         = "forge.burned"
	TypeForgePriceSet       = "forge.price.set"
	TypeForgeDiscountSet    = "forge.discount.set"
	TypeForgeAssetAllowed   = "forge.asset.allowed"
	TypeForgeAssetForbidden = "forge.asset.disallowed"
	TypeForgeAccountsSet    = "forge.accounts.updated"
)

type Upgraded struct {
	Owner          [20]byte
	BurnedInstance uint64
	MintedInstance uint64
	FromType       uint64
	ToType         uint64
	Asset          string
	Price          *big.Int
}

func (Upgraded) EventType() string { return TypeForgeUpgraded }

func (e Upgraded) Event() *types.Event {
	return &types.Event{
		Type: TypeForgeUpgraded,
		Attributes: map[string]string{
			"owner":          formatAddr(e.Owner),
			"burnedInstance": uintToString(e.BurnedInstance),
			"mintedInstance": uintToString(e.MintedInstance),
			"fromType":       uintToString(e.FromType),
			"toType":         uintToString(e.ToType),
			"asset":          e.Asset,
			"price":          formatAmount(e.Price),
		},
	}
}

type BurnedOnly struct {
	Owner          [20]byte
	BurnedInstance uint64
	FromType       uint64
	Asset          string
	Price          *big.Int
}

func (BurnedOnly) EventType() string { return TypeForgeBurned }

func (e BurnedOnly) Event() *types.Event {
	return &types.Event{
		Type: TypeForgeBurned,
		Attributes: map[string]string{
			"owner":          formatAddr(e.Owner),
			"burnedInstance": uintToString(e.BurnedInstance),
			"fromType":       uintToString(e.FromType),
			"asset":          e.Asset,
			"price":          formatAmount(e.Price),
		},
	}
}

type ForgePriceSet struct {
	TypeID uint64
	Price  *big.Int
}

func (ForgePriceSet) EventType() string { return TypeForgePriceSet }

func (e ForgePriceSet) Event() *types.Event {
	return &types.Event{
		Type: TypeForgePriceSet,
		Attributes: map[string]string{
			"typeId": uintToString(e.TypeID),
			"price":  formatAmount(e.Price),
		},
	}
}

type ForgeDiscountSet struct {
	Asset    string
	Discount uint64
}

func (ForgeDiscountSet) EventType() string { return TypeForgeDiscountSet }

func (e ForgeDiscountSet) Event() *types.Event {
	return &types.Event{
		Type: TypeForgeDiscountSet,
		Attributes: map[string]string{
			"asset":    e.Asset,
			"discount": uintToString(e.Discount),
		},
	}
}

type ForgeAssetAllowed struct {
	Asset string
}

func (ForgeAssetAllowed) EventType() string { return TypeForgeAssetAllowed }

func (e ForgeAssetAllowed) Event() *types.Event {
	return &types.Event{
		Type:       TypeForgeAssetAllowed,
		Attributes: map[string]string{"asset": e.Asset},
	}
}

type ForgeAssetDisallowed struct {
	Asset string
}

func (ForgeAssetDisallowed) EventType() string { return TypeForgeAssetForbidden }

func (e ForgeAssetDisallowed) Event() *types.Event {
	return &types.Event{
		Type:       TypeForgeAssetForbidden,
		Attributes: map[string]string{"asset": e.Asset},
	}
}

type ForgeAccountsUpdated struct {
	Team [20]byte
	Burn [20]byte
}

func (ForgeAccountsUpdated) EventType() string { return TypeForgeAccountsSet }

func (e ForgeAccountsUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeForgeAccountsSet,
		Attributes: map[string]string{
			"team": formatAddr(e.Team),
			"burn": formatAddr(e.Burn),
		},
	}
}
