package events

import (
	"math/big"

	"forgechain/core/types"
)

const (
	TypeVaultAssetAllowed    = "vault.asset.allowed"
	TypeVaultAssetDisallowed = "vault.asset.disallowed"
	TypeVaultSettingsUpdated = "vault.settings.updated"
	TypeVaultRedeemed        = "vault.redeemed"
	TypeVaultWithdrawn       = "vault.withdrawn"
)

type VaultAssetAllowed struct {
	Asset string
}

func (VaultAssetAllowed) EventType() string { return TypeVaultAssetAllowed }

func (e VaultAssetAllowed) Event() *types.Event {
	return &types.Event{
		Type:       TypeVaultAssetAllowed,
		Attributes: map[string]string{"asset": e.Asset},
	}
}

type VaultAssetDisallowed struct {
	Asset string
}

func (VaultAssetDisallowed) EventType() string { return TypeVaultAssetDisallowed }

func (e VaultAssetDisallowed) Event() *types.Event {
	return &types.Event{
		Type:       TypeVaultAssetDisallowed,
		Attributes: map[string]string{"asset": e.Asset},
	}
}

type VaultSettingsUpdated struct {
	MasterType uint64
	Unlock     int64
	Deadline   int64
}

func (VaultSettingsUpdated) EventType() string { return TypeVaultSettingsUpdated }

func (e VaultSettingsUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultSettingsUpdated,
		Attributes: map[string]string{
			"masterType": uintToString(e.MasterType),
			"unlock":     intToString(e.Unlock),
			"deadline":   intToString(e.Deadline),
		},
	}
}

type VaultRedeemed struct {
	Holder      [20]byte
	InstanceID  uint64
	SupplyAtRed uint64
	Payouts     map[string]*big.Int
}

func (VaultRedeemed) EventType() string { return TypeVaultRedeemed }

func (e VaultRedeemed) Event() *types.Event {
	attrs := map[string]string{
		"holder":     formatAddr(e.Holder),
		"instanceId": uintToString(e.InstanceID),
		"supply":     uintToString(e.SupplyAtRed),
	}
	for asset, amount := range e.Payouts {
		attrs["payout:"+asset] = formatAmount(amount)
	}
	return &types.Event{Type: TypeVaultRedeemed, Attributes: attrs}
}

type VaultWithdrawn struct {
	Asset  string
	To     [20]byte
	Amount *big.Int
}

func (VaultWithdrawn) EventType() string { return TypeVaultWithdrawn }

func (e VaultWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultWithdrawn,
		Attributes: map[string]string{
			"asset":  e.Asset,
			"to":     formatAddr(e.To),
			"amount": formatAmount(e.Amount),
		},
	}
}
