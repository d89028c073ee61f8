package vault

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"forgechain/core/events"
	"forgechain/native/assets"
	"forgechain/native/common"
)

var (
	errNilState      = errors.New("vault: state not configured")
	errNilKeys       = errors.New("vault: key collection not configured")
	errUnauthorized  = errors.New("vault: caller lacks admin role")
	errNotOwner      = errors.New("vault: caller does not own the instance")
	errNotMaster     = errors.New("vault: instance is not of the master type")
	errOutsideWindow = errors.New("vault: outside the redemption window")
	errZeroSupply    = errors.New("vault: master type has no supply")
	errAssetLocked   = errors.New("vault: allowed asset locked until after the redeem deadline")
)

// State is the persistence surface the vault needs: balances for payouts and
// the vault's own configuration records.
type State interface {
	Begin()
	Commit() error
	Rollback()
	BalanceOf(addr [20]byte, asset string) (*big.Int, error)
	Transfer(asset string, from, to [20]byte, amount *big.Int) error
	VaultAllowedAssets() ([]string, error)
	VaultAssetAllowed(asset string) (bool, error)
	SetVaultAssetAllowed(asset string, allowed bool) error
	VaultMasterType() (uint64, error)
	SetVaultMasterType(typeID uint64) error
	VaultUnlockTime() (int64, error)
	SetVaultUnlockTime(ts int64) error
	VaultRedeemDeadline() (int64, error)
	SetVaultRedeemDeadline(ts int64) error
}

// Vault holds the treasury assets and pays out pro-rata redemptions against
// the master key type's supply. Shares are recomputed from the current
// supply on every call: the supply shrinks as instances are redeemed, so
// later redeemers within the same window receive larger per-instance slices.
// Two reference deployments agree on this; it is a deliberate choice, not a
// snapshot bug.
type Vault struct {
	state   State
	emitter events.Emitter
	roles   *common.Roles
	keys    *assets.Collection
	address [20]byte
	nowFn   func() int64
}

// New creates a vault engine with a no-op emitter.
func New() *Vault {
	return &Vault{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (v *Vault) SetState(state State) { v.state = state }

// SetRoles configures the authorization registry.
func (v *Vault) SetRoles(roles *common.Roles) { v.roles = roles }

// SetCollection configures the key collection whose master type weights
// shares.
func (v *Vault) SetCollection(keys *assets.Collection) { v.keys = keys }

// SetAddress configures the vault's own account holding the treasury.
func (v *Vault) SetAddress(addr [20]byte) { v.address = addr }

// Address returns the vault's treasury account.
func (v *Vault) Address() [20]byte { return v.address }

// SetNowFunc overrides the time source. Primarily intended for tests.
func (v *Vault) SetNowFunc(now func() int64) {
	if now == nil {
		v.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	v.nowFn = now
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (v *Vault) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		v.emitter = events.NoopEmitter{}
		return
	}
	v.emitter = emitter
}

func (v *Vault) emit(evt events.Event) {
	if v == nil || v.emitter == nil {
		return
	}
	v.emitter.Emit(evt)
}

func (v *Vault) requireAdmin(caller [20]byte) error {
	if v.roles == nil || !v.roles.HasRole(common.RoleAdmin, caller) {
		return errUnauthorized
	}
	return nil
}

// UnlockTime returns the configured unlock timestamp. The store and forge
// reuse it as their sale/upgrade window end.
func (v *Vault) UnlockTime() (int64, error) {
	if v == nil || v.state == nil {
		return 0, errNilState
	}
	return v.state.VaultUnlockTime()
}

// RedeemDeadline returns the end of the redemption window.
func (v *Vault) RedeemDeadline() (int64, error) {
	if v == nil || v.state == nil {
		return 0, errNilState
	}
	return v.state.VaultRedeemDeadline()
}

// AssetAllowed reports whether the asset is in the vault's allowed set.
func (v *Vault) AssetAllowed(asset string) (bool, error) {
	if v == nil || v.state == nil {
		return false, errNilState
	}
	return v.state.VaultAssetAllowed(asset)
}

// AllowedAssets returns the allowed set in deterministic order.
func (v *Vault) AllowedAssets() ([]string, error) {
	if v == nil || v.state == nil {
		return nil, errNilState
	}
	return v.state.VaultAllowedAssets()
}

// AllowAsset adds an asset to the allowed set.
func (v *Vault) AllowAsset(caller [20]byte, asset string) error {
	if v == nil || v.state == nil {
		return errNilState
	}
	if err := v.requireAdmin(caller); err != nil {
		return err
	}
	if err := v.state.SetVaultAssetAllowed(asset, true); err != nil {
		return err
	}
	v.emit(events.VaultAssetAllowed{Asset: asset})
	return nil
}

// DisallowAsset removes an asset from the allowed set.
func (v *Vault) DisallowAsset(caller [20]byte, asset string) error {
	if v == nil || v.state == nil {
		return errNilState
	}
	if err := v.requireAdmin(caller); err != nil {
		return err
	}
	if err := v.state.SetVaultAssetAllowed(asset, false); err != nil {
		return err
	}
	v.emit(events.VaultAssetDisallowed{Asset: asset})
	return nil
}

// SetMasterType designates the key type whose supply distribution weights
// holder shares.
func (v *Vault) SetMasterType(caller [20]byte, typeID uint64) error {
	if v == nil || v.state == nil {
		return errNilState
	}
	if err := v.requireAdmin(caller); err != nil {
		return err
	}
	if err := v.state.SetVaultMasterType(typeID); err != nil {
		return err
	}
	return v.emitSettings()
}

// SetSchedule configures the unlock timestamp and the redemption deadline.
func (v *Vault) SetSchedule(caller [20]byte, unlock, deadline int64) error {
	if v == nil || v.state == nil {
		return errNilState
	}
	if err := v.requireAdmin(caller); err != nil {
		return err
	}
	if err := v.state.SetVaultUnlockTime(unlock); err != nil {
		return err
	}
	if err := v.state.SetVaultRedeemDeadline(deadline); err != nil {
		return err
	}
	return v.emitSettings()
}

func (v *Vault) emitSettings() error {
	master, err := v.state.VaultMasterType()
	if err != nil {
		return err
	}
	unlock, err := v.state.VaultUnlockTime()
	if err != nil {
		return err
	}
	deadline, err := v.state.VaultRedeemDeadline()
	if err != nil {
		return err
	}
	v.emit(events.VaultSettingsUpdated{MasterType: master, Unlock: unlock, Deadline: deadline})
	return nil
}

// HolderShare returns the holder's proportional share of the master type's
// supply, scaled by the percentage precision. Zero when the supply is zero.
func (v *Vault) HolderShare(holder [20]byte) (uint64, error) {
	if v == nil || v.state == nil {
		return 0, errNilState
	}
	if v.keys == nil {
		return 0, errNilKeys
	}
	master, err := v.state.VaultMasterType()
	if err != nil {
		return 0, err
	}
	total, err := v.keys.TypeSupply(master)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	held, err := v.keys.HolderCount(holder, master)
	if err != nil {
		return 0, err
	}
	return held * common.PercentPrecision / total, nil
}

// Redeem pays the caller one instance's slice of every allowed asset and
// burns the redeemed master-type instance. The slice is
// balance/currentSupply per asset, truncated, with dust left in the vault.
// The payouts and the burn land as one unit of work.
func (v *Vault) Redeem(caller [20]byte, instanceID uint64) (map[string]*big.Int, error) {
	if v == nil || v.state == nil {
		return nil, errNilState
	}
	v.state.Begin()
	payouts, err := v.redeem(caller, instanceID)
	if err != nil {
		v.state.Rollback()
		return nil, err
	}
	if err := v.state.Commit(); err != nil {
		return nil, err
	}
	return payouts, nil
}

func (v *Vault) redeem(caller [20]byte, instanceID uint64) (map[string]*big.Int, error) {
	if v.keys == nil {
		return nil, errNilKeys
	}
	inst, err := v.keys.Instance(instanceID)
	if err != nil {
		return nil, err
	}
	if inst.Holder != caller {
		return nil, errNotOwner
	}
	master, err := v.state.VaultMasterType()
	if err != nil {
		return nil, err
	}
	if inst.TypeID != master {
		return nil, errNotMaster
	}
	unlock, err := v.state.VaultUnlockTime()
	if err != nil {
		return nil, err
	}
	deadline, err := v.state.VaultRedeemDeadline()
	if err != nil {
		return nil, err
	}
	now := v.nowFn()
	if now < unlock || now > deadline {
		return nil, errOutsideWindow
	}
	total, err := v.keys.TypeSupply(master)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, errZeroSupply
	}
	allowed, err := v.state.VaultAllowedAssets()
	if err != nil {
		return nil, err
	}
	payouts := make(map[string]*big.Int, len(allowed))
	divisor := new(big.Int).SetUint64(total)
	for _, asset := range allowed {
		balance, err := v.state.BalanceOf(v.address, asset)
		if err != nil {
			return nil, err
		}
		slice := new(big.Int).Div(balance, divisor)
		if slice.Sign() > 0 {
			if err := v.state.Transfer(asset, v.address, caller, slice); err != nil {
				return nil, fmt.Errorf("vault: payout %s: %w", asset, err)
			}
		}
		payouts[asset] = slice
	}
	if err := v.keys.Burn(caller, instanceID); err != nil {
		return nil, err
	}
	v.emit(events.VaultRedeemed{Holder: caller, InstanceID: instanceID, SupplyAtRed: total, Payouts: payouts})
	return payouts, nil
}

// Withdraw moves treasury funds out of the vault. Allowed assets stay locked
// until after the redeem deadline; anything else can leave at any time.
func (v *Vault) Withdraw(caller [20]byte, asset string, to [20]byte, amount *big.Int) error {
	if v == nil || v.state == nil {
		return errNilState
	}
	if err := v.requireAdmin(caller); err != nil {
		return err
	}
	allowed, err := v.state.VaultAssetAllowed(asset)
	if err != nil {
		return err
	}
	if allowed {
		deadline, err := v.state.VaultRedeemDeadline()
		if err != nil {
			return err
		}
		if v.nowFn() <= deadline {
			return errAssetLocked
		}
	}
	if err := v.state.Transfer(asset, v.address, to, amount); err != nil {
		return err
	}
	v.emit(events.VaultWithdrawn{Asset: asset, To: to, Amount: amount})
	return nil
}
