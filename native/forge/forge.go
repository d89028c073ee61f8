package forge

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"forgechain/core/events"
	"forgechain/native/assets"
	"forgechain/native/common"
	"forgechain/native/droptable"
	"forgechain/native/oracle"
	"forgechain/native/referral"
	"forgechain/native/revenue"
)

var (
	errNilState     = errors.New("forge: state not configured")
	errNilOracle    = errors.New("forge: oracle not configured")
	errNilTree      = errors.New("forge: referral tree not configured")
	errNilKeys      = errors.New("forge: key collection not configured")
	errNilVault     = errors.New("forge: vault not configured")
	errUnauthorized = errors.New("forge: caller lacks admin role")
	errNotOwner     = errors.New("forge: caller does not own the instance")
	errWindowClosed = errors.New("forge: upgrade window has closed")
	errNoPrice      = errors.New("forge: type has no configured price")
	errTopTier      = errors.New("forge: type is already the highest tier")
	errAssetBarred  = errors.New("forge: payment asset not allowed")
	errNoDropTable  = errors.New("forge: type has no drop table")
	errShareRange   = errors.New("forge: burn share exceeds 100%")
	errDiscount     = errors.New("forge: discount exceeds 100%")
)

// State is the payment and pricing surface the forge needs. The forge keeps
// its own payment-asset allowlist, distinct from the vault's. Begin, Commit,
// and Rollback scope an upgrade as one unit of work over the backing state.
type State interface {
	Begin()
	Commit() error
	Rollback()
	Transfer(asset string, from, to [20]byte, amount *big.Int) error
	TransferFrom(asset string, owner, spender, to [20]byte, amount *big.Int) error
	BalanceOf(addr [20]byte, asset string) (*big.Int, error)
	Allowance(owner, spender [20]byte, asset string) (*big.Int, error)
	ForgePrice(typeID uint64) (*big.Int, error)
	SetForgePrice(typeID uint64, price *big.Int) error
	ForgeDiscount(asset string) (uint64, error)
	SetForgeDiscount(asset string, discount uint64) error
	ForgeAssetAllowed(asset string) (bool, error)
	SetForgeAssetAllowed(asset string, allowed bool) error
}

// VaultInfo is the slice of the vault the forge consults: the shared upgrade
// window and the fallback address for failed refunds.
type VaultInfo interface {
	UnlockTime() (int64, error)
	Address() [20]byte
}

// Forge probabilistically upgrades keys: the source key is burned, the
// type's drop table is rolled, and a higher-tier key is minted unless the
// roll lands in the residual bucket.
type Forge struct {
	state     State
	emitter   events.Emitter
	roles     *common.Roles
	oracle    *oracle.Adapter
	tree      *referral.Tree
	keys      *assets.Collection
	vault     VaultInfo
	entropy   droptable.Entropy
	module    [20]byte
	team      [20]byte
	burn      [20]byte
	burnShare uint64
	nowFn     func() int64
}

// New creates a forge engine with a no-op emitter. The burn share (the sink
// cap handed to the revenue distributor) defaults to 100%.
func New() *Forge {
	return &Forge{
		emitter:   events.NoopEmitter{},
		burnShare: common.PercentPrecision,
		nowFn:     func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (f *Forge) SetState(state State) { f.state = state }

// SetRoles configures the authorization registry.
func (f *Forge) SetRoles(roles *common.Roles) { f.roles = roles }

// SetOracle configures the price oracle adapter.
func (f *Forge) SetOracle(adapter *oracle.Adapter) { f.oracle = adapter }

// SetTree configures the referral tree used for payout chains.
func (f *Forge) SetTree(tree *referral.Tree) { f.tree = tree }

// SetCollection configures the key collection upgraded by the forge.
func (f *Forge) SetCollection(keys *assets.Collection) { f.keys = keys }

// SetVault configures the vault consulted for the upgrade window.
func (f *Forge) SetVault(vault VaultInfo) { f.vault = vault }

// SetEntropy configures the pseudo-random source for upgrade rolls.
func (f *Forge) SetEntropy(entropy droptable.Entropy) { f.entropy = entropy }

// SetModuleAddress configures the forge's own account, used to escrow native
// payments.
func (f *Forge) SetModuleAddress(addr [20]byte) { f.module = addr }

// ModuleAddress returns the forge's own account address.
func (f *Forge) ModuleAddress() [20]byte { return f.module }

// SetNowFunc overrides the time source. Primarily intended for tests.
func (f *Forge) SetNowFunc(now func() int64) {
	if now == nil {
		f.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	f.nowFn = now
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (f *Forge) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		f.emitter = events.NoopEmitter{}
		return
	}
	f.emitter = emitter
}

func (f *Forge) emit(evt events.Event) {
	if f == nil || f.emitter == nil {
		return
	}
	f.emitter.Emit(evt)
}

func (f *Forge) requireAdmin(caller [20]byte) error {
	if f.roles == nil || !f.roles.HasRole(common.RoleAdmin, caller) {
		return errUnauthorized
	}
	return nil
}

// SetPrice records the reference-unit upgrade price for a key type. Zero
// means not upgradable.
func (f *Forge) SetPrice(caller [20]byte, typeID uint64, price *big.Int) error {
	if f == nil || f.state == nil {
		return errNilState
	}
	if err := f.requireAdmin(caller); err != nil {
		return err
	}
	if price == nil {
		price = big.NewInt(0)
	}
	if err := f.state.SetForgePrice(typeID, price); err != nil {
		return err
	}
	f.emit(events.ForgePriceSet{TypeID: typeID, Price: price})
	return nil
}

// SetDiscount records the per-asset price discount.
func (f *Forge) SetDiscount(caller [20]byte, asset string, discount uint64) error {
	if f == nil || f.state == nil {
		return errNilState
	}
	if err := f.requireAdmin(caller); err != nil {
		return err
	}
	if discount > common.PercentPrecision {
		return errDiscount
	}
	if err := f.state.SetForgeDiscount(asset, discount); err != nil {
		return err
	}
	f.emit(events.ForgeDiscountSet{Asset: asset, Discount: discount})
	return nil
}

// AllowAsset adds a payment asset to the forge's own allowlist.
func (f *Forge) AllowAsset(caller [20]byte, asset string) error {
	if f == nil || f.state == nil {
		return errNilState
	}
	if err := f.requireAdmin(caller); err != nil {
		return err
	}
	if err := f.state.SetForgeAssetAllowed(asset, true); err != nil {
		return err
	}
	f.emit(events.ForgeAssetAllowed{Asset: asset})
	return nil
}

// DisallowAsset removes a payment asset from the forge's allowlist.
func (f *Forge) DisallowAsset(caller [20]byte, asset string) error {
	if f == nil || f.state == nil {
		return errNilState
	}
	if err := f.requireAdmin(caller); err != nil {
		return err
	}
	if err := f.state.SetForgeAssetAllowed(asset, false); err != nil {
		return err
	}
	f.emit(events.ForgeAssetDisallowed{Asset: asset})
	return nil
}

// SetAccounts configures the team account (above-cap remainder) and the burn
// account (the distribution sink).
func (f *Forge) SetAccounts(caller, team, burn [20]byte) error {
	if err := f.requireAdmin(caller); err != nil {
		return err
	}
	f.team = team
	f.burn = burn
	f.emit(events.ForgeAccountsUpdated{Team: team, Burn: burn})
	return nil
}

// SetBurnShare configures the sink cap percentage handed to the revenue
// distributor.
func (f *Forge) SetBurnShare(caller [20]byte, share uint64) error {
	if err := f.requireAdmin(caller); err != nil {
		return err
	}
	if share > common.PercentPrecision {
		return errShareRange
	}
	f.burnShare = share
	return nil
}

// UpgradeNative upgrades with the native coin, value carrying the attached
// amount.
func (f *Forge) UpgradeNative(caller [20]byte, instanceID uint64, value *big.Int) (uint64, error) {
	return f.Upgrade(caller, instanceID, common.NativeAsset, value)
}

// Upgrade burns the caller's key, rolls its type's drop table, and mints the
// resulting type when the roll lands above the residual bucket. Returns the
// new instance id, or zero when the key was burned without a mint. The
// whole upgrade is one unit of work: a failure after the payment fan-out or
// the source burn rolls everything back.
func (f *Forge) Upgrade(caller [20]byte, instanceID uint64, paymentAsset string, value *big.Int) (uint64, error) {
	if f == nil || f.state == nil {
		return 0, errNilState
	}
	f.state.Begin()
	minted, err := f.upgrade(caller, instanceID, paymentAsset, value)
	if err != nil {
		f.state.Rollback()
		return 0, err
	}
	if err := f.state.Commit(); err != nil {
		return 0, err
	}
	return minted, nil
}

func (f *Forge) upgrade(caller [20]byte, instanceID uint64, paymentAsset string, value *big.Int) (uint64, error) {
	if f.oracle == nil {
		return 0, errNilOracle
	}
	if f.tree == nil {
		return 0, errNilTree
	}
	if f.keys == nil {
		return 0, errNilKeys
	}
	if f.vault == nil {
		return 0, errNilVault
	}
	inst, err := f.keys.Instance(instanceID)
	if err != nil {
		return 0, err
	}
	if inst.Holder != caller {
		return 0, errNotOwner
	}
	unlock, err := f.vault.UnlockTime()
	if err != nil {
		return 0, err
	}
	if f.nowFn() >= unlock {
		return 0, errWindowClosed
	}
	refPrice, err := f.state.ForgePrice(inst.TypeID)
	if err != nil {
		return 0, err
	}
	if refPrice == nil || refPrice.Sign() == 0 {
		return 0, fmt.Errorf("%w: %d", errNoPrice, inst.TypeID)
	}
	maxType, err := f.keys.TypeSequence()
	if err != nil {
		return 0, err
	}
	if inst.TypeID >= maxType {
		return 0, fmt.Errorf("%w: %d", errTopTier, inst.TypeID)
	}
	allowed, err := f.state.ForgeAssetAllowed(paymentAsset)
	if err != nil {
		return 0, err
	}
	if !allowed {
		return 0, fmt.Errorf("%w: %s", errAssetBarred, paymentAsset)
	}
	typeRec, err := f.keys.Type(inst.TypeID)
	if err != nil {
		return 0, err
	}
	if len(typeRec.Drops) == 0 {
		return 0, fmt.Errorf("%w: %d", errNoDropTable, inst.TypeID)
	}
	price, err := f.oracle.Quote(refPrice, paymentAsset)
	if err != nil {
		return 0, err
	}
	discount, err := f.state.ForgeDiscount(paymentAsset)
	if err != nil {
		return 0, err
	}
	if discount > 0 {
		price = new(big.Int).Sub(price, common.PercentOf(price, discount))
	}
	chain, err := f.tree.Chain(caller)
	if err != nil {
		return 0, err
	}
	pay, err := f.collectPayment(caller, paymentAsset, price, value)
	if err != nil {
		return 0, err
	}
	breakdown, err := revenue.Distribute(price, chain, f.team, f.burn, f.burnShare, pay)
	if err != nil {
		return 0, err
	}
	f.emitBreakdown(caller, paymentAsset, breakdown)
	if paymentAsset == common.NativeAsset {
		f.refundExcess(caller, price, value)
	}
	if err := f.keys.Burn(caller, instanceID); err != nil {
		return 0, err
	}
	draw := droptable.DefaultDraw(f.entropy)
	outcome, err := typeRec.Drops.Resolve(draw)
	if err != nil {
		return 0, err
	}
	if outcome.None() {
		f.emit(events.BurnedOnly{Owner: caller, BurnedInstance: instanceID, FromType: inst.TypeID, Asset: paymentAsset, Price: price})
		return 0, nil
	}
	minted, err := f.keys.Mint(caller, outcome.ResultTypeID)
	if err != nil {
		return 0, err
	}
	f.emit(events.Upgraded{Owner: caller, BurnedInstance: instanceID, MintedInstance: minted, FromType: inst.TypeID, ToType: outcome.ResultTypeID, Asset: paymentAsset, Price: price})
	return minted, nil
}

func (f *Forge) collectPayment(payer [20]byte, asset string, price, value *big.Int) (revenue.PayFunc, error) {
	if asset == common.NativeAsset {
		received := big.NewInt(0)
		if value != nil {
			received = value
		}
		if received.Cmp(price) < 0 {
			return nil, &common.InsufficientValueError{Required: new(big.Int).Set(price), Received: new(big.Int).Set(received)}
		}
		if err := f.state.Transfer(asset, payer, f.module, received); err != nil {
			return nil, err
		}
		return func(to [20]byte, amount *big.Int) error {
			return f.state.Transfer(asset, f.module, to, amount)
		}, nil
	}
	balance, err := f.state.BalanceOf(payer, asset)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(price) < 0 {
		return nil, &common.InsufficientBalanceError{Asset: asset, Required: new(big.Int).Set(price), Actual: new(big.Int).Set(balance)}
	}
	allowance, err := f.state.Allowance(payer, f.module, asset)
	if err != nil {
		return nil, err
	}
	if allowance.Cmp(price) < 0 {
		return nil, &common.InsufficientAllowanceError{Asset: asset, Required: new(big.Int).Set(price), Actual: new(big.Int).Set(allowance)}
	}
	return func(to [20]byte, amount *big.Int) error {
		return f.state.TransferFrom(asset, payer, f.module, to, amount)
	}, nil
}

// refundExcess returns native overpayment to the payer, forwarding it to the
// vault when the refund itself fails. Both legs are best-effort.
func (f *Forge) refundExcess(payer [20]byte, price, value *big.Int) {
	if value == nil {
		return
	}
	excess := new(big.Int).Sub(value, price)
	if excess.Sign() <= 0 {
		return
	}
	if err := f.state.Transfer(common.NativeAsset, f.module, payer, excess); err != nil {
		_ = f.state.Transfer(common.NativeAsset, f.module, f.vault.Address(), excess)
	}
}

// ReceiveFallback forwards stray native value sent to the forge account on
// to the team account, swallowing a failed forward. Funds that fail to
// forward stay on the forge account with no accounting entry. TODO: confirm
// with stakeholders whether the swallowed failure should instead revert;
// the behaviour is kept as shipped.
func (f *Forge) ReceiveFallback(from [20]byte, amount *big.Int) {
	if f == nil || f.state == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	if err := f.state.Transfer(common.NativeAsset, from, f.module, amount); err != nil {
		return
	}
	_ = f.state.Transfer(common.NativeAsset, f.module, f.team, amount)
}

func (f *Forge) emitBreakdown(payer [20]byte, asset string, breakdown *revenue.Breakdown) {
	for i, leg := range breakdown.Referral {
		f.emit(events.ReferralReward{Payer: payer, Parent: leg.To, Level: breakdown.Levels[i], Asset: asset, Amount: leg.Amount})
	}
	if breakdown.Team != nil {
		f.emit(events.TeamReward{Payer: payer, Team: breakdown.Team.To, Asset: asset, Amount: breakdown.Team.Amount})
	}
	f.emit(events.SinkFunded{Payer: payer, Sink: breakdown.Sink.To, Asset: asset, Amount: breakdown.Sink.Amount})
}
