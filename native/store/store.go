package store

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"forgechain/core/events"
	"forgechain/native/assets"
	"forgechain/native/common"
	"forgechain/native/oracle"
	"forgechain/native/referral"
	"forgechain/native/revenue"
)

var (
	errNilState     = errors.New("store: state not configured")
	errNilOracle    = errors.New("store: oracle not configured")
	errNilTree      = errors.New("store: referral tree not configured")
	errNilBoxes     = errors.New("store: lootbox collection not configured")
	errNilVault     = errors.New("store: vault not configured")
	errUnauthorized = errors.New("store: caller lacks admin role")
	errZeroCount    = errors.New("store: box count must be positive")
	errSaleClosed   = errors.New("store: sale window has closed")
	errUnknownType  = errors.New("store: type outside catalog range")
	errNoPrice      = errors.New("store: type has no configured price")
	errAssetBarred  = errors.New("store: payment asset not allowed")
	errShareRange   = errors.New("store: vault share exceeds 100%")
)

// State is the payment and pricing surface the store needs. Begin, Commit,
// and Rollback scope a sale as one unit of work over the backing state.
type State interface {
	Begin()
	Commit() error
	Rollback()
	Transfer(asset string, from, to [20]byte, amount *big.Int) error
	TransferFrom(asset string, owner, spender, to [20]byte, amount *big.Int) error
	BalanceOf(addr [20]byte, asset string) (*big.Int, error)
	Allowance(owner, spender [20]byte, asset string) (*big.Int, error)
	StorePrice(typeID uint64) (*big.Int, error)
	SetStorePrice(typeID uint64, price *big.Int) error
}

// VaultInfo is the slice of the vault the store consults: the sale schedule,
// the allowed payment assets, and the sink address.
type VaultInfo interface {
	UnlockTime() (int64, error)
	AssetAllowed(asset string) (bool, error)
	Address() [20]byte
}

// Store sells lootbox instances. Payments are quoted from reference-unit
// catalog prices into the chosen payment asset and fanned out across the
// buyer's referral chain, the team account, and the vault.
type Store struct {
	state      State
	emitter    events.Emitter
	roles      *common.Roles
	oracle     *oracle.Adapter
	tree       *referral.Tree
	boxes      *assets.Collection
	vault      VaultInfo
	module     [20]byte
	team       [20]byte
	vaultShare uint64
	nowFn      func() int64
}

// New creates a store engine with a no-op emitter. The vault share (the sink
// cap handed to the revenue distributor) defaults to 100%.
func New() *Store {
	return &Store{
		emitter:    events.NoopEmitter{},
		vaultShare: common.PercentPrecision,
		nowFn:      func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (s *Store) SetState(state State) { s.state = state }

// SetRoles configures the authorization registry.
func (s *Store) SetRoles(roles *common.Roles) { s.roles = roles }

// SetOracle configures the price oracle adapter.
func (s *Store) SetOracle(adapter *oracle.Adapter) { s.oracle = adapter }

// SetTree configures the referral tree used for chain lookups and linking.
func (s *Store) SetTree(tree *referral.Tree) { s.tree = tree }

// SetCollection configures the lootbox collection minted by sales.
func (s *Store) SetCollection(boxes *assets.Collection) { s.boxes = boxes }

// SetVault configures the vault consulted for schedule, allowlist, and sink.
func (s *Store) SetVault(vault VaultInfo) { s.vault = vault }

// SetModuleAddress configures the store's own account, used to escrow native
// payments and as the referral connector identity.
func (s *Store) SetModuleAddress(addr [20]byte) { s.module = addr }

// ModuleAddress returns the store's own account address.
func (s *Store) ModuleAddress() [20]byte { return s.module }

// SetNowFunc overrides the time source. Primarily intended for tests.
func (s *Store) SetNowFunc(now func() int64) {
	if now == nil {
		s.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	s.nowFn = now
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (s *Store) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		s.emitter = events.NoopEmitter{}
		return
	}
	s.emitter = emitter
}

func (s *Store) emit(evt events.Event) {
	if s == nil || s.emitter == nil {
		return
	}
	s.emitter.Emit(evt)
}

func (s *Store) requireAdmin(caller [20]byte) error {
	if s.roles == nil || !s.roles.HasRole(common.RoleAdmin, caller) {
		return errUnauthorized
	}
	return nil
}

// SetPrice records the reference-unit price for a lootbox type. Zero means
// not for sale.
func (s *Store) SetPrice(caller [20]byte, typeID uint64, price *big.Int) error {
	if s == nil || s.state == nil {
		return errNilState
	}
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	if price == nil {
		price = big.NewInt(0)
	}
	if err := s.state.SetStorePrice(typeID, price); err != nil {
		return err
	}
	s.emit(events.StorePriceSet{TypeID: typeID, Price: price})
	return nil
}

// Price returns the configured reference-unit price for a type.
func (s *Store) Price(typeID uint64) (*big.Int, error) {
	if s == nil || s.state == nil {
		return nil, errNilState
	}
	return s.state.StorePrice(typeID)
}

// SetTeamAccount configures the account receiving the above-cap remainder.
func (s *Store) SetTeamAccount(caller, team [20]byte) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	s.team = team
	s.emit(events.StoreAccountsUpdated{Team: team})
	return nil
}

// SetVaultShare configures the sink cap percentage handed to the revenue
// distributor.
func (s *Store) SetVaultShare(caller [20]byte, share uint64) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	if share > common.PercentPrecision {
		return errShareRange
	}
	s.vaultShare = share
	return nil
}

// Buy sells count lootboxes of typeID to buyer, paid in paymentAsset. For
// native payment, value carries the attached amount; for token payment it is
// ignored. referralParents optionally extends the buyer's referral chain
// before the payout chain is read. Returns the minted instance ids. The
// whole purchase is one unit of work: a failure after the payment fan-out
// rolls the transfers back, so the buyer is never charged without boxes.
func (s *Store) Buy(buyer [20]byte, typeID uint64, paymentAsset string, count uint64, referralParents [][20]byte, value *big.Int) ([]uint64, error) {
	if s == nil || s.state == nil {
		return nil, errNilState
	}
	s.state.Begin()
	instanceIDs, err := s.buy(buyer, typeID, paymentAsset, count, referralParents, value)
	if err != nil {
		s.state.Rollback()
		return nil, err
	}
	if err := s.state.Commit(); err != nil {
		return nil, err
	}
	return instanceIDs, nil
}

func (s *Store) buy(buyer [20]byte, typeID uint64, paymentAsset string, count uint64, referralParents [][20]byte, value *big.Int) ([]uint64, error) {
	if s.oracle == nil {
		return nil, errNilOracle
	}
	if s.tree == nil {
		return nil, errNilTree
	}
	if s.boxes == nil {
		return nil, errNilBoxes
	}
	if s.vault == nil {
		return nil, errNilVault
	}
	if count == 0 {
		return nil, errZeroCount
	}
	unlock, err := s.vault.UnlockTime()
	if err != nil {
		return nil, err
	}
	if s.nowFn() >= unlock {
		return nil, errSaleClosed
	}
	maxType, err := s.boxes.TypeSequence()
	if err != nil {
		return nil, err
	}
	if typeID == 0 || typeID > maxType {
		return nil, fmt.Errorf("%w: %d", errUnknownType, typeID)
	}
	refPrice, err := s.state.StorePrice(typeID)
	if err != nil {
		return nil, err
	}
	if refPrice == nil || refPrice.Sign() == 0 {
		return nil, fmt.Errorf("%w: %d", errNoPrice, typeID)
	}
	allowed, err := s.vault.AssetAllowed(paymentAsset)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, fmt.Errorf("%w: %s", errAssetBarred, paymentAsset)
	}
	if len(referralParents) > 0 {
		sequence := append([][20]byte{buyer}, referralParents...)
		if err := s.tree.LinkSequence(s.module, sequence); err != nil {
			return nil, err
		}
	}
	chain, err := s.tree.Chain(buyer)
	if err != nil {
		return nil, err
	}
	unit, err := s.oracle.Quote(refPrice, paymentAsset)
	if err != nil {
		return nil, err
	}
	total := new(big.Int).Mul(unit, new(big.Int).SetUint64(count))
	pay, err := s.collectPayment(buyer, paymentAsset, total, value)
	if err != nil {
		return nil, err
	}
	breakdown, err := revenue.Distribute(total, chain, s.team, s.vault.Address(), s.vaultShare, pay)
	if err != nil {
		return nil, err
	}
	s.emitBreakdown(buyer, paymentAsset, breakdown)
	if paymentAsset == common.NativeAsset {
		s.refundExcess(buyer, total, value)
	}
	instanceIDs := make([]uint64, 0, count)
	for i := uint64(0); i < count; i++ {
		id, err := s.boxes.Mint(buyer, typeID)
		if err != nil {
			return nil, err
		}
		instanceIDs = append(instanceIDs, id)
	}
	s.emit(events.SaleCompleted{Buyer: buyer, TypeID: typeID, Count: count, Asset: paymentAsset, Price: total, InstanceIDs: instanceIDs})
	return instanceIDs, nil
}

// collectPayment validates the buyer can cover total and returns the pay
// function used by the revenue distributor. Native value is escrowed into
// the store account first; token legs pull from the buyer with allowance
// accounting per transfer.
func (s *Store) collectPayment(buyer [20]byte, asset string, total, value *big.Int) (revenue.PayFunc, error) {
	if asset == common.NativeAsset {
		received := big.NewInt(0)
		if value != nil {
			received = value
		}
		if received.Cmp(total) < 0 {
			return nil, &common.InsufficientValueError{Required: new(big.Int).Set(total), Received: new(big.Int).Set(received)}
		}
		if err := s.state.Transfer(asset, buyer, s.module, received); err != nil {
			return nil, err
		}
		return func(to [20]byte, amount *big.Int) error {
			return s.state.Transfer(asset, s.module, to, amount)
		}, nil
	}
	balance, err := s.state.BalanceOf(buyer, asset)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(total) < 0 {
		return nil, &common.InsufficientBalanceError{Asset: asset, Required: new(big.Int).Set(total), Actual: new(big.Int).Set(balance)}
	}
	allowance, err := s.state.Allowance(buyer, s.module, asset)
	if err != nil {
		return nil, err
	}
	if allowance.Cmp(total) < 0 {
		return nil, &common.InsufficientAllowanceError{Asset: asset, Required: new(big.Int).Set(total), Actual: new(big.Int).Set(allowance)}
	}
	return func(to [20]byte, amount *big.Int) error {
		return s.state.TransferFrom(asset, buyer, s.module, to, amount)
	}, nil
}

// refundExcess returns native overpayment to the buyer, forwarding it to the
// vault when the refund itself fails. Both legs are best-effort.
func (s *Store) refundExcess(buyer [20]byte, total, value *big.Int) {
	if value == nil {
		return
	}
	excess := new(big.Int).Sub(value, total)
	if excess.Sign() <= 0 {
		return
	}
	if err := s.state.Transfer(common.NativeAsset, s.module, buyer, excess); err != nil {
		_ = s.state.Transfer(common.NativeAsset, s.module, s.vault.Address(), excess)
	}
}

func (s *Store) emitBreakdown(payer [20]byte, asset string, breakdown *revenue.Breakdown) {
	for i, leg := range breakdown.Referral {
		s.emit(events.ReferralReward{Payer: payer, Parent: leg.To, Level: breakdown.Levels[i], Asset: asset, Amount: leg.Amount})
	}
	if breakdown.Team != nil {
		s.emit(events.TeamReward{Payer: payer, Team: breakdown.Team.To, Asset: asset, Amount: breakdown.Team.Amount})
	}
	s.emit(events.SinkFunded{Payer: payer, Sink: breakdown.Sink.To, Asset: asset, Amount: breakdown.Sink.Amount})
}
