package state

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"forgechain/core/types"
	"forgechain/native/assets"
	"forgechain/storage"
)

var (
	errNegativeAmount = errors.New("state: negative transfer amount")
	errInsufficient   = errors.New("state: insufficient balance")
	errAllowance      = errors.New("state: insufficient allowance")
)

const (
	prefixAccount   = "acct/"
	prefixAllowance = "allow/"
	prefixRefParent = "ref/parent/"
	prefixRefKids   = "ref/children/"
	keyRefLevels    = "ref/levels"
	prefixAsset     = "nft/"
	prefixStorePx   = "store/price/"
	prefixForgePx   = "forge/price/"
	prefixForgeDisc = "forge/discount/"
	prefixForgeAsst = "forge/allow/"
	keyVaultAllowed = "vault/allowed"
	keyVaultMaster  = "vault/master"
	keyVaultUnlock  = "vault/unlock"
	keyVaultDead    = "vault/deadline"
)

// Manager is the single persistence layer behind every economy engine. All
// records are JSON under prefixed keys in a storage.Database. Multi-step
// operations run as a unit of work: Begin takes a coarse operation mutex
// and routes every read and write through a staging overlay, then Commit
// lands the whole set on the backing database while Rollback discards it.
type Manager struct {
	mu      sync.Mutex
	db      storage.Database
	overlay atomic.Pointer[storage.Overlay]
}

// NewManager wraps a storage backend.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Begin opens a unit of work. Until the matching Commit or Rollback every
// Manager call reads and writes the staging overlay. Blocks while another
// unit is open; units do not nest.
func (m *Manager) Begin() {
	m.mu.Lock()
	m.overlay.Store(storage.NewOverlay(m.db))
}

// Commit lands the unit's staged writes on the backing database and
// releases the operation mutex. Must follow Begin.
func (m *Manager) Commit() error {
	defer m.mu.Unlock()
	overlay := m.overlay.Load()
	m.overlay.Store(nil)
	if overlay == nil {
		return nil
	}
	return overlay.Commit()
}

// Rollback discards the unit's staged writes and releases the operation
// mutex. Must follow Begin.
func (m *Manager) Rollback() {
	m.overlay.Store(nil)
	m.mu.Unlock()
}

func (m *Manager) backend() storage.Database {
	if overlay := m.overlay.Load(); overlay != nil {
		return overlay
	}
	return m.db
}

func addrKey(addr [20]byte) string {
	return hex.EncodeToString(addr[:])
}

func (m *Manager) getJSON(key string, out any) (bool, error) {
	raw, err := m.backend().Get([]byte(key))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %s: %w", key, err)
	}
	return true, nil
}

func (m *Manager) putJSON(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	return m.backend().Put([]byte(key), raw)
}

// --- Accounts and fungible balances ---

// Account loads the account record for an address, returning a fresh empty
// account when none is stored.
func (m *Manager) Account(addr [20]byte) (*types.Account, error) {
	account := types.NewAccount()
	if _, err := m.getJSON(prefixAccount+addrKey(addr), account); err != nil {
		return nil, err
	}
	if account.Balances == nil {
		account.Balances = make(map[string]*big.Int)
	}
	return account, nil
}

// PutAccount persists the account record.
func (m *Manager) PutAccount(addr [20]byte, account *types.Account) error {
	return m.putJSON(prefixAccount+addrKey(addr), account)
}

// BalanceOf returns the address's balance for the asset.
func (m *Manager) BalanceOf(addr [20]byte, asset string) (*big.Int, error) {
	account, err := m.Account(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(account.Balance(asset)), nil
}

// Credit adds funds to an account. Used by genesis wiring and deposits.
func (m *Manager) Credit(addr [20]byte, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errNegativeAmount
	}
	account, err := m.Account(addr)
	if err != nil {
		return err
	}
	account.SetBalance(asset, new(big.Int).Add(account.Balance(asset), amount))
	return m.PutAccount(addr, account)
}

// Transfer moves amount of asset between accounts. A zero amount is a no-op;
// a shortfall aborts with no partial write.
func (m *Manager) Transfer(asset string, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return errNegativeAmount
	}
	fromAccount, err := m.Account(from)
	if err != nil {
		return err
	}
	balance := fromAccount.Balance(asset)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s needs %s, has %s", errInsufficient, asset, amount, balance)
	}
	toAccount, err := m.Account(to)
	if err != nil {
		return err
	}
	fromAccount.SetBalance(asset, new(big.Int).Sub(balance, amount))
	if from == to {
		toAccount = fromAccount
	}
	toAccount.SetBalance(asset, new(big.Int).Add(toAccount.Balance(asset), amount))
	if err := m.PutAccount(from, fromAccount); err != nil {
		return err
	}
	return m.PutAccount(to, toAccount)
}

func allowanceKey(owner, spender [20]byte, asset string) string {
	return prefixAllowance + addrKey(owner) + "/" + addrKey(spender) + "/" + asset
}

// Allowance returns the amount spender may pull from owner for the asset.
func (m *Manager) Allowance(owner, spender [20]byte, asset string) (*big.Int, error) {
	var stored string
	ok, err := m.getJSON(allowanceKey(owner, spender, asset), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	value, good := new(big.Int).SetString(stored, 10)
	if !good {
		return nil, fmt.Errorf("state: corrupt allowance %q", stored)
	}
	return value, nil
}

// Approve sets the spender's allowance on owner's funds.
func (m *Manager) Approve(owner, spender [20]byte, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errNegativeAmount
	}
	return m.putJSON(allowanceKey(owner, spender, asset), amount.String())
}

// TransferFrom moves owner's funds on the strength of spender's allowance,
// consuming the allowance as it goes.
func (m *Manager) TransferFrom(asset string, owner, spender, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return errNegativeAmount
	}
	allowance, err := m.Allowance(owner, spender, asset)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s needs %s, approved %s", errAllowance, asset, amount, allowance)
	}
	if err := m.Transfer(asset, owner, to, amount); err != nil {
		return err
	}
	return m.Approve(owner, spender, asset, new(big.Int).Sub(allowance, amount))
}

// --- Referral tree ---

// ReferralParent returns the recorded referrer of child, if any.
func (m *Manager) ReferralParent(child [20]byte) ([20]byte, bool, error) {
	var stored string
	ok, err := m.getJSON(prefixRefParent+addrKey(child), &stored)
	if err != nil || !ok {
		return [20]byte{}, false, err
	}
	raw, err := hex.DecodeString(stored)
	if err != nil || len(raw) != 20 {
		return [20]byte{}, false, fmt.Errorf("state: corrupt parent record %q", stored)
	}
	var parent [20]byte
	copy(parent[:], raw)
	return parent, true, nil
}

// SetReferralParent records parent as child's referrer.
func (m *Manager) SetReferralParent(child, parent [20]byte) error {
	return m.putJSON(prefixRefParent+addrKey(child), addrKey(parent))
}

// ClearReferralParent removes child's referrer record.
func (m *Manager) ClearReferralParent(child [20]byte) error {
	return m.backend().Delete([]byte(prefixRefParent + addrKey(child)))
}

// ReferralChildren returns the direct referrals of parent in insertion
// order.
func (m *Manager) ReferralChildren(parent [20]byte) ([][20]byte, error) {
	var stored []string
	if _, err := m.getJSON(prefixRefKids+addrKey(parent), &stored); err != nil {
		return nil, err
	}
	children := make([][20]byte, 0, len(stored))
	for _, entry := range stored {
		raw, err := hex.DecodeString(entry)
		if err != nil || len(raw) != 20 {
			return nil, fmt.Errorf("state: corrupt child record %q", entry)
		}
		var child [20]byte
		copy(child[:], raw)
		children = append(children, child)
	}
	return children, nil
}

// AddReferralChild appends child to parent's child set if absent.
func (m *Manager) AddReferralChild(parent, child [20]byte) error {
	var stored []string
	if _, err := m.getJSON(prefixRefKids+addrKey(parent), &stored); err != nil {
		return err
	}
	entry := addrKey(child)
	for _, existing := range stored {
		if existing == entry {
			return nil
		}
	}
	return m.putJSON(prefixRefKids+addrKey(parent), append(stored, entry))
}

// RemoveReferralChild drops child from parent's child set.
func (m *Manager) RemoveReferralChild(parent, child [20]byte) error {
	var stored []string
	if _, err := m.getJSON(prefixRefKids+addrKey(parent), &stored); err != nil {
		return err
	}
	entry := addrKey(child)
	filtered := stored[:0]
	for _, existing := range stored {
		if existing != entry {
			filtered = append(filtered, existing)
		}
	}
	return m.putJSON(prefixRefKids+addrKey(parent), filtered)
}

// ReferralLevels returns the configured payout percentages.
func (m *Manager) ReferralLevels() ([]uint64, error) {
	var levels []uint64
	if _, err := m.getJSON(keyRefLevels, &levels); err != nil {
		return nil, err
	}
	return levels, nil
}

// SetReferralLevels replaces the payout percentage table.
func (m *Manager) SetReferralLevels(levels []uint64) error {
	return m.putJSON(keyRefLevels, levels)
}

// --- Typed asset collections ---

func typeKey(collection string, typeID uint64) string {
	return prefixAsset + collection + "/type/" + fmt.Sprintf("%020d", typeID)
}

func instanceKey(collection string, instanceID uint64) string {
	return prefixAsset + collection + "/inst/" + fmt.Sprintf("%020d", instanceID)
}

func holderCountKey(collection string, holder [20]byte, typeID uint64) string {
	return prefixAsset + collection + "/count/" + addrKey(holder) + "/" + strconv.FormatUint(typeID, 10)
}

func holderSetKey(collection string, holder [20]byte) string {
	return prefixAsset + collection + "/own/" + addrKey(holder)
}

// AssetType loads a type record.
func (m *Manager) AssetType(collection string, typeID uint64) (*assets.TypeRecord, bool, error) {
	rec := &assets.TypeRecord{}
	ok, err := m.getJSON(typeKey(collection, typeID), rec)
	if err != nil || !ok {
		return nil, false, err
	}
	return rec, true, nil
}

// PutAssetType persists a type record.
func (m *Manager) PutAssetType(collection string, rec *assets.TypeRecord) error {
	return m.putJSON(typeKey(collection, rec.ID), rec)
}

// DeleteAssetType removes a type record.
func (m *Manager) DeleteAssetType(collection string, typeID uint64) error {
	return m.backend().Delete([]byte(typeKey(collection, typeID)))
}

// AssetTypes lists every live type record of a collection in id order.
func (m *Manager) AssetTypes(collection string) ([]*assets.TypeRecord, error) {
	out := []*assets.TypeRecord{}
	prefix := prefixAsset + collection + "/type/"
	err := m.backend().IteratePrefix([]byte(prefix), func(_, value []byte) error {
		rec := &assets.TypeRecord{}
		if err := json.Unmarshal(value, rec); err != nil {
			return fmt.Errorf("state: decode type record: %w", err)
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

func (m *Manager) sequence(key string) (uint64, error) {
	var seq uint64
	if _, err := m.getJSON(key, &seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func (m *Manager) bumpSequence(key string) (uint64, error) {
	seq, err := m.sequence(key)
	if err != nil {
		return 0, err
	}
	seq++
	if err := m.putJSON(key, seq); err != nil {
		return 0, err
	}
	return seq, nil
}

// AssetTypeSequence returns the highest type id issued for a collection.
func (m *Manager) AssetTypeSequence(collection string) (uint64, error) {
	return m.sequence(prefixAsset + collection + "/typeseq")
}

// BumpAssetTypeSequence issues the next type id.
func (m *Manager) BumpAssetTypeSequence(collection string) (uint64, error) {
	return m.bumpSequence(prefixAsset + collection + "/typeseq")
}

// BumpInstanceSequence issues the next instance id.
func (m *Manager) BumpInstanceSequence(collection string) (uint64, error) {
	return m.bumpSequence(prefixAsset + collection + "/instseq")
}

// Instance loads an instance record.
func (m *Manager) Instance(collection string, instanceID uint64) (*assets.InstanceRecord, bool, error) {
	rec := &assets.InstanceRecord{}
	ok, err := m.getJSON(instanceKey(collection, instanceID), rec)
	if err != nil || !ok {
		return nil, false, err
	}
	return rec, true, nil
}

// PutInstance persists an instance record.
func (m *Manager) PutInstance(collection string, rec *assets.InstanceRecord) error {
	return m.putJSON(instanceKey(collection, rec.ID), rec)
}

// DeleteInstance removes an instance record.
func (m *Manager) DeleteInstance(collection string, instanceID uint64) error {
	return m.backend().Delete([]byte(instanceKey(collection, instanceID)))
}

// HolderTypeCount returns the holder's live instance count for a type.
func (m *Manager) HolderTypeCount(collection string, holder [20]byte, typeID uint64) (uint64, error) {
	var count uint64
	if _, err := m.getJSON(holderCountKey(collection, holder, typeID), &count); err != nil {
		return 0, err
	}
	return count, nil
}

// SetHolderTypeCount records the holder's instance count for a type.
func (m *Manager) SetHolderTypeCount(collection string, holder [20]byte, typeID uint64, count uint64) error {
	if count == 0 {
		return m.backend().Delete([]byte(holderCountKey(collection, holder, typeID)))
	}
	return m.putJSON(holderCountKey(collection, holder, typeID), count)
}

// AddHolderInstance appends the instance id to the holder's membership set.
func (m *Manager) AddHolderInstance(collection string, holder [20]byte, instanceID uint64) error {
	var stored []uint64
	if _, err := m.getJSON(holderSetKey(collection, holder), &stored); err != nil {
		return err
	}
	for _, existing := range stored {
		if existing == instanceID {
			return nil
		}
	}
	stored = append(stored, instanceID)
	sort.Slice(stored, func(i, j int) bool { return stored[i] < stored[j] })
	return m.putJSON(holderSetKey(collection, holder), stored)
}

// RemoveHolderInstance drops the instance id from the holder's membership
// set.
func (m *Manager) RemoveHolderInstance(collection string, holder [20]byte, instanceID uint64) error {
	var stored []uint64
	if _, err := m.getJSON(holderSetKey(collection, holder), &stored); err != nil {
		return err
	}
	filtered := stored[:0]
	for _, existing := range stored {
		if existing != instanceID {
			filtered = append(filtered, existing)
		}
	}
	return m.putJSON(holderSetKey(collection, holder), filtered)
}

// HolderInstances returns the instance ids the holder currently owns.
func (m *Manager) HolderInstances(collection string, holder [20]byte) ([]uint64, error) {
	var stored []uint64
	if _, err := m.getJSON(holderSetKey(collection, holder), &stored); err != nil {
		return nil, err
	}
	return stored, nil
}

// --- Store pricing ---

func (m *Manager) price(key string) (*big.Int, error) {
	var stored string
	ok, err := m.getJSON(key, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	value, good := new(big.Int).SetString(stored, 10)
	if !good {
		return nil, fmt.Errorf("state: corrupt price %q", stored)
	}
	return value, nil
}

// StorePrice returns the reference-unit sale price for a lootbox type.
func (m *Manager) StorePrice(typeID uint64) (*big.Int, error) {
	return m.price(prefixStorePx + strconv.FormatUint(typeID, 10))
}

// SetStorePrice records the sale price for a lootbox type.
func (m *Manager) SetStorePrice(typeID uint64, price *big.Int) error {
	if price == nil {
		price = big.NewInt(0)
	}
	return m.putJSON(prefixStorePx+strconv.FormatUint(typeID, 10), price.String())
}

// --- Forge pricing, discounts, allowlist ---

// ForgePrice returns the reference-unit upgrade price for a key type.
func (m *Manager) ForgePrice(typeID uint64) (*big.Int, error) {
	return m.price(prefixForgePx + strconv.FormatUint(typeID, 10))
}

// SetForgePrice records the upgrade price for a key type.
func (m *Manager) SetForgePrice(typeID uint64, price *big.Int) error {
	if price == nil {
		price = big.NewInt(0)
	}
	return m.putJSON(prefixForgePx+strconv.FormatUint(typeID, 10), price.String())
}

// ForgeDiscount returns the configured discount for a payment asset.
func (m *Manager) ForgeDiscount(asset string) (uint64, error) {
	var discount uint64
	if _, err := m.getJSON(prefixForgeDisc+asset, &discount); err != nil {
		return 0, err
	}
	return discount, nil
}

// SetForgeDiscount records the discount for a payment asset.
func (m *Manager) SetForgeDiscount(asset string, discount uint64) error {
	return m.putJSON(prefixForgeDisc+asset, discount)
}

// ForgeAssetAllowed reports membership in the forge's payment allowlist.
func (m *Manager) ForgeAssetAllowed(asset string) (bool, error) {
	var allowed bool
	if _, err := m.getJSON(prefixForgeAsst+asset, &allowed); err != nil {
		return false, err
	}
	return allowed, nil
}

// SetForgeAssetAllowed updates the forge's payment allowlist.
func (m *Manager) SetForgeAssetAllowed(asset string, allowed bool) error {
	if !allowed {
		return m.backend().Delete([]byte(prefixForgeAsst + asset))
	}
	return m.putJSON(prefixForgeAsst+asset, true)
}

// --- Vault configuration ---

// VaultAllowedAssets returns the vault's allowed set in insertion order.
func (m *Manager) VaultAllowedAssets() ([]string, error) {
	var stored []string
	if _, err := m.getJSON(keyVaultAllowed, &stored); err != nil {
		return nil, err
	}
	return stored, nil
}

// VaultAssetAllowed reports membership in the vault's allowed set.
func (m *Manager) VaultAssetAllowed(asset string) (bool, error) {
	stored, err := m.VaultAllowedAssets()
	if err != nil {
		return false, err
	}
	for _, existing := range stored {
		if existing == asset {
			return true, nil
		}
	}
	return false, nil
}

// SetVaultAssetAllowed adds or removes an asset from the vault's allowed
// set.
func (m *Manager) SetVaultAssetAllowed(asset string, allowed bool) error {
	stored, err := m.VaultAllowedAssets()
	if err != nil {
		return err
	}
	if allowed {
		for _, existing := range stored {
			if existing == asset {
				return nil
			}
		}
		return m.putJSON(keyVaultAllowed, append(stored, asset))
	}
	filtered := stored[:0]
	for _, existing := range stored {
		if existing != asset {
			filtered = append(filtered, existing)
		}
	}
	return m.putJSON(keyVaultAllowed, filtered)
}

// VaultMasterType returns the designated share-weighting type id.
func (m *Manager) VaultMasterType() (uint64, error) {
	var master uint64
	if _, err := m.getJSON(keyVaultMaster, &master); err != nil {
		return 0, err
	}
	return master, nil
}

// SetVaultMasterType records the share-weighting type id.
func (m *Manager) SetVaultMasterType(typeID uint64) error {
	return m.putJSON(keyVaultMaster, typeID)
}

// VaultUnlockTime returns the configured unlock timestamp.
func (m *Manager) VaultUnlockTime() (int64, error) {
	var ts int64
	if _, err := m.getJSON(keyVaultUnlock, &ts); err != nil {
		return 0, err
	}
	return ts, nil
}

// SetVaultUnlockTime records the unlock timestamp.
func (m *Manager) SetVaultUnlockTime(ts int64) error {
	return m.putJSON(keyVaultUnlock, ts)
}

// VaultRedeemDeadline returns the end of the redemption window.
func (m *Manager) VaultRedeemDeadline() (int64, error) {
	var ts int64
	if _, err := m.getJSON(keyVaultDead, &ts); err != nil {
		return 0, err
	}
	return ts, nil
}

// SetVaultRedeemDeadline records the end of the redemption window.
func (m *Manager) SetVaultRedeemDeadline(ts int64) error {
	return m.putJSON(keyVaultDead, ts)
}

// CollectionView adapts one collection's catalog for read-only consumers
// such as the gateway.
type CollectionView struct {
	manager    *Manager
	collection string
}

// View returns a read-only catalog view over the named collection.
func (m *Manager) View(collection string) *CollectionView {
	return &CollectionView{manager: m, collection: collection}
}

// Types lists the collection's live type records in id order.
func (v *CollectionView) Types() ([]*assets.TypeRecord, error) {
	return v.manager.AssetTypes(v.collection)
}
