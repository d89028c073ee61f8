package assets

import (
	"errors"
	"fmt"

	"forgechain/core/events"
	"forgechain/native/common"
	"forgechain/native/droptable"
)

var (
	errNilState        = errors.New("assets: state not configured")
	errUnauthorized    = errors.New("assets: caller lacks admin role")
	errUnknownType     = errors.New("assets: unknown type")
	errUnknownInstance = errors.New("assets: unknown instance")
	errNotOwner        = errors.New("assets: caller is not the holder")
	errTypeInUse       = errors.New("assets: type still has live instances")
	errNoDropTable     = errors.New("assets: type has no drop table")
	errNoRewardTarget  = errors.New("assets: reward collection not configured")
	errEmptyName       = errors.New("assets: type name must not be empty")
)

var zeroAddr [20]byte

// TypeRecord describes one asset type. Count tracks instances currently in
// existence (minted minus burned). Drops is only populated for
// drop-producing types such as lootboxes.
type TypeRecord struct {
	ID    uint64          `json:"id"`
	Name  string          `json:"name"`
	URI   string          `json:"uri"`
	Count uint64          `json:"count"`
	Drops droptable.Table `json:"drops,omitempty"`
}

// InstanceRecord binds an instance id permanently to a type and to its
// current holder.
type InstanceRecord struct {
	ID     uint64   `json:"id"`
	TypeID uint64   `json:"typeId"`
	Holder [20]byte `json:"holder"`
}

// State is the persistence surface a collection needs. Holder counters and
// instance-id sets are maintained by the engine, in lockstep with ownership
// changes.
type State interface {
	Begin()
	Commit() error
	Rollback()
	AssetType(collection string, typeID uint64) (*TypeRecord, bool, error)
	PutAssetType(collection string, rec *TypeRecord) error
	DeleteAssetType(collection string, typeID uint64) error
	AssetTypeSequence(collection string) (uint64, error)
	BumpAssetTypeSequence(collection string) (uint64, error)
	BumpInstanceSequence(collection string) (uint64, error)
	Instance(collection string, instanceID uint64) (*InstanceRecord, bool, error)
	PutInstance(collection string, rec *InstanceRecord) error
	DeleteInstance(collection string, instanceID uint64) error
	HolderTypeCount(collection string, holder [20]byte, typeID uint64) (uint64, error)
	SetHolderTypeCount(collection string, holder [20]byte, typeID uint64, count uint64) error
	AddHolderInstance(collection string, holder [20]byte, instanceID uint64) error
	RemoveHolderInstance(collection string, holder [20]byte, instanceID uint64) error
	HolderInstances(collection string, holder [20]byte) ([]uint64, error)
}

// Collection is a non-fungible collection where every instance has an
// immutable type. Two collections exist in the economy: lootboxes and keys;
// opening a lootbox mints into the configured reward collection.
type Collection struct {
	name    string
	state   State
	emitter events.Emitter
	roles   *common.Roles
	entropy droptable.Entropy
	reward  *Collection
}

// NewCollection creates a collection engine with a no-op emitter.
func NewCollection(name string) *Collection {
	return &Collection{name: name, emitter: events.NoopEmitter{}}
}

// Name returns the collection identifier used in state keys and events.
func (c *Collection) Name() string { return c.name }

// SetState configures the state backend used by the engine.
func (c *Collection) SetState(state State) { c.state = state }

// SetRoles configures the authorization registry for catalog mutations.
func (c *Collection) SetRoles(roles *common.Roles) { c.roles = roles }

// SetEntropy configures the pseudo-random source used by Open.
func (c *Collection) SetEntropy(entropy droptable.Entropy) { c.entropy = entropy }

// SetRewardCollection configures where Open mints its results.
func (c *Collection) SetRewardCollection(reward *Collection) { c.reward = reward }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (c *Collection) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		c.emitter = events.NoopEmitter{}
		return
	}
	c.emitter = emitter
}

func (c *Collection) emit(evt events.Event) {
	if c == nil || c.emitter == nil {
		return
	}
	c.emitter.Emit(evt)
}

func (c *Collection) requireAdmin(caller [20]byte) error {
	if c.roles == nil || !c.roles.HasRole(common.RoleAdmin, caller) {
		return errUnauthorized
	}
	return nil
}

func (c *Collection) loadType(typeID uint64) (*TypeRecord, error) {
	rec, ok, err := c.state.AssetType(c.name, typeID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s/%d", errUnknownType, c.name, typeID)
	}
	return rec, nil
}

// AddType appends a new type to the catalog and returns its id. Ids start at
// 1 and are never reused.
func (c *Collection) AddType(caller [20]byte, name, uri string) (uint64, error) {
	if c == nil || c.state == nil {
		return 0, errNilState
	}
	if err := c.requireAdmin(caller); err != nil {
		return 0, err
	}
	if name == "" {
		return 0, errEmptyName
	}
	id, err := c.state.BumpAssetTypeSequence(c.name)
	if err != nil {
		return 0, err
	}
	rec := &TypeRecord{ID: id, Name: name, URI: uri}
	if err := c.state.PutAssetType(c.name, rec); err != nil {
		return 0, err
	}
	c.emit(events.AssetTypeAdded{Collection: c.name, TypeID: id, Name: name, URI: uri})
	return id, nil
}

// UpdateType edits the display name and content URI of an existing type.
func (c *Collection) UpdateType(caller [20]byte, typeID uint64, name, uri string) error {
	if c == nil || c.state == nil {
		return errNilState
	}
	if err := c.requireAdmin(caller); err != nil {
		return err
	}
	if name == "" {
		return errEmptyName
	}
	rec, err := c.loadType(typeID)
	if err != nil {
		return err
	}
	rec.Name = name
	rec.URI = uri
	if err := c.state.PutAssetType(c.name, rec); err != nil {
		return err
	}
	c.emit(events.AssetTypeUpdated{Collection: c.name, TypeID: typeID, Name: name, URI: uri})
	return nil
}

// RemoveType deletes a type from the catalog. Fails while any instance of
// the type is alive.
func (c *Collection) RemoveType(caller [20]byte, typeID uint64) error {
	if c == nil || c.state == nil {
		return errNilState
	}
	if err := c.requireAdmin(caller); err != nil {
		return err
	}
	rec, err := c.loadType(typeID)
	if err != nil {
		return err
	}
	if rec.Count != 0 {
		return errTypeInUse
	}
	if err := c.state.DeleteAssetType(c.name, typeID); err != nil {
		return err
	}
	c.emit(events.AssetTypeRemoved{Collection: c.name, TypeID: typeID})
	return nil
}

// SetDropTable replaces the weighted outcome table for a type.
func (c *Collection) SetDropTable(caller [20]byte, typeID uint64, table droptable.Table) error {
	if c == nil || c.state == nil {
		return errNilState
	}
	if err := c.requireAdmin(caller); err != nil {
		return err
	}
	rec, err := c.loadType(typeID)
	if err != nil {
		return err
	}
	rec.Drops = append(droptable.Table{}, table...)
	if err := c.state.PutAssetType(c.name, rec); err != nil {
		return err
	}
	c.emit(events.DropTableUpdated{Collection: c.name, TypeID: typeID, Entries: len(table)})
	return nil
}

// Type returns the catalog record for a type id.
func (c *Collection) Type(typeID uint64) (*TypeRecord, error) {
	if c == nil || c.state == nil {
		return nil, errNilState
	}
	return c.loadType(typeID)
}

// TypeSequence returns the highest type id ever issued.
func (c *Collection) TypeSequence() (uint64, error) {
	if c == nil || c.state == nil {
		return 0, errNilState
	}
	return c.state.AssetTypeSequence(c.name)
}

// TypeSupply returns the live instance count of a type.
func (c *Collection) TypeSupply(typeID uint64) (uint64, error) {
	rec, err := c.Type(typeID)
	if err != nil {
		return 0, err
	}
	return rec.Count, nil
}

// OwnerOf returns the current holder of an instance.
func (c *Collection) OwnerOf(instanceID uint64) ([20]byte, error) {
	if c == nil || c.state == nil {
		return zeroAddr, errNilState
	}
	rec, ok, err := c.state.Instance(c.name, instanceID)
	if err != nil {
		return zeroAddr, err
	}
	if !ok {
		return zeroAddr, fmt.Errorf("%w: %s/%d", errUnknownInstance, c.name, instanceID)
	}
	return rec.Holder, nil
}

// Instance returns the record for an instance id.
func (c *Collection) Instance(instanceID uint64) (*InstanceRecord, error) {
	if c == nil || c.state == nil {
		return nil, errNilState
	}
	rec, ok, err := c.state.Instance(c.name, instanceID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s/%d", errUnknownInstance, c.name, instanceID)
	}
	return rec, nil
}

// HolderCount returns the holder's live instance count for a type.
func (c *Collection) HolderCount(holder [20]byte, typeID uint64) (uint64, error) {
	if c == nil || c.state == nil {
		return 0, errNilState
	}
	return c.state.HolderTypeCount(c.name, holder, typeID)
}

// HolderInstances returns the instance ids currently held.
func (c *Collection) HolderInstances(holder [20]byte) ([]uint64, error) {
	if c == nil || c.state == nil {
		return nil, errNilState
	}
	return c.state.HolderInstances(c.name, holder)
}

// creditHolder increments the destination side of an ownership change.
func (c *Collection) creditHolder(holder [20]byte, typeID, instanceID uint64) error {
	count, err := c.state.HolderTypeCount(c.name, holder, typeID)
	if err != nil {
		return err
	}
	if err := c.state.SetHolderTypeCount(c.name, holder, typeID, count+1); err != nil {
		return err
	}
	return c.state.AddHolderInstance(c.name, holder, instanceID)
}

// debitHolder decrements the source side of an ownership change.
func (c *Collection) debitHolder(holder [20]byte, typeID, instanceID uint64) error {
	count, err := c.state.HolderTypeCount(c.name, holder, typeID)
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("assets: holder counter underflow for %s/%d", c.name, typeID)
	}
	if err := c.state.SetHolderTypeCount(c.name, holder, typeID, count-1); err != nil {
		return err
	}
	return c.state.RemoveHolderInstance(c.name, holder, instanceID)
}

// Mint creates a new instance of typeID bound to holder and returns its id.
// Mint has no source step: only the destination counters and the type's
// global count change.
func (c *Collection) Mint(holder [20]byte, typeID uint64) (uint64, error) {
	if c == nil || c.state == nil {
		return 0, errNilState
	}
	rec, err := c.loadType(typeID)
	if err != nil {
		return 0, err
	}
	instanceID, err := c.state.BumpInstanceSequence(c.name)
	if err != nil {
		return 0, err
	}
	if err := c.state.PutInstance(c.name, &InstanceRecord{ID: instanceID, TypeID: typeID, Holder: holder}); err != nil {
		return 0, err
	}
	if err := c.creditHolder(holder, typeID, instanceID); err != nil {
		return 0, err
	}
	rec.Count++
	if err := c.state.PutAssetType(c.name, rec); err != nil {
		return 0, err
	}
	c.emit(events.InstanceMinted{Collection: c.name, InstanceID: instanceID, TypeID: typeID, Holder: holder})
	return instanceID, nil
}

// Burn destroys an instance. The supplied holder must be the actual current
// owner; a stale holder is rejected even when the instance exists.
func (c *Collection) Burn(holder [20]byte, instanceID uint64) error {
	if c == nil || c.state == nil {
		return errNilState
	}
	rec, ok, err := c.state.Instance(c.name, instanceID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s/%d", errUnknownInstance, c.name, instanceID)
	}
	if rec.Holder != holder {
		return errNotOwner
	}
	typeRec, err := c.loadType(rec.TypeID)
	if err != nil {
		return err
	}
	if err := c.debitHolder(holder, rec.TypeID, instanceID); err != nil {
		return err
	}
	if err := c.state.DeleteInstance(c.name, instanceID); err != nil {
		return err
	}
	if typeRec.Count == 0 {
		return fmt.Errorf("assets: global counter underflow for %s/%d", c.name, rec.TypeID)
	}
	typeRec.Count--
	if err := c.state.PutAssetType(c.name, typeRec); err != nil {
		return err
	}
	c.emit(events.InstanceBurned{Collection: c.name, InstanceID: instanceID, TypeID: rec.TypeID, Holder: holder})
	return nil
}

// Transfer moves an instance between holders. Counters update in the order
// decrement-source-then-increment-destination; the type's global count is
// untouched.
func (c *Collection) Transfer(from, to [20]byte, instanceID uint64) error {
	if c == nil || c.state == nil {
		return errNilState
	}
	rec, ok, err := c.state.Instance(c.name, instanceID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s/%d", errUnknownInstance, c.name, instanceID)
	}
	if rec.Holder != from {
		return errNotOwner
	}
	if err := c.debitHolder(from, rec.TypeID, instanceID); err != nil {
		return err
	}
	if err := c.creditHolder(to, rec.TypeID, instanceID); err != nil {
		return err
	}
	rec.Holder = to
	if err := c.state.PutInstance(c.name, rec); err != nil {
		return err
	}
	c.emit(events.InstanceTransferred{Collection: c.name, InstanceID: instanceID, TypeID: rec.TypeID, From: from, To: to})
	return nil
}

// Open rolls the instance type's drop table, mints the resulting type into
// the reward collection when the roll lands above the residual bucket, and
// unconditionally burns the opened instance. Returns the minted instance id,
// or zero when the roll landed on index 0. Mint and burn land as one unit
// of work.
func (c *Collection) Open(caller [20]byte, instanceID uint64) (uint64, error) {
	if c == nil || c.state == nil {
		return 0, errNilState
	}
	c.state.Begin()
	minted, err := c.open(caller, instanceID)
	if err != nil {
		c.state.Rollback()
		return 0, err
	}
	if err := c.state.Commit(); err != nil {
		return 0, err
	}
	return minted, nil
}

func (c *Collection) open(caller [20]byte, instanceID uint64) (uint64, error) {
	if c.reward == nil {
		return 0, errNoRewardTarget
	}
	rec, ok, err := c.state.Instance(c.name, instanceID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s/%d", errUnknownInstance, c.name, instanceID)
	}
	if rec.Holder != caller {
		return 0, errNotOwner
	}
	typeRec, err := c.loadType(rec.TypeID)
	if err != nil {
		return 0, err
	}
	if len(typeRec.Drops) == 0 {
		return 0, errNoDropTable
	}
	draw := droptable.DefaultDraw(c.entropy)
	outcome, err := typeRec.Drops.Resolve(draw)
	if err != nil {
		return 0, err
	}
	c.emit(events.DropRolled{Collection: c.name, TypeID: rec.TypeID, Draw: draw, OutcomeIndex: outcome.Index, ResultTypeID: outcome.ResultTypeID})
	minted := uint64(0)
	if !outcome.None() {
		minted, err = c.reward.Mint(caller, outcome.ResultTypeID)
		if err != nil {
			return 0, err
		}
	}
	if err := c.Burn(caller, instanceID); err != nil {
		return 0, err
	}
	return minted, nil
}
