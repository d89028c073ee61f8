package referral

import (
	"errors"

	"forgechain/core/events"
	"forgechain/native/common"
)

var (
	errNilState      = errors.New("referral: state not configured")
	errSelfLink      = errors.New("referral: participant cannot refer itself")
	errUnauthorized  = errors.New("referral: caller lacks connector role")
	errEmptySequence = errors.New("referral: sequence must not be empty")
	errLongSequence  = errors.New("referral: sequence exceeds configured levels")
	errLevelsSum     = errors.New("referral: level percentages exceed 100%")
)

var zeroAddr [20]byte

// TreeState describes the persistence the referral tree needs. Parent links
// and child sets are maintained in lockstep by the state implementation.
type TreeState interface {
	ReferralParent(child [20]byte) ([20]byte, bool, error)
	SetReferralParent(child, parent [20]byte) error
	ClearReferralParent(child [20]byte) error
	AddReferralChild(parent, child [20]byte) error
	RemoveReferralChild(parent, child [20]byte) error
	ReferralChildren(parent [20]byte) ([][20]byte, error)
	ReferralLevels() ([]uint64, error)
	SetReferralLevels(levels []uint64) error
}

// Entry is one link of a payout chain: the parent at that level (zero when
// the chain is shorter than the configured depth) and the level's weight.
type Entry struct {
	Parent [20]byte
	Weight uint64
}

// Tree maintains parent/child referral links and level-scaled payout
// percentages.
type Tree struct {
	state   TreeState
	emitter events.Emitter
	roles   *common.Roles
}

// NewTree creates a referral tree engine with a no-op emitter.
func NewTree() *Tree {
	return &Tree{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (t *Tree) SetState(state TreeState) { t.state = state }

// SetRoles configures the authorization registry consulted for connector and
// admin checks.
func (t *Tree) SetRoles(roles *common.Roles) { t.roles = roles }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (t *Tree) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		t.emitter = events.NoopEmitter{}
		return
	}
	t.emitter = emitter
}

func (t *Tree) emit(evt events.Event) {
	if t == nil || t.emitter == nil {
		return
	}
	t.emitter.Emit(evt)
}

func (t *Tree) authorized(caller [20]byte) bool {
	if t.roles == nil {
		return false
	}
	return t.roles.HasRole(common.RoleConnector, caller) || t.roles.HasRole(common.RoleAdmin, caller)
}

// AddRelation records parent as the referrer of child. The link is
// idempotent-replacing: an existing parent link is removed, including the old
// parent's child-set entry, before the new one is written. Replacing rather
// than appending is what keeps the parent chain acyclic.
func (t *Tree) AddRelation(caller, parent, child [20]byte) error {
	if t == nil || t.state == nil {
		return errNilState
	}
	if !t.authorized(caller) {
		return errUnauthorized
	}
	if parent == child {
		return errSelfLink
	}
	current, linked, err := t.state.ReferralParent(child)
	if err != nil {
		return err
	}
	if linked {
		if current == parent {
			return nil
		}
		if err := t.state.RemoveReferralChild(current, child); err != nil {
			return err
		}
		if err := t.state.ClearReferralParent(child); err != nil {
			return err
		}
		t.emit(events.RelationRemoved{Parent: current, Child: child})
	}
	if err := t.state.SetReferralParent(child, parent); err != nil {
		return err
	}
	if err := t.state.AddReferralChild(parent, child); err != nil {
		return err
	}
	t.emit(events.RelationAdded{Parent: parent, Child: child})
	return nil
}

// Chain returns the payout chain for child with a fixed length equal to the
// configured level count. Entries past the actual chain carry the zero
// address with the still-configured weight. The walk is bounded by the level
// count, never by a nil check, so an accidental cycle cannot hang it.
func (t *Tree) Chain(child [20]byte) ([]Entry, error) {
	if t == nil || t.state == nil {
		return nil, errNilState
	}
	levels, err := t.state.ReferralLevels()
	if err != nil {
		return nil, err
	}
	chain := make([]Entry, len(levels))
	cursor := child
	exhausted := false
	for i, weight := range levels {
		chain[i] = Entry{Weight: weight}
		if exhausted {
			continue
		}
		parent, linked, err := t.state.ReferralParent(cursor)
		if err != nil {
			return nil, err
		}
		if !linked {
			exhausted = true
			continue
		}
		chain[i].Parent = parent
		cursor = parent
	}
	return chain, nil
}

// LinkSequence links consecutive pairs of the sequence, which starts with
// the acting participant followed by proposed ancestors. Linking stops at
// the first participant that already has a parent, at the sequence end, or
// at an adjacent duplicate; already-linked participants are never
// overwritten.
func (t *Tree) LinkSequence(caller [20]byte, sequence [][20]byte) error {
	if t == nil || t.state == nil {
		return errNilState
	}
	if !t.authorized(caller) {
		return errUnauthorized
	}
	if len(sequence) == 0 {
		return errEmptySequence
	}
	levels, err := t.state.ReferralLevels()
	if err != nil {
		return err
	}
	if len(sequence) > len(levels)+1 {
		return errLongSequence
	}
	for i := 0; i+1 < len(sequence); i++ {
		child, parent := sequence[i], sequence[i+1]
		if child == parent {
			return nil
		}
		_, linked, err := t.state.ReferralParent(child)
		if err != nil {
			return err
		}
		if linked {
			return nil
		}
		if err := t.AddRelation(caller, parent, child); err != nil {
			return err
		}
	}
	return nil
}

// Children returns the direct referrals of parent.
func (t *Tree) Children(parent [20]byte) ([][20]byte, error) {
	if t == nil || t.state == nil {
		return nil, errNilState
	}
	return t.state.ReferralChildren(parent)
}

// Parent returns the direct referrer of child, if linked.
func (t *Tree) Parent(child [20]byte) ([20]byte, bool, error) {
	if t == nil || t.state == nil {
		return zeroAddr, false, errNilState
	}
	return t.state.ReferralParent(child)
}

// Levels returns the configured payout percentages ordered from the nearest
// parent outward.
func (t *Tree) Levels() ([]uint64, error) {
	if t == nil || t.state == nil {
		return nil, errNilState
	}
	return t.state.ReferralLevels()
}

// SetLevels replaces the payout percentage table. Admin only; the sum must
// not exceed 100%.
func (t *Tree) SetLevels(caller [20]byte, levels []uint64) error {
	if t == nil || t.state == nil {
		return errNilState
	}
	if t.roles == nil || !t.roles.HasRole(common.RoleAdmin, caller) {
		return errUnauthorized
	}
	total := uint64(0)
	for _, weight := range levels {
		// Per-entry bound keeps the sum from wrapping uint64.
		if weight > common.PercentPrecision {
			return errLevelsSum
		}
		total += weight
	}
	if total > common.PercentPrecision {
		return errLevelsSum
	}
	stored := append([]uint64{}, levels...)
	if err := t.state.SetReferralLevels(stored); err != nil {
		return err
	}
	t.emit(events.LevelsUpdated{Levels: stored})
	return nil
}
