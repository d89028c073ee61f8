package events

import (
	"strconv"
	"strings"

	"forgechain/core/types"
)

const (
	TypeRelationAdded   = "referral.relation.added"
	TypeRelationRemoved = "referral.relation.removed"
	TypeLevelsUpdated   = "referral.levels.updated"
)

type RelationAdded struct {
	Parent [20]byte
	Child  [20]byte
}

func (RelationAdded) EventType() string { return TypeRelationAdded }

func (e RelationAdded) Event() *types.Event {
	return &types.Event{
		Type: TypeRelationAdded,
		Attributes: map[string]string{
			"parent": formatAddr(e.Parent),
			"child":  formatAddr(e.Child),
		},
	}
}

type RelationRemoved struct {
	Parent [20]byte
	Child  [20]byte
}

func (RelationRemoved) EventType() string { return TypeRelationRemoved }

func (e RelationRemoved) Event() *types.Event {
	return &types.Event{
		Type: TypeRelationRemoved,
		Attributes: map[string]string{
			"parent": formatAddr(e.Parent),
			"child":  formatAddr(e.Child),
		},
	}
}

type LevelsUpdated struct {
	Levels []uint64
}

func (LevelsUpdated) EventType() string { return TypeLevelsUpdated }

func (e LevelsUpdated) Event() *types.Event {
	rendered := make([]string, len(e.Levels))
	for i, lvl := range e.Levels {
		rendered[i] = strconv.FormatUint(lvl, 10)
	}
	return &types.Event{
		Type: TypeLevelsUpdated,
		Attributes: map[string]string{
			"levels": strings.Join(rendered, ","),
		},
	}
}
