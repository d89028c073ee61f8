package events

import (
	"forgechain/core/types"
)

const (
	TypeAssetTypeAdded    = "assets.type.added"
	TypeAssetTypeUpdated  = "assets.type.updated"
	TypeAssetTypeRemoved  = "assets.type.removed"
	TypeDropTableUpdated  = "assets.type.dropchanged"
	TypeInstanceMinted    = "assets.instance.minted"
	TypeInstanceBurned    = "assets.instance.burned"
	TypeInstanceDropRoll  = "assets.drop.rolled"
	TypeInstanceTransfer  = "assets.instance.transferred"
)

type AssetTypeAdded struct {
	Collection string
	TypeID     uint64
	Name       string
	URI        string
}

func (AssetTypeAdded) EventType() string { return TypeAssetTypeAdded }

func (e AssetTypeAdded) Event() *types.Event {
	return &types.Event{
		Type: TypeAssetTypeAdded,
		Attributes: map[string]string{
			"collection": e.Collection,
			"typeId":     uintToString(e.TypeID),
			"name":       e.Name,
			"uri":        e.URI,
		},
	}
}

type AssetTypeUpdated struct {
	Collection string
	TypeID     uint64
	Name       string
	URI        string
}

func (AssetTypeUpdated) EventType() string { return TypeAssetTypeUpdated }

func (e AssetTypeUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeAssetTypeUpdated,
		Attributes: map[string]string{
			"collection": e.Collection,
			"typeId":     uintToString(e.TypeID),
			"name":       e.Name,
			"uri":        e.URI,
		},
	}
}

type AssetTypeRemoved struct {
	Collection string
	TypeID     uint64
}

func (AssetTypeRemoved) EventType() string { return TypeAssetTypeRemoved }

func (e AssetTypeRemoved) Event() *types.Event {
	return &types.Event{
		Type: TypeAssetTypeRemoved,
		Attributes: map[string]string{
			"collection": e.Collection,
			"typeId":     uintToString(e.TypeID),
		},
	}
}

type DropTableUpdated struct {
	Collection string
	TypeID     uint64
	Entries    int
}

func (DropTableUpdated) EventType() string { return TypeDropTableUpdated }

func (e DropTableUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeDropTableUpdated,
		Attributes: map[string]string{
			"collection": e.Collection,
			"typeId":     uintToString(e.TypeID),
			"entries":    intToString(int64(e.Entries)),
		},
	}
}

type InstanceMinted struct {
	Collection string
	InstanceID uint64
	TypeID     uint64
	Holder     [20]byte
}

func (InstanceMinted) EventType() string { return TypeInstanceMinted }

func (e InstanceMinted) Event() *types.Event {
	return &types.Event{
		Type: TypeInstanceMinted,
		Attributes: map[string]string{
			"collection": e.Collection,
			"instanceId": uintToString(e.InstanceID),
			"typeId":     uintToString(e.TypeID),
			"holder":     formatAddr(e.Holder),
		},
	}
}

type InstanceBurned struct {
	Collection string
	InstanceID uint64
	TypeID     uint64
	Holder     [20]byte
}

func (InstanceBurned) EventType() string { return TypeInstanceBurned }

func (e InstanceBurned) Event() *types.Event {
	return &types.Event{
		Type: TypeInstanceBurned,
		Attributes: map[string]string{
			"collection": e.Collection,
			"instanceId": uintToString(e.InstanceID),
			"typeId":     uintToString(e.TypeID),
			"holder":     formatAddr(e.Holder),
		},
	}
}

type InstanceTransferred struct {
	Collection string
	InstanceID uint64
	TypeID     uint64
	From       [20]byte
	To         [20]byte
}

func (InstanceTransferred) EventType() string { return TypeInstanceTransfer }

func (e InstanceTransferred) Event() *types.Event {
	return &types.Event{
		Type: TypeInstanceTransfer,
		Attributes: map[string]string{
			"collection": e.Collection,
			"instanceId": uintToString(e.InstanceID),
			"typeId":     uintToString(e.TypeID),
			"from":       formatAddr(e.From),
			"to":         formatAddr(e.To),
		},
	}
}

type DropRolled struct {
	Collection   string
	TypeID       uint64
	Draw         uint64
	OutcomeIndex int
	ResultTypeID uint64
}

func (DropRolled) EventType() string { return TypeInstanceDropRoll }

func (e DropRolled) Event() *types.Event {
	return &types.Event{
		Type: TypeInstanceDropRoll,
		Attributes: map[string]string{
			"collection":   e.Collection,
			"typeId":       uintToString(e.TypeID),
			"draw":         uintToString(e.Draw),
			"outcomeIndex": intToString(int64(e.OutcomeIndex)),
			"resultTypeId": uintToString(e.ResultTypeID),
		},
	}
}
