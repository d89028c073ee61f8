package events

import (
	"math/big"
	"strconv"
	"strings"

	"forgechain/core/types"
)

const (
	TypeStorePriceSet      = "store.price.set"
	TypeStoreSaleCompleted = "store.sale.completed"
	TypeStoreAccountsSet   = "store.accounts.updated"
)

type StorePriceSet struct {
	TypeID uint64
	Price  *big.Int
}

func (StorePriceSet) EventType() string { return TypeStorePriceSet }

func (e StorePriceSet) Event() *types.Event {
	return &types.Event{
		Type: TypeStorePriceSet,
		Attributes: map[string]string{
			"typeId": uintToString(e.TypeID),
			"price":  formatAmount(e.Price),
		},
	}
}

type SaleCompleted struct {
	Buyer       [20]byte
	TypeID      uint64
	Count       uint64
	Asset       string
	Price       *big.Int
	InstanceIDs []uint64
}

func (SaleCompleted) EventType() string { return TypeStoreSaleCompleted }

func (e SaleCompleted) Event() *types.Event {
	ids := make([]string, len(e.InstanceIDs))
	for i, id := range e.InstanceIDs {
		ids[i] = strconv.FormatUint(id, 10)
	}
	return &types.Event{
		Type: TypeStoreSaleCompleted,
		Attributes: map[string]string{
			"buyer":       formatAddr(e.Buyer),
			"typeId":      uintToString(e.TypeID),
			"count":       uintToString(e.Count),
			"asset":       e.Asset,
			"price":       formatAmount(e.Price),
			"instanceIds": strings.Join(ids, ","),
		},
	}
}

type StoreAccountsUpdated struct {
	Team [20]byte
}

func (StoreAccountsUpdated) EventType() string { return TypeStoreAccountsSet }

func (e StoreAccountsUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeStoreAccountsSet,
		Attributes: map[string]string{
			"team": formatAddr(e.Team),
		},
	}
}
