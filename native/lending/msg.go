package lending

import (
	"github.com/holiman/uint256"

	"foxylend/crypto"
)

// Msg is the closed set of state-changing requests understood by the engine.
type Msg interface {
	Action() string
	isMsg()
}

type MsgLend struct {
	Amount       *uint256.Int
	CollectionID uint16
}

type MsgCancelOffer struct {
	OfferID uint16
}

type MsgBorrow struct {
	OfferID uint16
	TokenID string
}

type MsgRepay struct {
	OfferID uint16
}

// MsgAddCollection inserts or replaces a collection.
type MsgAddCollection struct {
	Collection Collection
}

type MsgUpdateFloorPrice struct {
	CollectionID uint16
	FloorPrice   *uint256.Int
}

type MsgUpdateAdmin struct {
	Admin crypto.Address
}

type MsgUpdateInterest struct {
	InterestSplit uint64
}

func (MsgLend) Action() string             { return ActionLend }
func (MsgCancelOffer) Action() string      { return ActionCancelOffer }
func (MsgBorrow) Action() string           { return ActionBorrow }
func (MsgRepay) Action() string            { return ActionRepay }
func (MsgAddCollection) Action() string    { return ActionAddCollection }
func (MsgUpdateFloorPrice) Action() string { return ActionUpdateFloorPrice }
func (MsgUpdateAdmin) Action() string      { return ActionUpdateAdmin }
func (MsgUpdateInterest) Action() string   { return ActionUpdateInterest }

func (MsgLend) isMsg()             {}
func (MsgCancelOffer) isMsg()      {}
func (MsgBorrow) isMsg()           {}
func (MsgRepay) isMsg()            {}
func (MsgAddCollection) isMsg()    {}
func (MsgUpdateFloorPrice) isMsg() {}
func (MsgUpdateAdmin) isMsg()      {}
func (MsgUpdateInterest) isMsg()   {}

// Dispatch routes msg to the matching operation.
func (e *Engine) Dispatch(env Env, msg Msg) (*Result, error) {
	switch m := msg.(type) {
	case MsgLend:
		return e.Lend(env, m.Amount, m.CollectionID)
	case MsgCancelOffer:
		return e.CancelOffer(env, m.OfferID)
	case MsgBorrow:
		return e.Borrow(env, m.OfferID, m.TokenID)
	case MsgRepay:
		return e.Repay(env, m.OfferID)
	case MsgAddCollection:
		return e.UpsertCollection(env, m.Collection)
	case MsgUpdateFloorPrice:
		return e.UpdateFloorPrice(env, m.CollectionID, m.FloorPrice)
	case MsgUpdateAdmin:
		return e.UpdateAdmin(env, m.Admin)
	case MsgUpdateInterest:
		return e.UpdateInterestSplit(env, m.InterestSplit)
	default:
		return nil, ErrUnknownMsg
	}
}
