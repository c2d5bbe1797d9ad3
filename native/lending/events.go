package lending

import (
	"strconv"

	"foxylend/core/types"
)

const (
	EventTypeOfferCreated       = "lending.offer.created"
	EventTypeOfferCancelled     = "lending.offer.cancelled"
	EventTypeOfferAccepted      = "lending.offer.accepted"
	EventTypeOfferRepaid        = "lending.offer.repaid"
	EventTypeOfferDefaulted     = "lending.offer.defaulted"
	EventTypeCollectionUpserted = "lending.collection.upserted"
	EventTypeFloorPriceUpdated  = "lending.collection.floor_updated"
	EventTypeAdminUpdated       = "lending.admin.updated"
	EventTypeInterestUpdated    = "lending.interest.updated"
)

// lendingEvent adapts a types.Event to the events.Emitter contract.
type lendingEvent struct {
	evt *types.Event
}

func (e lendingEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e lendingEvent) Event() *types.Event { return e.evt }

// NewOfferCreatedEvent returns the payload emitted when a lender posts an
// offer.
func NewOfferCreatedEvent(o *Offer, denom string) *types.Event {
	return newOfferEvent(EventTypeOfferCreated, o).With("denom", denom)
}

// NewOfferCancelledEvent returns the payload emitted when an open offer is
// withdrawn. caller is the owner or the admin.
func NewOfferCancelledEvent(o *Offer, caller string) *types.Event {
	return newOfferEvent(EventTypeOfferCancelled, o).With("caller", caller)
}

// NewOfferAcceptedEvent returns the payload emitted when a borrower deposits
// collateral against an offer.
func NewOfferAcceptedEvent(o *Offer) *types.Event {
	return newOfferEvent(EventTypeOfferAccepted, o)
}

// NewOfferRepaidEvent returns the payload emitted on an on-time repayment.
func NewOfferRepaidEvent(o *Offer, reward, ownerShare, adminShare string) *types.Event {
	return newOfferEvent(EventTypeOfferRepaid, o).
		With("reward", reward).
		With("ownerShare", ownerShare).
		With("adminShare", adminShare)
}

// NewOfferDefaultedEvent returns the payload emitted when collateral is
// forfeited to the lender.
func NewOfferDefaultedEvent(o *Offer, elapsed uint64) *types.Event {
	return newOfferEvent(EventTypeOfferDefaulted, o).With("elapsed", strconv.FormatUint(elapsed, 10))
}

// NewCollectionUpsertedEvent returns the payload emitted when the admin adds or
// replaces a collection.
func NewCollectionUpsertedEvent(c *Collection) *types.Event {
	return newCollectionEvent(EventTypeCollectionUpserted, c)
}

// NewFloorPriceUpdatedEvent returns the payload emitted on a floor price change.
func NewFloorPriceUpdatedEvent(c *Collection, previous string) *types.Event {
	return newCollectionEvent(EventTypeFloorPriceUpdated, c).With("previousFloorPrice", previous)
}

func NewAdminUpdatedEvent(previous, next string) *types.Event {
	return types.NewEvent(EventTypeAdminUpdated).With("previous", previous).With("admin", next)
}

func NewInterestUpdatedEvent(previous, next uint64) *types.Event {
	return types.NewEvent(EventTypeInterestUpdated).
		With("previous", strconv.FormatUint(previous, 10)).
		With("interestSplit", strconv.FormatUint(next, 10))
}

func newOfferEvent(eventType string, o *Offer) *types.Event {
	evt := types.NewEvent(eventType)
	if o == nil {
		return evt
	}
	evt.With("offerId", strconv.FormatUint(uint64(o.ID), 10)).
		With("owner", o.Owner.String()).
		With("amount", cloneAmount(o.Amount).Dec()).
		With("collectionId", strconv.FormatUint(uint64(o.CollectionID), 10)).
		With("startTime", strconv.FormatUint(o.StartTime, 10))
	if o.Accepted {
		evt.With("borrower", o.Borrower.String()).With("tokenId", o.TokenID)
	}
	return evt
}

func newCollectionEvent(eventType string, c *Collection) *types.Event {
	evt := types.NewEvent(eventType)
	if c == nil {
		return evt
	}
	return evt.With("collectionId", strconv.FormatUint(uint64(c.ID), 10)).
		With("name", c.Name).
		With("floorPrice", cloneAmount(c.FloorPrice).Dec()).
		With("apy", strconv.FormatUint(uint64(c.APY), 10)).
		With("maxTime", strconv.FormatUint(c.MaxTime, 10)).
		With("contract", c.Contract.String())
}
