package rental

import (
	"strconv"

	"gearrent/core/types"
	"gearrent/crypto"
)

const (
	EventTypeListed          = "rental.listed"
	EventTypeRented          = "rental.rented"
	EventTypeReturned        = "rental.returned"
	EventTypeDepositResolved = "rental.depositResolved"
	EventTypeWithdrawn       = "rental.withdrawn"
	EventTypeCleared         = "rental.cleared"
)

// NewListedEvent returns the canonical event payload for a freshly listed
// item.
func NewListedEvent(item *Item) *types.Event {
	evt := newItemEvent(EventTypeListed, item)
	if item != nil {
		evt.Attributes["owner"] = item.Owner.String()
		evt.Attributes["rate"] = strconv.FormatUint(item.RatePerPeriod, 10)
		evt.Attributes["deposit"] = strconv.FormatUint(item.Deposit, 10)
		evt.Attributes["description"] = item.Description
	}
	return evt
}

// NewRentedEvent returns the canonical event payload emitted when a renter
// takes an item.
func NewRentedEvent(item *Item) *types.Event {
	evt := newItemEvent(EventTypeRented, item)
	if item != nil {
		evt.Attributes["renter"] = item.Renter.String()
	}
	return evt
}

// NewReturnedEvent returns the canonical event payload emitted when the renter
// hands the item back.
func NewReturnedEvent(item *Item) *types.Event {
	return newItemEvent(EventTypeReturned, item)
}

// NewDepositResolvedEvent returns the canonical event payload for the owner's
// deposit decision.
func NewDepositResolvedEvent(item *Item, ok bool) *types.Event {
	evt := newItemEvent(EventTypeDepositResolved, item)
	evt.Attributes["ok"] = strconv.FormatBool(ok)
	return evt
}

// NewWithdrawnEvent returns the audit payload emitted once a balance has been
// drained and handed to the settlement channel.
func NewWithdrawnEvent(account crypto.Address, amount uint64) *types.Event {
	return &types.Event{Type: EventTypeWithdrawn, Attributes: map[string]string{
		"account": account.String(),
		"amount":  strconv.FormatUint(amount, 10),
	}}
}

// NewClearedEvent returns the payload emitted by the administrative bulk
// clear so mirrors can truncate their copies.
func NewClearedEvent() *types.Event {
	return &types.Event{Type: EventTypeCleared, Attributes: map[string]string{}}
}

func newItemEvent(eventType string, item *Item) *types.Event {
	attrs := make(map[string]string)
	if item != nil {
		attrs["id"] = strconv.FormatUint(item.ID, 10)
		attrs["status"] = item.Status.String()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
