package rental

import (
	"fmt"
	"strings"

	"gearrent/crypto"
)

// ItemStatus represents the lifecycle states of a listed item. Items cycle
// Ready -> Rented -> Returned -> Ready indefinitely; there is no terminal
// state.
type ItemStatus uint8

const (
	StatusReady ItemStatus = iota
	StatusRented
	StatusReturned
)

// Valid reports whether the status value is within the supported range.
func (s ItemStatus) Valid() bool {
	switch s {
	case StatusReady, StatusRented, StatusReturned:
		return true
	default:
		return false
	}
}

// String returns the canonical lowercase name used on the wire.
func (s ItemStatus) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusRented:
		return "rented"
	case StatusReturned:
		return "returned"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ParseItemStatus maps a wire status name back to its tag.
func ParseItemStatus(raw string) (ItemStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ready":
		return StatusReady, nil
	case "rented":
		return StatusRented, nil
	case "returned":
		return StatusReturned, nil
	default:
		return 0, fmt.Errorf("unknown item status: %q", raw)
	}
}

// Item captures a single listing managed by the engine. The id, owner,
// description, rate and deposit are immutable after creation; status and
// renter move only through the dispatcher's transitions.
type Item struct {
	ID            uint64
	Owner         crypto.Address
	Description   string
	RatePerPeriod uint64
	Deposit       uint64
	Status        ItemStatus
	Renter        crypto.Address
}

// Clone returns a copy of the item so callers can safely mutate it without
// affecting the stored instance.
func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}
	clone := *i
	return &clone
}

// SanitizeItem validates the structural invariants of an item record and
// returns a clone. The stored owner must be set, amounts strictly positive,
// and the renter field unset exactly while the item is ready.
func SanitizeItem(i *Item) (*Item, error) {
	if i == nil {
		return nil, fmt.Errorf("nil item")
	}
	clone := i.Clone()
	if clone.Owner.IsZero() {
		return nil, fmt.Errorf("item %d: owner must be set", clone.ID)
	}
	if strings.TrimSpace(clone.Description) == "" {
		return nil, fmt.Errorf("item %d: description must not be empty", clone.ID)
	}
	if clone.RatePerPeriod == 0 {
		return nil, fmt.Errorf("item %d: rate must be positive", clone.ID)
	}
	if clone.Deposit == 0 {
		return nil, fmt.Errorf("item %d: deposit must be positive", clone.ID)
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("item %d: invalid status %d", clone.ID, clone.Status)
	}
	if clone.Status == StatusReady && !clone.Renter.IsZero() {
		return nil, fmt.Errorf("item %d: ready item must have no renter", clone.ID)
	}
	if clone.Status != StatusReady && clone.Renter.IsZero() {
		return nil, fmt.Errorf("item %d: %s item must have a renter", clone.ID, clone.Status)
	}
	return clone, nil
}
