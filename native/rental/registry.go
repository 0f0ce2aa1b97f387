package rental

import (
	"fmt"
	"sort"
)

// Registry is the ordered collection of listed items. Ids are assigned
// monotonically and never reused; items are never removed except by Clear.
type Registry struct {
	items  map[uint64]*Item
	nextID uint64
}

// NewRegistry returns an empty registry with the id counter at zero.
func NewRegistry() *Registry {
	return &Registry{items: make(map[uint64]*Item)}
}

// NextID assigns and consumes the next item id.
func (r *Registry) NextID() uint64 {
	id := r.nextID
	r.nextID++
	return id
}

// Put validates and stores the item, replacing any existing record with the
// same id.
func (r *Registry) Put(item *Item) error {
	sanitized, err := SanitizeItem(item)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	r.items[sanitized.ID] = sanitized
	return nil
}

// Get returns a clone of the item with the given id.
func (r *Registry) Get(id uint64) (*Item, bool) {
	item, ok := r.items[id]
	if !ok {
		return nil, false
	}
	return item.Clone(), true
}

// All returns clones of every item ordered by id.
func (r *Registry) All() []*Item {
	out := make([]*Item, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, item.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len reports the number of stored items.
func (r *Registry) Len() int {
	return len(r.items)
}

// Clear removes every item and resets the id counter. Ledger balances are not
// part of the registry and are untouched.
func (r *Registry) Clear() {
	r.items = make(map[uint64]*Item)
	r.nextID = 0
}

// RestoreNextID overwrites the id counter. Used when reloading persisted
// state; the counter must stay ahead of every stored id.
func (r *Registry) RestoreNextID(next uint64) {
	r.nextID = next
}

// NextIDValue reports the counter without consuming it.
func (r *Registry) NextIDValue() uint64 {
	return r.nextID
}
