package rental

import "errors"

// Error kinds surfaced by the engine. Handlers match them with errors.Is; the
// wrapped message carries the specifics.
var (
	// ErrInvalidInput marks a malformed argument: empty description,
	// non-positive rate or deposit, zero caller identity, or a rent payment
	// that is not exactly rate + deposit.
	ErrInvalidInput = errors.New("rental: invalid input")

	// ErrItemNotFound marks a reference to an item id that was never listed
	// or has been cleared.
	ErrItemNotFound = errors.New("rental: item not found")

	// ErrInvalidState marks an operation attempted while the item is not in
	// the state the transition table requires.
	ErrInvalidState = errors.New("rental: invalid item state")

	// ErrUnauthorized marks a caller that is not the required role for the
	// operation, including an owner attempting to rent their own item.
	ErrUnauthorized = errors.New("rental: unauthorized caller")

	// ErrNothingToWithdraw marks a withdrawal against a zero balance.
	ErrNothingToWithdraw = errors.New("rental: nothing to withdraw")

	// ErrAmountOverflow marks a credit or running-total update that would
	// wrap the uint64 balance representation. The whole transition fails.
	ErrAmountOverflow = errors.New("rental: amount overflow")
)
