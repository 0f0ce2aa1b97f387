package rental

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"gearrent/core/events"
	"gearrent/core/types"
	"gearrent/crypto"
)

var (
	errNilState   = errors.New("rental engine: state not configured")
	errNilChannel = errors.New("rental engine: settlement channel not configured")
)

// engineState is the storage backend contract. Implementations must apply
// each call synchronously; the engine serializes all access under its own
// lock.
type engineState interface {
	ItemPut(*Item) error
	ItemGet(id uint64) (*Item, bool)
	ItemList() []*Item
	NextItemID() (uint64, error)
	ClearItems() error
	Credit(addr crypto.Address, amount uint64) error
	DebitAll(addr crypto.Address) (uint64, error)
	BalanceOf(addr crypto.Address) uint64
	TotalsGet() Totals
	TotalsPut(Totals) error
}

// PayoutChannel is the value-transfer boundary. The engine instructs it
// exactly once per successful withdrawal, strictly after the ledger balance
// has been zeroed.
type PayoutChannel interface {
	Pay(recipient crypto.Address, amount uint64) error
}

type rentalEvent struct {
	evt *types.Event
}

func (e rentalEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e rentalEvent) Event() *types.Event { return e.evt }

// Engine is the transition dispatcher. It validates authorization and state
// preconditions, applies exactly one registry transition per invocation, and
// mutates the escrow ledger only as a side effect of those transitions. All
// mutating operations run to completion under a single lock; no caller ever
// observes a partially applied transition.
type Engine struct {
	mu      sync.Mutex
	state   engineState
	emitter events.Emitter
	channel PayoutChannel
	admin   crypto.Address
}

// NewEngine creates a rental engine with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPayoutChannel configures the value-transfer channel used by Withdraw.
func (e *Engine) SetPayoutChannel(channel PayoutChannel) { e.channel = channel }

// SetAdmin configures the privileged identity allowed to invoke Clear. While
// unset every Clear call is rejected.
func (e *Engine) SetAdmin(addr crypto.Address) { e.admin = addr }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(rentalEvent{evt: event})
}

func (e *Engine) loadItem(id uint64) (*Item, error) {
	item, ok := e.state.ItemGet(id)
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrItemNotFound, id)
	}
	return item, nil
}

// List creates a new Ready item owned by the caller and assigns the next id.
func (e *Engine) List(caller crypto.Address, description string, rate, deposit uint64) (*Item, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, errNilState
	}
	if caller.IsZero() {
		return nil, fmt.Errorf("%w: caller identity required", ErrInvalidInput)
	}
	if strings.TrimSpace(description) == "" {
		return nil, fmt.Errorf("%w: description must not be empty", ErrInvalidInput)
	}
	if rate == 0 {
		return nil, fmt.Errorf("%w: rate must be positive", ErrInvalidInput)
	}
	if deposit == 0 {
		return nil, fmt.Errorf("%w: deposit must be positive", ErrInvalidInput)
	}
	// The exact-payment check at rent time computes rate+deposit, so the sum
	// must be representable for the item to ever be rentable.
	if deposit > math.MaxUint64-rate {
		return nil, fmt.Errorf("%w: rate plus deposit", ErrAmountOverflow)
	}
	id, err := e.state.NextItemID()
	if err != nil {
		return nil, err
	}
	item := &Item{
		ID:            id,
		Owner:         caller,
		Description:   description,
		RatePerPeriod: rate,
		Deposit:       deposit,
		Status:        StatusReady,
	}
	if err := e.state.ItemPut(item); err != nil {
		return nil, err
	}
	e.emit(NewListedEvent(item))
	return item.Clone(), nil
}

// Rent moves a Ready item to Rented. The inbound payment must equal
// rate+deposit exactly; the rent portion is credited to the owner immediately
// while the deposit stays escrowed until the owner's deposit decision.
func (e *Engine) Rent(caller crypto.Address, id uint64, payment uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return errNilState
	}
	if caller.IsZero() {
		return fmt.Errorf("%w: caller identity required", ErrInvalidInput)
	}
	item, err := e.loadItem(id)
	if err != nil {
		return err
	}
	if item.Status != StatusReady {
		return fmt.Errorf("%w: cannot rent item in status %s", ErrInvalidState, item.Status)
	}
	if caller.Equal(item.Owner) {
		return fmt.Errorf("%w: owner cannot rent own item", ErrUnauthorized)
	}
	expected := item.RatePerPeriod + item.Deposit
	if payment != expected {
		return fmt.Errorf("%w: payment must be exactly %d, got %d", ErrInvalidInput, expected, payment)
	}
	// Validate every arithmetic step before mutating anything so the
	// transition stays all-or-nothing.
	prev := e.state.TotalsGet()
	totals, err := prev.addPaidIn(payment)
	if err != nil {
		return err
	}
	totals, err = totals.addEscrowed(item.Deposit)
	if err != nil {
		return err
	}
	if e.state.BalanceOf(item.Owner) > math.MaxUint64-item.RatePerPeriod {
		return fmt.Errorf("%w: owner balance", ErrAmountOverflow)
	}
	// The owner credit is the final write; earlier writes are unwound on
	// failure so a half-applied rent can never leave a stray credit behind.
	if err := e.state.TotalsPut(totals); err != nil {
		return err
	}
	rented := item.Clone()
	rented.Status = StatusRented
	rented.Renter = caller
	if err := e.state.ItemPut(rented); err != nil {
		if restoreErr := e.state.TotalsPut(prev); restoreErr != nil {
			return fmt.Errorf("%w (totals restore failed: %v)", err, restoreErr)
		}
		return err
	}
	if err := e.state.Credit(item.Owner, item.RatePerPeriod); err != nil {
		if restoreErr := e.state.ItemPut(item); restoreErr != nil {
			return fmt.Errorf("%w (item restore failed: %v)", err, restoreErr)
		}
		if restoreErr := e.state.TotalsPut(prev); restoreErr != nil {
			return fmt.Errorf("%w (totals restore failed: %v)", err, restoreErr)
		}
		return err
	}
	e.emit(NewRentedEvent(rented))
	return nil
}

// Return moves a Rented item to Returned. Only the current renter may return.
func (e *Engine) Return(caller crypto.Address, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return errNilState
	}
	item, err := e.loadItem(id)
	if err != nil {
		return err
	}
	if item.Status != StatusRented {
		return fmt.Errorf("%w: cannot return item in status %s", ErrInvalidState, item.Status)
	}
	if !caller.Equal(item.Renter) {
		return fmt.Errorf("%w: only the renter may return item %d", ErrUnauthorized, id)
	}
	item.Status = StatusReturned
	if err := e.state.ItemPut(item); err != nil {
		return err
	}
	e.emit(NewReturnedEvent(item))
	return nil
}

// ResolveDeposit settles the escrowed deposit after a return: back to the
// renter when the item came back ok, to the owner otherwise. The item cycles
// back to Ready with the renter cleared.
func (e *Engine) ResolveDeposit(caller crypto.Address, id uint64, itemOK bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return errNilState
	}
	item, err := e.loadItem(id)
	if err != nil {
		return err
	}
	if item.Status != StatusReturned {
		return fmt.Errorf("%w: cannot resolve deposit in status %s", ErrInvalidState, item.Status)
	}
	if !caller.Equal(item.Owner) {
		return fmt.Errorf("%w: only the owner may resolve the deposit for item %d", ErrUnauthorized, id)
	}
	recipient := item.Renter
	if !itemOK {
		recipient = item.Owner
	}
	prev := e.state.TotalsGet()
	totals, err := prev.subEscrowed(item.Deposit)
	if err != nil {
		return err
	}
	if e.state.BalanceOf(recipient) > math.MaxUint64-item.Deposit {
		return fmt.Errorf("%w: recipient balance", ErrAmountOverflow)
	}
	// Same ordering as Rent: the credit lands only after the item and
	// totals writes have both succeeded.
	if err := e.state.TotalsPut(totals); err != nil {
		return err
	}
	resolved := item.Clone()
	resolved.Status = StatusReady
	resolved.Renter = crypto.Address{}
	if err := e.state.ItemPut(resolved); err != nil {
		if restoreErr := e.state.TotalsPut(prev); restoreErr != nil {
			return fmt.Errorf("%w (totals restore failed: %v)", err, restoreErr)
		}
		return err
	}
	if err := e.state.Credit(recipient, item.Deposit); err != nil {
		if restoreErr := e.state.ItemPut(item); restoreErr != nil {
			return fmt.Errorf("%w (item restore failed: %v)", err, restoreErr)
		}
		if restoreErr := e.state.TotalsPut(prev); restoreErr != nil {
			return fmt.Errorf("%w (totals restore failed: %v)", err, restoreErr)
		}
		return err
	}
	e.emit(NewDepositResolvedEvent(resolved, itemOK))
	return nil
}

// Withdraw drains the caller's ledger balance and instructs the settlement
// channel to pay it out. The zeroing happens strictly before the payout is
// attempted, so a reentrant or repeated call can never double-spend; a payout
// enqueue failure restores the balance inside the same critical section.
func (e *Engine) Withdraw(caller crypto.Address) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return 0, errNilState
	}
	if e.channel == nil {
		return 0, errNilChannel
	}
	if caller.IsZero() {
		return 0, fmt.Errorf("%w: caller identity required", ErrInvalidInput)
	}
	amount, err := e.state.DebitAll(caller)
	if err != nil {
		return 0, err
	}
	prev := e.state.TotalsGet()
	totals, err := prev.addWithdrawn(amount)
	if err != nil {
		if restoreErr := e.state.Credit(caller, amount); restoreErr != nil {
			return 0, fmt.Errorf("%w (restore failed: %v)", err, restoreErr)
		}
		return 0, err
	}
	if err := e.state.TotalsPut(totals); err != nil {
		if restoreErr := e.state.Credit(caller, amount); restoreErr != nil {
			return 0, fmt.Errorf("%w (restore failed: %v)", err, restoreErr)
		}
		return 0, err
	}
	if err := e.channel.Pay(caller, amount); err != nil {
		if restoreErr := e.state.Credit(caller, amount); restoreErr != nil {
			return 0, fmt.Errorf("rental: settlement failed: %w (restore failed: %v)", err, restoreErr)
		}
		if restoreErr := e.state.TotalsPut(prev); restoreErr != nil {
			return 0, fmt.Errorf("rental: settlement failed: %w (totals restore failed: %v)", err, restoreErr)
		}
		return 0, fmt.Errorf("rental: settlement failed: %w", err)
	}
	e.emit(NewWithdrawnEvent(caller, amount))
	return amount, nil
}

// Clear removes every item and resets the id counter. Ledger balances are
// untouched; deposits still escrowed on cleared rentals are NOT reconciled,
// which makes this unsafe outside test and deployment resets. Only the
// configured admin identity may invoke it.
func (e *Engine) Clear(caller crypto.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return errNilState
	}
	if e.admin.IsZero() || !caller.Equal(e.admin) {
		return fmt.Errorf("%w: clear requires the admin identity", ErrUnauthorized)
	}
	if err := e.state.ClearItems(); err != nil {
		return err
	}
	e.emit(NewClearedEvent())
	return nil
}

// GetItem returns a snapshot of a single item.
func (e *Engine) GetItem(id uint64) (*Item, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, errNilState
	}
	return e.loadItem(id)
}

// ListItems returns an ordered snapshot of all items.
func (e *Engine) ListItems() ([]*Item, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, errNilState
	}
	return e.state.ItemList(), nil
}

// BalanceOf reads an identity's withdrawable balance. Never fails; unknown
// identities read zero.
func (e *Engine) BalanceOf(addr crypto.Address) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return 0
	}
	return e.state.BalanceOf(addr)
}

// Totals reports the conservation counters.
func (e *Engine) Totals() Totals {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return Totals{}
	}
	return e.state.TotalsGet()
}
