package rental

import (
	"fmt"
	"math"
	"sort"

	"gearrent/crypto"
)

// Ledger is the pull-payment balance book. Balances only grow through credits
// applied by item transitions and are drained solely by DebitAll; an entry is
// created on first credit and kept (at zero) after a withdrawal.
type Ledger struct {
	balances map[crypto.Address]uint64
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[crypto.Address]uint64)}
}

// Credit adds amount to the identity's balance. A zero amount is a no-op.
// The credit fails with ErrAmountOverflow when the balance would wrap, in
// which case nothing is applied.
func (l *Ledger) Credit(addr crypto.Address, amount uint64) error {
	if l == nil {
		return fmt.Errorf("rental: nil ledger")
	}
	current := l.balances[addr]
	if amount > math.MaxUint64-current {
		return fmt.Errorf("%w: credit of %d to %s", ErrAmountOverflow, amount, addr)
	}
	l.balances[addr] = current + amount
	return nil
}

// DebitAll atomically reads the identity's balance, resets it to zero and
// returns the drained amount. This is the only way funds leave the ledger.
func (l *Ledger) DebitAll(addr crypto.Address) (uint64, error) {
	if l == nil {
		return 0, fmt.Errorf("rental: nil ledger")
	}
	current, ok := l.balances[addr]
	if !ok || current == 0 {
		return 0, ErrNothingToWithdraw
	}
	l.balances[addr] = 0
	return current, nil
}

// BalanceOf reads the identity's withdrawable balance. It never fails;
// unknown identities have a zero balance.
func (l *Ledger) BalanceOf(addr crypto.Address) uint64 {
	if l == nil {
		return 0
	}
	return l.balances[addr]
}

// SetBalance overwrites an entry. Used when restoring persisted state.
func (l *Ledger) SetBalance(addr crypto.Address, amount uint64) {
	if l == nil {
		return
	}
	l.balances[addr] = amount
}

// Entries returns the ledger content sorted by address, including zeroed
// entries. Intended for persistence and audits.
func (l *Ledger) Entries() []LedgerEntry {
	if l == nil {
		return nil
	}
	entries := make([]LedgerEntry, 0, len(l.balances))
	for addr, balance := range l.balances {
		entries = append(entries, LedgerEntry{Address: addr, Balance: balance})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Address.String() < entries[j].Address.String()
	})
	return entries
}

// LedgerEntry pairs an identity with its withdrawable balance.
type LedgerEntry struct {
	Address crypto.Address
	Balance uint64
}
