package rental

import (
	"errors"
	"math"
	"testing"
)

func TestLedgerCreditAndDebitAll(t *testing.T) {
	ledger := NewLedger()
	addr := newTestAddress(0x11)

	if err := ledger.Credit(addr, 200); err != nil {
		t.Fatal(err)
	}
	if err := ledger.Credit(addr, 50); err != nil {
		t.Fatal(err)
	}
	if got := ledger.BalanceOf(addr); got != 250 {
		t.Fatalf("expected 250, got %d", got)
	}

	amount, err := ledger.DebitAll(addr)
	if err != nil {
		t.Fatal(err)
	}
	if amount != 250 {
		t.Fatalf("expected to drain 250, got %d", amount)
	}
	if got := ledger.BalanceOf(addr); got != 0 {
		t.Fatalf("balance must be zero after drain, got %d", got)
	}
	// The entry survives at zero rather than being removed.
	if entries := ledger.Entries(); len(entries) != 1 || entries[0].Balance != 0 {
		t.Fatalf("expected one zeroed entry, got %+v", entries)
	}
	if _, err := ledger.DebitAll(addr); !errors.Is(err, ErrNothingToWithdraw) {
		t.Fatalf("expected ErrNothingToWithdraw, got %v", err)
	}
}

func TestLedgerDebitAllUnknownIdentity(t *testing.T) {
	ledger := NewLedger()
	if _, err := ledger.DebitAll(newTestAddress(0x22)); !errors.Is(err, ErrNothingToWithdraw) {
		t.Fatalf("expected ErrNothingToWithdraw, got %v", err)
	}
	if got := ledger.BalanceOf(newTestAddress(0x22)); got != 0 {
		t.Fatalf("unknown identity must read zero, got %d", got)
	}
}

func TestLedgerCreditOverflow(t *testing.T) {
	ledger := NewLedger()
	addr := newTestAddress(0x33)
	ledger.SetBalance(addr, math.MaxUint64-10)

	if err := ledger.Credit(addr, 11); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("expected ErrAmountOverflow, got %v", err)
	}
	if got := ledger.BalanceOf(addr); got != math.MaxUint64-10 {
		t.Fatalf("failed credit must not change the balance, got %d", got)
	}
	if err := ledger.Credit(addr, 10); err != nil {
		t.Fatalf("exact fit must succeed: %v", err)
	}
}

func TestLedgerZeroCreditCreatesEntry(t *testing.T) {
	ledger := NewLedger()
	addr := newTestAddress(0x44)
	if err := ledger.Credit(addr, 0); err != nil {
		t.Fatal(err)
	}
	if entries := ledger.Entries(); len(entries) != 1 {
		t.Fatalf("expected entry after zero credit, got %+v", entries)
	}
}
