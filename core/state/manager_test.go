package state

import (
	"bytes"
	"testing"

	"gearrent/crypto"
	"gearrent/native/rental"
	"gearrent/storage"
)

func testAddr(fill byte) crypto.Address {
	var addr crypto.Address
	copy(addr[:], bytes.Repeat([]byte{fill}, crypto.AddressLength))
	return addr
}

func TestManagerPersistsAcrossReopen(t *testing.T) {
	db := storage.NewMemDB()
	manager, err := NewManager(db)
	if err != nil {
		t.Fatal(err)
	}

	id, err := manager.NextItemID()
	if err != nil {
		t.Fatal(err)
	}
	item := &rental.Item{
		ID:            id,
		Owner:         testAddr(0x01),
		Description:   "Shortboard",
		RatePerPeriod: 200,
		Deposit:       50,
		Status:        rental.StatusRented,
		Renter:        testAddr(0x02),
	}
	if err := manager.ItemPut(item); err != nil {
		t.Fatal(err)
	}
	if err := manager.Credit(testAddr(0x01), 200); err != nil {
		t.Fatal(err)
	}
	totals := rental.Totals{PaidIn: 250, Escrowed: 50}
	if err := manager.TotalsPut(totals); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewManager(db)
	if err != nil {
		t.Fatal(err)
	}
	restored, ok := reopened.ItemGet(id)
	if !ok {
		t.Fatal("item must survive a reopen")
	}
	if restored.Description != "Shortboard" || restored.Status != rental.StatusRented || !restored.Renter.Equal(testAddr(0x02)) {
		t.Fatalf("restored item mismatch: %+v", restored)
	}
	if got := reopened.BalanceOf(testAddr(0x01)); got != 200 {
		t.Fatalf("restored balance mismatch: %d", got)
	}
	if reopened.TotalsGet() != totals {
		t.Fatalf("restored totals mismatch: %+v", reopened.TotalsGet())
	}
	next, err := reopened.NextItemID()
	if err != nil {
		t.Fatal(err)
	}
	if next != id+1 {
		t.Fatalf("id counter must continue after reopen: got %d", next)
	}
}

func TestManagerDebitAllPersistsZero(t *testing.T) {
	db := storage.NewMemDB()
	manager, err := NewManager(db)
	if err != nil {
		t.Fatal(err)
	}
	addr := testAddr(0x03)
	if err := manager.Credit(addr, 75); err != nil {
		t.Fatal(err)
	}
	amount, err := manager.DebitAll(addr)
	if err != nil {
		t.Fatal(err)
	}
	if amount != 75 {
		t.Fatalf("expected 75, got %d", amount)
	}

	reopened, err := NewManager(db)
	if err != nil {
		t.Fatal(err)
	}
	if got := reopened.BalanceOf(addr); got != 0 {
		t.Fatalf("zeroed balance must be durable, got %d", got)
	}
	if entries := reopened.LedgerEntries(); len(entries) != 1 {
		t.Fatalf("zeroed entry must survive, got %+v", entries)
	}
}

func TestManagerClearItemsKeepsBalances(t *testing.T) {
	db := storage.NewMemDB()
	manager, err := NewManager(db)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		id, err := manager.NextItemID()
		if err != nil {
			t.Fatal(err)
		}
		item := &rental.Item{
			ID:            id,
			Owner:         testAddr(0x01),
			Description:   "Board",
			RatePerPeriod: 100,
			Deposit:       10,
			Status:        rental.StatusReady,
		}
		if err := manager.ItemPut(item); err != nil {
			t.Fatal(err)
		}
	}
	if err := manager.Credit(testAddr(0x01), 300); err != nil {
		t.Fatal(err)
	}

	if err := manager.ClearItems(); err != nil {
		t.Fatal(err)
	}
	if len(manager.ItemList()) != 0 {
		t.Fatal("clear must drop all items")
	}

	reopened, err := NewManager(db)
	if err != nil {
		t.Fatal(err)
	}
	if len(reopened.ItemList()) != 0 {
		t.Fatal("cleared items must not reappear after reopen")
	}
	next, err := reopened.NextItemID()
	if err != nil {
		t.Fatal(err)
	}
	if next != 0 {
		t.Fatalf("id counter must reset with clear, got %d", next)
	}
	if got := reopened.BalanceOf(testAddr(0x01)); got != 300 {
		t.Fatalf("clear must not touch balances, got %d", got)
	}
}
