package settlement

import (
	"errors"
	"testing"
	"time"

	"gearrent/crypto"
	"gearrent/storage"
)

func testAddress(t *testing.T, fill byte) crypto.Address {
	t.Helper()
	raw := make([]byte, crypto.AddressLength)
	for i := range raw {
		raw[i] = fill
	}
	addr, err := crypto.NewAddress(raw)
	if err != nil {
		t.Fatal(err)
	}
	return addr
}

func TestPayRecordsInstruction(t *testing.T) {
	journal, err := NewJournal(storage.NewMemDB(), nil)
	if err != nil {
		t.Fatal(err)
	}
	journal.SetNowFunc(func() time.Time { return time.Unix(1700000000, 0) })
	recipient := testAddress(t, 0x42)

	if err := journal.Pay(recipient, 250); err != nil {
		t.Fatal(err)
	}
	if err := journal.Pay(recipient, 75); err != nil {
		t.Fatal(err)
	}

	instructions, err := journal.Instructions()
	if err != nil {
		t.Fatal(err)
	}
	if len(instructions) != 2 {
		t.Fatalf("expected 2 instructions, got %d", len(instructions))
	}
	seen := map[uint64]bool{}
	for _, inst := range instructions {
		if inst.Recipient != recipient.String() {
			t.Fatalf("recipient = %s, want %s", inst.Recipient, recipient)
		}
		if inst.CreatedAt != 1700000000 {
			t.Fatalf("createdAt = %d", inst.CreatedAt)
		}
		if inst.ID == "" {
			t.Fatal("instruction id must be set")
		}
		seen[inst.Amount] = true
	}
	if !seen[250] || !seen[75] {
		t.Fatalf("amounts missing: %+v", instructions)
	}
}

func TestPayRejectsZeroRecipient(t *testing.T) {
	journal, err := NewJournal(storage.NewMemDB(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := journal.Pay(crypto.Address{}, 10); err == nil {
		t.Fatal("expected zero recipient to be rejected")
	}
}

type failingDB struct {
	*storage.MemDB
	putErr error
}

func (db *failingDB) Put([]byte, []byte) error { return db.putErr }

func TestPayFailsWhenAppendFails(t *testing.T) {
	db := &failingDB{MemDB: storage.NewMemDB(), putErr: errors.New("disk full")}
	journal, err := NewJournal(db, nil)
	if err != nil {
		t.Fatal(err)
	}
	payErr := journal.Pay(testAddress(t, 0x01), 10)
	if payErr == nil {
		t.Fatal("expected journal append failure to surface")
	}
	if !errors.Is(payErr, db.putErr) {
		t.Fatalf("unexpected error: %v", payErr)
	}
}
