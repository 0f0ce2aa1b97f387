package state

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"gearrent/crypto"
	"gearrent/native/rental"
	"gearrent/storage"
)

var (
	itemKeyPrefix    = []byte("rental/item/")
	balanceKeyPrefix = []byte("rental/balance/")
	nextIDKey        = []byte("rental/meta/nextid")
	totalsKey        = []byte("rental/meta/totals")
)

type storedTotals struct {
	PaidIn    uint64
	Withdrawn uint64
	Escrowed  uint64
}

// Manager implements the engine's state backend with write-through
// persistence: the in-memory registry and ledger are authoritative for reads,
// and every mutation is recorded in the underlying key-value store before the
// call returns. The full state is rebuilt from the store at construction.
type Manager struct {
	db       storage.Database
	registry *rental.Registry
	ledger   *rental.Ledger
	totals   rental.Totals
}

// NewManager opens a state manager over the given database and restores any
// previously persisted items, balances, and counters.
func NewManager(db storage.Database) (*Manager, error) {
	if db == nil {
		return nil, errors.New("state: database required")
	}
	m := &Manager{
		db:       db,
		registry: rental.NewRegistry(),
		ledger:   rental.NewLedger(),
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) load() error {
	err := m.db.IteratePrefix(itemKeyPrefix, func(_, value []byte) error {
		var item rental.Item
		if err := rlp.DecodeBytes(value, &item); err != nil {
			return fmt.Errorf("state: corrupt item record: %w", err)
		}
		return m.registry.Put(&item)
	})
	if err != nil {
		return err
	}
	err = m.db.IteratePrefix(balanceKeyPrefix, func(key, value []byte) error {
		raw := key[len(balanceKeyPrefix):]
		addr, err := crypto.NewAddress(raw)
		if err != nil {
			return fmt.Errorf("state: corrupt balance key: %w", err)
		}
		if len(value) != 8 {
			return fmt.Errorf("state: corrupt balance record for %s", addr)
		}
		m.ledger.SetBalance(addr, binary.BigEndian.Uint64(value))
		return nil
	})
	if err != nil {
		return err
	}
	if raw, err := m.db.Get(nextIDKey); err == nil {
		if len(raw) != 8 {
			return errors.New("state: corrupt next-id record")
		}
		m.registry.RestoreNextID(binary.BigEndian.Uint64(raw))
	} else if !errors.Is(err, storage.ErrKeyNotFound) {
		return err
	}
	if raw, err := m.db.Get(totalsKey); err == nil {
		var stored storedTotals
		if err := rlp.DecodeBytes(raw, &stored); err != nil {
			return fmt.Errorf("state: corrupt totals record: %w", err)
		}
		m.totals = rental.Totals(stored)
	} else if !errors.Is(err, storage.ErrKeyNotFound) {
		return err
	}
	return nil
}

func itemKey(id uint64) []byte {
	key := make([]byte, len(itemKeyPrefix)+8)
	copy(key, itemKeyPrefix)
	binary.BigEndian.PutUint64(key[len(itemKeyPrefix):], id)
	return key
}

func balanceKey(addr crypto.Address) []byte {
	return append(append([]byte(nil), balanceKeyPrefix...), addr[:]...)
}

// ItemPut stores the item in memory and in the database.
func (m *Manager) ItemPut(item *rental.Item) error {
	if err := m.registry.Put(item); err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(item)
	if err != nil {
		return fmt.Errorf("state: encode item %d: %w", item.ID, err)
	}
	return m.db.Put(itemKey(item.ID), encoded)
}

// ItemGet returns a clone of the stored item.
func (m *Manager) ItemGet(id uint64) (*rental.Item, bool) {
	return m.registry.Get(id)
}

// ItemList returns an ordered snapshot of all items.
func (m *Manager) ItemList() []*rental.Item {
	return m.registry.All()
}

// NextItemID consumes the next monotonic id and persists the counter.
func (m *Manager) NextItemID() (uint64, error) {
	id := m.registry.NextID()
	if err := m.persistNextID(); err != nil {
		return 0, err
	}
	return id, nil
}

func (m *Manager) persistNextID() error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, m.registry.NextIDValue())
	return m.db.Put(nextIDKey, buf)
}

// ClearItems removes every item record and resets the id counter. Balance
// records are intentionally left alone.
func (m *Manager) ClearItems() error {
	var keys [][]byte
	err := m.db.IteratePrefix(itemKeyPrefix, func(key, _ []byte) error {
		keys = append(keys, append([]byte(nil), key...))
		return nil
	})
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := m.db.Delete(key); err != nil {
			return err
		}
	}
	m.registry.Clear()
	return m.persistNextID()
}

// Credit adds to an identity's balance and persists the new value.
func (m *Manager) Credit(addr crypto.Address, amount uint64) error {
	if err := m.ledger.Credit(addr, amount); err != nil {
		return err
	}
	return m.persistBalance(addr)
}

// DebitAll drains an identity's balance and persists the zeroed entry before
// returning, so the drained state is durable ahead of any external payout.
func (m *Manager) DebitAll(addr crypto.Address) (uint64, error) {
	amount, err := m.ledger.DebitAll(addr)
	if err != nil {
		return 0, err
	}
	if err := m.persistBalance(addr); err != nil {
		return 0, err
	}
	return amount, nil
}

func (m *Manager) persistBalance(addr crypto.Address) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, m.ledger.BalanceOf(addr))
	return m.db.Put(balanceKey(addr), buf)
}

// BalanceOf reads an identity's balance.
func (m *Manager) BalanceOf(addr crypto.Address) uint64 {
	return m.ledger.BalanceOf(addr)
}

// TotalsGet reports the conservation counters.
func (m *Manager) TotalsGet() rental.Totals {
	return m.totals
}

// TotalsPut replaces and persists the conservation counters.
func (m *Manager) TotalsPut(totals rental.Totals) error {
	encoded, err := rlp.EncodeToBytes(storedTotals(totals))
	if err != nil {
		return fmt.Errorf("state: encode totals: %w", err)
	}
	if err := m.db.Put(totalsKey, encoded); err != nil {
		return err
	}
	m.totals = totals
	return nil
}

// LedgerEntries exposes the persisted balances, mainly for audits and tests.
func (m *Manager) LedgerEntries() []rental.LedgerEntry {
	return m.ledger.Entries()
}
