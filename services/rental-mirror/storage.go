package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore manages the mirrored item table, the event audit log, and the
// feed cursor.
type SQLiteStore struct {
	db *sql.DB
}

// ErrItemNotFound is returned when a mirrored item does not exist.
var ErrItemNotFound = errors.New("item not found")

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS items (
            id INTEGER PRIMARY KEY,
            owner TEXT NOT NULL,
            description TEXT NOT NULL,
            rate INTEGER NOT NULL,
            deposit INTEGER NOT NULL,
            status TEXT NOT NULL,
            renter TEXT,
            updated_at TIMESTAMP NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS events (
            sequence INTEGER PRIMARY KEY,
            type TEXT NOT NULL,
            payload TEXT NOT NULL,
            created_at TIMESTAMP NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS event_cursors (
            name TEXT PRIMARY KEY,
            value INTEGER NOT NULL
        );`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// MirroredItem is the mirror's row for one rental item.
type MirroredItem struct {
	ID            uint64    `json:"id"`
	Owner         string    `json:"owner"`
	Description   string    `json:"description"`
	RatePerPeriod uint64    `json:"ratePerPeriod"`
	Deposit       uint64    `json:"deposit"`
	Status        string    `json:"status"`
	Renter        string    `json:"renter,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// UpsertItem inserts or replaces the full item row.
func (s *SQLiteStore) UpsertItem(ctx context.Context, item MirroredItem) error {
	const stmt = `INSERT OR REPLACE INTO items(id, owner, description, rate, deposit, status, renter, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt, item.ID, item.Owner, item.Description, item.RatePerPeriod, item.Deposit, item.Status, item.Renter, item.UpdatedAt)
	return err
}

// UpdateItemState changes only the status and renter of an existing row.
// ErrItemNotFound signals the caller that the mirror is missing state and
// should re-sync from a snapshot.
func (s *SQLiteStore) UpdateItemState(ctx context.Context, id uint64, status, renter string, updatedAt time.Time) error {
	const stmt = `UPDATE items SET status = ?, renter = ?, updated_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, stmt, status, renter, updatedAt, id)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: id %d", ErrItemNotFound, id)
	}
	return nil
}

// GetItem fetches one mirrored item.
func (s *SQLiteStore) GetItem(ctx context.Context, id uint64) (MirroredItem, error) {
	const query = `SELECT id, owner, description, rate, deposit, status, renter, updated_at FROM items WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)
	var item MirroredItem
	if err := row.Scan(&item.ID, &item.Owner, &item.Description, &item.RatePerPeriod, &item.Deposit, &item.Status, &item.Renter, &item.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return MirroredItem{}, fmt.Errorf("%w: id %d", ErrItemNotFound, id)
		}
		return MirroredItem{}, err
	}
	return item, nil
}

// ListItems returns items ordered by id, optionally filtered by status and
// owner.
func (s *SQLiteStore) ListItems(ctx context.Context, status, owner string) ([]MirroredItem, error) {
	query := `SELECT id, owner, description, rate, deposit, status, renter, updated_at FROM items`
	var args []interface{}
	var clauses []string
	if status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, status)
	}
	if owner != "" {
		clauses = append(clauses, "owner = ?")
		args = append(args, owner)
	}
	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY id"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MirroredItem
	for rows.Next() {
		var item MirroredItem
		if err := rows.Scan(&item.ID, &item.Owner, &item.Description, &item.RatePerPeriod, &item.Deposit, &item.Status, &item.Renter, &item.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// ReplaceItems swaps the whole item table for a fresh snapshot in one
// transaction.
func (s *SQLiteStore) ReplaceItems(ctx context.Context, items []MirroredItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM items`); err != nil {
		_ = tx.Rollback()
		return err
	}
	const stmt = `INSERT INTO items(id, owner, description, rate, deposit, status, renter, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	for _, item := range items {
		if _, err := tx.ExecContext(ctx, stmt, item.ID, item.Owner, item.Description, item.RatePerPeriod, item.Deposit, item.Status, item.Renter, item.UpdatedAt); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ClearItems truncates the item table. Invoked when the node reports a bulk
// clear.
func (s *SQLiteStore) ClearItems(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM items`)
	return err
}

// StoredEvent represents an event persisted to the audit log.
type StoredEvent struct {
	Sequence  uint64
	Type      string
	Payload   map[string]string
	CreatedAt time.Time
}

// InsertEvent inserts an audit row.
func (s *SQLiteStore) InsertEvent(ctx context.Context, evt StoredEvent) error {
	const stmt = `INSERT OR REPLACE INTO events(sequence, type, payload, created_at) VALUES (?, ?, ?, ?)`
	payloadJSON, err := json.Marshal(evt.Payload)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, stmt, evt.Sequence, evt.Type, string(payloadJSON), evt.CreatedAt)
	return err
}

// RecentEvents returns up to limit audit rows, newest first.
func (s *SQLiteStore) RecentEvents(ctx context.Context, limit int) ([]StoredEvent, error) {
	const query = `SELECT sequence, type, payload, created_at FROM events ORDER BY sequence DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []StoredEvent
	for rows.Next() {
		var evt StoredEvent
		var payloadJSON string
		if err := rows.Scan(&evt.Sequence, &evt.Type, &payloadJSON, &evt.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payloadJSON), &evt.Payload); err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// LastEventSequence returns the last processed event sequence.
func (s *SQLiteStore) LastEventSequence(ctx context.Context) (uint64, error) {
	const query = `SELECT value FROM event_cursors WHERE name = 'events'`
	row := s.db.QueryRowContext(ctx, query)
	var value uint64
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return value, nil
}

// UpdateEventSequence stores the last processed event sequence.
func (s *SQLiteStore) UpdateEventSequence(ctx context.Context, sequence uint64) error {
	const stmt = `INSERT INTO event_cursors(name, value) VALUES('events', ?) ON CONFLICT(name) DO UPDATE SET value = excluded.value`
	_, err := s.db.ExecContext(ctx, stmt, sequence)
	return err
}
