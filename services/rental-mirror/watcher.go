package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// EventWatcher periodically pulls events from the node and applies them to the
// local mirror. When the cursor falls behind the node's retention window the
// watcher abandons the event stream and re-syncs from a full item snapshot.
type EventWatcher struct {
	node         NodeClient
	store        *SQLiteStore
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int
	nowFn        func() time.Time
}

// NewEventWatcher constructs a watcher with sane defaults.
func NewEventWatcher(node NodeClient, store *SQLiteStore, logger *slog.Logger) *EventWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventWatcher{
		node:         node,
		store:        store,
		logger:       logger,
		pollInterval: 5 * time.Second,
		batchSize:    100,
		nowFn:        time.Now,
	}
}

// Run starts the polling loop until the context is cancelled.
func (w *EventWatcher) Run(ctx context.Context) {
	if w.node == nil || w.store == nil {
		return
	}
	interval := w.pollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	cursor, _ := w.store.LastEventSequence(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cursor = w.poll(ctx, cursor)
		}
	}
}

func (w *EventWatcher) poll(ctx context.Context, cursor uint64) uint64 {
	batch := w.batchSize
	if batch <= 0 {
		batch = 100
	}
	page, err := w.node.FetchEvents(ctx, cursor, batch)
	if err != nil {
		w.logger.Warn("fetch events failed", "error", err)
		return cursor
	}
	if page.Oldest > cursor+1 {
		// The node dropped events past our cursor; the stream can no
		// longer be replayed so rebuild from a snapshot instead.
		w.logger.Warn("event cursor behind retention window, re-syncing snapshot",
			"cursor", cursor, "oldest", page.Oldest)
		seq, err := w.resync(ctx, page.Last)
		if err != nil {
			w.logger.Error("snapshot re-sync failed", "error", err)
			return cursor
		}
		return seq
	}
	if len(page.Events) == 0 {
		return cursor
	}
	lastSeq := cursor
	for _, evt := range page.Events {
		if evt.Sequence <= lastSeq {
			continue
		}
		if err := w.handleEvent(ctx, evt); err != nil {
			if errors.Is(err, ErrItemNotFound) {
				// Event for an item the mirror has never seen; the
				// local copy is stale, so rebuild it.
				if seq, rerr := w.resync(ctx, page.Last); rerr == nil {
					return seq
				}
			}
			w.logger.Warn("apply event failed", "sequence", evt.Sequence, "type", evt.Type, "error", err)
			return lastSeq
		}
		lastSeq = evt.Sequence
	}
	if err := w.store.UpdateEventSequence(ctx, lastSeq); err != nil {
		w.logger.Warn("persist cursor failed", "error", err)
	}
	return lastSeq
}

// resync replaces the mirrored items with a fresh node snapshot and advances
// the cursor to the given sequence.
func (w *EventWatcher) resync(ctx context.Context, cursor uint64) (uint64, error) {
	items, err := w.node.FetchItems(ctx)
	if err != nil {
		return 0, err
	}
	now := w.nowFn().UTC()
	mirrored := make([]MirroredItem, 0, len(items))
	for _, item := range items {
		mirrored = append(mirrored, MirroredItem{
			ID:            item.ID,
			Owner:         item.Owner,
			Description:   item.Description,
			RatePerPeriod: item.RatePerPeriod,
			Deposit:       item.Deposit,
			Status:        item.Status,
			Renter:        item.Renter,
			UpdatedAt:     now,
		})
	}
	if err := w.store.ReplaceItems(ctx, mirrored); err != nil {
		return 0, err
	}
	if err := w.store.UpdateEventSequence(ctx, cursor); err != nil {
		return 0, err
	}
	w.logger.Info("snapshot re-sync complete", "items", len(mirrored), "cursor", cursor)
	return cursor, nil
}

func (w *EventWatcher) handleEvent(ctx context.Context, evt NodeEvent) error {
	createdAt := time.Unix(evt.Timestamp, 0).UTC()
	if evt.Timestamp == 0 {
		createdAt = w.nowFn().UTC()
	}
	payload := make(map[string]string, len(evt.Attributes))
	for k, v := range evt.Attributes {
		payload[k] = v
	}
	if err := w.store.InsertEvent(ctx, StoredEvent{
		Sequence:  evt.Sequence,
		Type:      evt.Type,
		Payload:   payload,
		CreatedAt: createdAt,
	}); err != nil {
		return err
	}
	return w.applyEvent(ctx, evt, payload, createdAt)
}

func (w *EventWatcher) applyEvent(ctx context.Context, evt NodeEvent, payload map[string]string, createdAt time.Time) error {
	switch evt.Type {
	case "rental.listed":
		id, err := parseEventID(payload)
		if err != nil {
			return err
		}
		rate, err := parseEventAmount(payload, "rate")
		if err != nil {
			return err
		}
		deposit, err := parseEventAmount(payload, "deposit")
		if err != nil {
			return err
		}
		return w.store.UpsertItem(ctx, MirroredItem{
			ID:            id,
			Owner:         payload["owner"],
			Description:   payload["description"],
			RatePerPeriod: rate,
			Deposit:       deposit,
			Status:        payload["status"],
			UpdatedAt:     createdAt,
		})
	case "rental.rented":
		id, err := parseEventID(payload)
		if err != nil {
			return err
		}
		return w.store.UpdateItemState(ctx, id, payload["status"], payload["renter"], createdAt)
	case "rental.returned":
		id, err := parseEventID(payload)
		if err != nil {
			return err
		}
		item, err := w.store.GetItem(ctx, id)
		if err != nil {
			return err
		}
		return w.store.UpdateItemState(ctx, id, payload["status"], item.Renter, createdAt)
	case "rental.depositResolved":
		id, err := parseEventID(payload)
		if err != nil {
			return err
		}
		return w.store.UpdateItemState(ctx, id, payload["status"], "", createdAt)
	case "rental.cleared":
		return w.store.ClearItems(ctx)
	default:
		// Ledger-only events such as rental.withdrawn land in the audit
		// log but do not touch the item table.
		return nil
	}
}

func parseEventID(payload map[string]string) (uint64, error) {
	raw := strings.TrimSpace(payload["id"])
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.New("event missing item id")
	}
	return id, nil
}

func parseEventAmount(payload map[string]string, key string) (uint64, error) {
	raw := strings.TrimSpace(payload[key])
	amount, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("event %s attribute malformed: %q", key, raw)
	}
	return amount, nil
}
