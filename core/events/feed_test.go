package events

import (
	"strconv"
	"testing"

	"gearrent/core/types"
)

type testEvent struct {
	evt *types.Event
}

func (e testEvent) EventType() string   { return e.evt.Type }
func (e testEvent) Event() *types.Event { return e.evt }

func emitN(feed *Feed, n int) {
	for i := 0; i < n; i++ {
		feed.Emit(testEvent{evt: &types.Event{
			Type:       "rental.listed",
			Attributes: map[string]string{"id": strconv.Itoa(i)},
		}})
	}
}

func TestFeedAssignsSequences(t *testing.T) {
	feed := NewFeed(10)
	feed.SetNowFunc(func() int64 { return 42 })
	emitN(feed, 3)

	entries := feed.After(0, 0)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, entry := range entries {
		if entry.Sequence != uint64(i+1) {
			t.Fatalf("entry %d: unexpected sequence %d", i, entry.Sequence)
		}
		if entry.Timestamp != 42 {
			t.Fatalf("entry %d: unexpected timestamp %d", i, entry.Timestamp)
		}
	}
	if feed.LastSequence() != 3 {
		t.Fatalf("unexpected last sequence %d", feed.LastSequence())
	}
}

func TestFeedAfterCursorAndLimit(t *testing.T) {
	feed := NewFeed(10)
	emitN(feed, 5)

	entries := feed.After(2, 2)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Sequence != 3 || entries[1].Sequence != 4 {
		t.Fatalf("unexpected sequences: %d, %d", entries[0].Sequence, entries[1].Sequence)
	}
	if got := feed.After(5, 10); len(got) != 0 {
		t.Fatalf("cursor at head must return nothing, got %d", len(got))
	}
}

func TestFeedRetentionWindow(t *testing.T) {
	feed := NewFeed(3)
	emitN(feed, 10)

	if feed.OldestSequence() != 8 {
		t.Fatalf("expected oldest sequence 8, got %d", feed.OldestSequence())
	}
	entries := feed.After(0, 0)
	if len(entries) != 3 {
		t.Fatalf("expected retention of 3, got %d", len(entries))
	}
	// Sequences keep growing even though old entries are dropped, so
	// consumers can detect the gap and re-sync.
	if entries[0].Sequence != 8 || entries[2].Sequence != 10 {
		t.Fatalf("unexpected retained window: %d..%d", entries[0].Sequence, entries[2].Sequence)
	}
}

func TestFeedClonesPayloads(t *testing.T) {
	feed := NewFeed(10)
	evt := &types.Event{Type: "rental.rented", Attributes: map[string]string{"id": "0"}}
	feed.Emit(testEvent{evt: evt})

	entries := feed.After(0, 0)
	entries[0].Event.Attributes["id"] = "tampered"
	if again := feed.After(0, 0); again[0].Event.Attributes["id"] != "0" {
		t.Fatal("feed entries must not alias caller-visible maps")
	}
}
