package events

import (
	"sync"
	"time"

	"gearrent/core/types"
)

const defaultFeedRetention = 4096

// payloadCarrier is implemented by emitted events that wrap a concrete
// types.Event payload.
type payloadCarrier interface {
	Event() *types.Event
}

// SequencedEvent is a feed entry: the event payload plus the monotonically
// increasing sequence assigned at emission time.
type SequencedEvent struct {
	Sequence  uint64       `json:"sequence"`
	Timestamp int64        `json:"timestamp"`
	Event     *types.Event `json:"event"`
}

// Feed is an in-memory, append-only event log with bounded retention. It
// implements Emitter so the engine can publish into it directly, and serves
// cursor-based reads for pull consumers such as the display mirror.
type Feed struct {
	mu        sync.RWMutex
	retention int
	nextSeq   uint64
	entries   []SequencedEvent
	nowFn     func() int64
}

// NewFeed creates a feed retaining at most the given number of events. A
// non-positive retention selects the default window.
func NewFeed(retention int) *Feed {
	if retention <= 0 {
		retention = defaultFeedRetention
	}
	return &Feed{
		retention: retention,
		nextSeq:   1,
		nowFn:     func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the timestamp source. Intended for tests.
func (f *Feed) SetNowFunc(now func() int64) {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	f.mu.Lock()
	f.nowFn = now
	f.mu.Unlock()
}

// Emit appends the event to the feed. Events without a concrete payload are
// recorded with just their type so consumers still observe the transition.
func (f *Feed) Emit(evt Event) {
	if f == nil || evt == nil {
		return
	}
	payload := &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
	if carrier, ok := evt.(payloadCarrier); ok {
		if inner := carrier.Event(); inner != nil {
			payload = inner.Clone()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	entry := SequencedEvent{
		Sequence:  f.nextSeq,
		Timestamp: f.nowFn(),
		Event:     payload,
	}
	f.nextSeq++
	f.entries = append(f.entries, entry)
	if len(f.entries) > f.retention {
		f.entries = append([]SequencedEvent(nil), f.entries[len(f.entries)-f.retention:]...)
	}
}

// After returns up to limit events with a sequence strictly greater than seq.
func (f *Feed) After(seq uint64, limit int) []SequencedEvent {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if limit <= 0 {
		limit = len(f.entries)
	}
	out := make([]SequencedEvent, 0, limit)
	for _, entry := range f.entries {
		if entry.Sequence <= seq {
			continue
		}
		out = append(out, SequencedEvent{
			Sequence:  entry.Sequence,
			Timestamp: entry.Timestamp,
			Event:     entry.Event.Clone(),
		})
		if len(out) == limit {
			break
		}
	}
	return out
}

// LastSequence reports the sequence of the newest event, zero when empty.
func (f *Feed) LastSequence() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.nextSeq - 1
}

// OldestSequence reports the sequence of the oldest retained event, zero when
// empty. Consumers whose cursor is older than this have missed events and
// should re-sync from a snapshot.
func (f *Feed) OldestSequence() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.entries) == 0 {
		return 0
	}
	return f.entries[0].Sequence
}
