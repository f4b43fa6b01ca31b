// Package ledger tracks the last announced stream per broadcaster and decides
// whether a live stream should be announced again. Entries are never deleted;
// both fields are overwritten whenever an announcement is recorded.
package ledger

import (
	"context"
	"time"
)

// DefaultRenewWindow is how long a broadcaster's stream id must stay unchanged
// before the same broadcast is announced again.
const DefaultRenewWindow = time.Hour

// Entry records the last announcement made for one broadcaster.
type Entry struct {
	BroadcasterID string
	StreamID      string
	AnnouncedAt   time.Time
}

// Store persists entries keyed by broadcaster id. Put is an atomic per-key
// upsert: a concurrent Get never observes a partially written entry.
type Store interface {
	Get(ctx context.Context, broadcasterID string) (Entry, bool, error)
	Put(ctx context.Context, e Entry) error
}

// Ledger applies the re-announcement policy on top of a Store.
type Ledger struct {
	store       Store
	renewWindow time.Duration
}

// New returns a Ledger over store. renewWindow <= 0 selects DefaultRenewWindow.
func New(store Store, renewWindow time.Duration) *Ledger {
	if renewWindow <= 0 {
		renewWindow = DefaultRenewWindow
	}
	return &Ledger{store: store, renewWindow: renewWindow}
}

// Eligible reports whether the stream should be announced now. Eligible iff:
// no entry exists for the broadcaster, OR the stream id differs from the last
// recorded one (a restarted broadcast is always worth announcing), OR the
// stream id matches and more than the renew window has elapsed since the last
// announcement. Eligible never mutates the store; Record is a separate step.
func (l *Ledger) Eligible(ctx context.Context, broadcasterID, streamID string, now time.Time) (bool, error) {
	e, ok, err := l.store.Get(ctx, broadcasterID)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	if e.StreamID != streamID {
		return true, nil
	}
	return now.Sub(e.AnnouncedAt) > l.renewWindow, nil
}

// Record upserts the broadcaster's entry with the given stream id and
// timestamp. Call exactly once per successful announcement decision; recording
// a stream that was filtered out for other reasons corrupts future
// eligibility.
func (l *Ledger) Record(ctx context.Context, broadcasterID, streamID string, now time.Time) error {
	return l.store.Put(ctx, Entry{BroadcasterID: broadcasterID, StreamID: streamID, AnnouncedAt: now})
}
