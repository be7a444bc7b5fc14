// Package dedup suppresses repeated sensor events before they reach the
// ledger and the notification fan-out. The sensor retransmits and chatters;
// two genuinely distinct same-state events inside the window are deliberately
// merged.
package dedup

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"garden-push-backend/internal/model"
)

// LatestFinder looks up the newest ledgered record for a (family, state)
// pair. Satisfied by store.Store.
type LatestFinder interface {
	LatestRecord(ctx context.Context, family string, state model.GardenState) (*model.OccupancyRecord, error)
}

// Deduplicator decides whether an incoming event is novel. It owns the
// single-slot signature of the last accepted event; the time-window rule is
// checked against the ledger.
type Deduplicator struct {
	ledger LatestFinder
	window time.Duration

	mu            sync.Mutex
	lastSignature string
}

// New creates a Deduplicator with the given suppression window.
func New(ledger LatestFinder, window time.Duration) *Deduplicator {
	return &Deduplicator{ledger: ledger, window: window}
}

// Accept reports whether the event should be processed. On acceptance the
// event becomes the new last-seen signature. Both rules must pass:
//
//  1. the event is not an exact repeat of the last accepted one, and
//  2. no ledgered record with the same (family, state) lies within the window.
//
// A ledger lookup failure counts as acceptance: losing a notification to a
// transient storage error is worse than a rare duplicate.
func (d *Deduplicator) Accept(ctx context.Context, evt model.OccupancyEvent) bool {
	sig := signature(evt)

	d.mu.Lock()
	defer d.mu.Unlock()

	if sig == d.lastSignature {
		log.Printf("dedup: exact repeat suppressed (famiglia=%s stato=%s)", evt.Family, evt.State)
		return false
	}

	prev, err := d.ledger.LatestRecord(ctx, evt.Family, evt.State)
	if err != nil {
		log.Printf("dedup: ledger lookup failed, accepting event: %v", err)
	} else if prev != nil {
		delta := evt.Timestamp.Sub(prev.Timestamp)
		if delta < 0 {
			delta = -delta
		}
		if delta < d.window {
			log.Printf("dedup: same-state event within %s window suppressed (famiglia=%s stato=%s Δ=%s)",
				d.window, evt.Family, evt.State, delta)
			return false
		}
	}

	d.lastSignature = sig
	return true
}

// Reset clears the last-seen signature so the next event is treated as novel.
// Used by the administrative force-state path.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	d.lastSignature = ""
	d.mu.Unlock()
}

func signature(evt model.OccupancyEvent) string {
	return fmt.Sprintf("%s|%s|%s", evt.Family, evt.State, evt.Timestamp.UTC().Format(time.RFC3339Nano))
}
