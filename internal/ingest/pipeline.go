// Package ingest is the single place where a decoded sensor event becomes
// persisted history and an outgoing notification. Both the broker path and
// the administrative HTTP paths run through it.
package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"garden-push-backend/internal/dedup"
	"garden-push-backend/internal/model"
	"garden-push-backend/internal/notification"
	"garden-push-backend/internal/store"
)

// Pipeline drives decode → dedup → ledger → fan-out for occupancy events.
type Pipeline struct {
	store      store.Store
	dedup      *dedup.Deduplicator
	dispatcher *notification.Dispatcher
	// sensorZone is the sensor's local time zone, used to format timestamps on
	// the force-state path. The broker path formats in the process-local zone.
	sensorZone *time.Location
}

// New creates the ingestion pipeline.
func New(s store.Store, d *dedup.Deduplicator, disp *notification.Dispatcher, sensorZone *time.Location) *Pipeline {
	if sensorZone == nil {
		sensorZone = time.Local
	}
	return &Pipeline{store: s, dedup: d, dispatcher: disp, sensorZone: sensorZone}
}

// HandleMessage processes one raw broker payload. Malformed payloads and
// duplicates are logged and discarded; no failure here is fatal to the
// message loop.
func (p *Pipeline) HandleMessage(ctx context.Context, payload []byte) {
	evt, err := DecodeEvent(payload)
	if err != nil {
		log.Printf("discarding broker message: %v", err)
		return
	}

	if !p.dedup.Accept(ctx, evt) {
		return
	}

	p.processWithZone(ctx, evt, time.Local)
}

// ForceState is the administrative entry point: it bypasses decode and
// deduplication, resets the dedup slot so the next broker event is treated as
// novel, and runs the rest of the pipeline. A zero timestamp defaults to now.
func (p *Pipeline) ForceState(ctx context.Context, family string, state model.GardenState, timestamp time.Time) (*model.OccupancyRecord, notification.Result, error) {
	if !state.Valid() {
		return nil, notification.Result{}, fmt.Errorf("unknown stato %q", state)
	}
	if timestamp.IsZero() {
		timestamp = time.Now().In(p.sensorZone)
	}

	p.dedup.Reset()

	evt := model.OccupancyEvent{Family: family, State: state, Timestamp: timestamp}
	record, result := p.processWithZone(ctx, evt, p.sensorZone)
	return record, result, nil
}

// Notify sends a manual (title, body) notification without touching the
// ledger or dedup state.
func (p *Pipeline) Notify(ctx context.Context, title, body string) notification.Result {
	return p.dispatcher.Fanout(ctx, title, body)
}

func (p *Pipeline) processWithZone(ctx context.Context, evt model.OccupancyEvent, zone *time.Location) (*model.OccupancyRecord, notification.Result) {
	record, err := p.store.RecordTransition(ctx, evt)
	if err != nil {
		// The notification still goes out: subscribers care about the state
		// change more than the history row.
		log.Printf("failed to persist occupancy record: %v", err)
	}

	title, body := ComposeNotification(evt, zone)
	result := p.dispatcher.Fanout(ctx, title, body)
	return record, result
}

// ComposeNotification builds the human-readable notification for an event,
// formatting the timestamp in the given zone.
func ComposeNotification(evt model.OccupancyEvent, zone *time.Location) (title, body string) {
	at := evt.Timestamp.In(zone).Format("15:04:05")
	if evt.State == model.StateOccupied {
		title = "🚫 Giardino Occupato!"
		body = fmt.Sprintf("Il giardino è stato occupato da %s alle %s", evt.Family, at)
	} else {
		title = "✅ Giardino Libero!"
		body = fmt.Sprintf("Il giardino è stato liberato da %s alle %s", evt.Family, at)
	}
	return title, body
}
