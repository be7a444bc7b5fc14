package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"garden-push-backend/internal/model"
)

// fakeLedger returns a canned latest record per (family, state) pair.
type fakeLedger struct {
	records map[string]*model.OccupancyRecord
	err     error
}

func (f *fakeLedger) LatestRecord(_ context.Context, family string, state model.GardenState) (*model.OccupancyRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records[family+"|"+string(state)], nil
}

func evt(family string, state model.GardenState, ts time.Time) model.OccupancyEvent {
	return model.OccupancyEvent{Family: family, State: state, Timestamp: ts}
}

func TestAccept_ExactRepeatSuppressed(t *testing.T) {
	d := New(&fakeLedger{}, 5*time.Minute)
	ts := time.Date(2026, 8, 20, 18, 0, 0, 0, time.UTC)

	e := evt("Rossi", model.StateOccupied, ts)
	assert.True(t, d.Accept(context.Background(), e))
	assert.False(t, d.Accept(context.Background(), e), "identical event must be rejected")

	// A different timestamp is a different event.
	assert.True(t, d.Accept(context.Background(), evt("Rossi", model.StateOccupied, ts.Add(10*time.Minute))))
}

func TestAccept_WindowSuppressed(t *testing.T) {
	ts := time.Date(2026, 8, 20, 18, 0, 0, 0, time.UTC)
	ledger := &fakeLedger{records: map[string]*model.OccupancyRecord{
		"Rossi|occupato": {Family: "Rossi", State: model.StateOccupied, Timestamp: ts},
	}}
	d := New(ledger, 5*time.Minute)

	// Same (family, state) 4 minutes later: inside the window.
	assert.False(t, d.Accept(context.Background(), evt("Rossi", model.StateOccupied, ts.Add(4*time.Minute))))

	// 6 minutes later: outside the window.
	assert.True(t, d.Accept(context.Background(), evt("Rossi", model.StateOccupied, ts.Add(6*time.Minute))))
}

func TestAccept_WindowIsSymmetric(t *testing.T) {
	ts := time.Date(2026, 8, 20, 18, 0, 0, 0, time.UTC)
	ledger := &fakeLedger{records: map[string]*model.OccupancyRecord{
		"Rossi|occupato": {Family: "Rossi", State: model.StateOccupied, Timestamp: ts},
	}}
	d := New(ledger, 5*time.Minute)

	// An event timestamped shortly before the ledgered record is still a
	// duplicate (out-of-order retransmission).
	assert.False(t, d.Accept(context.Background(), evt("Rossi", model.StateOccupied, ts.Add(-3*time.Minute))))
}

func TestAccept_DifferentStateNotSuppressed(t *testing.T) {
	ts := time.Date(2026, 8, 20, 18, 0, 0, 0, time.UTC)
	ledger := &fakeLedger{records: map[string]*model.OccupancyRecord{
		"Rossi|occupato": {Family: "Rossi", State: model.StateOccupied, Timestamp: ts},
	}}
	d := New(ledger, 5*time.Minute)

	// libero right after occupato is a genuine transition.
	assert.True(t, d.Accept(context.Background(), evt("Rossi", model.StateFree, ts.Add(time.Minute))))
}

func TestAccept_DifferentFamilyNotSuppressed(t *testing.T) {
	ts := time.Date(2026, 8, 20, 18, 0, 0, 0, time.UTC)
	ledger := &fakeLedger{records: map[string]*model.OccupancyRecord{
		"Rossi|occupato": {Family: "Rossi", State: model.StateOccupied, Timestamp: ts},
	}}
	d := New(ledger, 5*time.Minute)

	assert.True(t, d.Accept(context.Background(), evt("Verdi", model.StateOccupied, ts.Add(time.Minute))))
}

func TestAccept_LedgerErrorAccepts(t *testing.T) {
	d := New(&fakeLedger{err: errors.New("storage unavailable")}, 5*time.Minute)

	assert.True(t, d.Accept(context.Background(), evt("Rossi", model.StateOccupied, time.Now())))
}

func TestReset(t *testing.T) {
	d := New(&fakeLedger{}, 5*time.Minute)
	e := evt("Rossi", model.StateOccupied, time.Date(2026, 8, 20, 18, 0, 0, 0, time.UTC))

	assert.True(t, d.Accept(context.Background(), e))
	assert.False(t, d.Accept(context.Background(), e))

	d.Reset()
	assert.True(t, d.Accept(context.Background(), e), "after reset the same event must be novel again")
}
