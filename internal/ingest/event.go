package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"garden-push-backend/internal/model"
)

// wireEvent is the JSON document the sensor publishes on the broker topic.
type wireEvent struct {
	State     string        `json:"stato"`
	Family    string        `json:"famiglia"`
	Timestamp wireTimestamp `json:"timestamp"`
}

// wireTimestamp accepts either an RFC3339 string or unix epoch milliseconds,
// matching what the sensor firmware has published over time.
type wireTimestamp struct {
	time.Time
}

func (t *wireTimestamp) UnmarshalJSON(data []byte) error {
	var millis int64
	if err := json.Unmarshal(data, &millis); err == nil {
		t.Time = time.UnixMilli(millis)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp is neither a number nor a string: %w", err)
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp format %q", s)
}

// DecodeEvent parses a raw broker payload into an OccupancyEvent.
func DecodeEvent(payload []byte) (model.OccupancyEvent, error) {
	var raw wireEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return model.OccupancyEvent{}, fmt.Errorf("malformed event payload: %w", err)
	}

	state := model.GardenState(raw.State)
	if !state.Valid() {
		return model.OccupancyEvent{}, fmt.Errorf("unknown stato %q", raw.State)
	}
	if raw.Family == "" {
		return model.OccupancyEvent{}, fmt.Errorf("missing famiglia")
	}
	if raw.Timestamp.IsZero() {
		return model.OccupancyEvent{}, fmt.Errorf("missing timestamp")
	}

	return model.OccupancyEvent{
		Family:    raw.Family,
		State:     state,
		Timestamp: raw.Timestamp.Time,
	}, nil
}
