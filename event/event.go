package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"time"
)

// Common errors.
var (
	ErrNegativeDuration = errors.New("event duration must not be negative")
	ErrZeroTimestamp    = errors.New("event timestamp must be set")
)

// Event is a single timed observation. Events are values: merging or
// editing one produces a new Event rather than mutating a stored one.
type Event struct {
	// ID is assigned by the server; nil for events not yet stored.
	ID *int64

	// Timestamp is when the event started.
	Timestamp time.Time

	// Duration is how long the event lasted. Never negative.
	Duration time.Duration

	// Data is the semantic payload. Two events can only be merged when
	// their Data are equal.
	Data map[string]interface{}
}

// New creates an event with the given start, duration and payload.
func New(timestamp time.Time, duration time.Duration, data map[string]interface{}) Event {
	if data == nil {
		data = map[string]interface{}{}
	}
	return Event{
		Timestamp: timestamp,
		Duration:  duration,
		Data:      data,
	}
}

// End returns when the event ended.
func (e Event) End() time.Time {
	return e.Timestamp.Add(e.Duration)
}

// Validate checks the event can be sent to the server.
func (e Event) Validate() error {
	if e.Timestamp.IsZero() {
		return ErrZeroTimestamp
	}
	if e.Duration < 0 {
		return ErrNegativeDuration
	}
	return nil
}

// SameData reports whether two events carry equal payloads. Payloads are
// compared on their JSON encoding, so 1 and 1.0 are equal just as they are
// on the wire.
func (e Event) SameData(other Event) bool {
	a, errA := json.Marshal(normalizeData(e.Data))
	b, errB := json.Marshal(normalizeData(other.Data))
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// Clone returns a copy whose Data map can be modified independently.
func (e Event) Clone() Event {
	c := e
	if e.ID != nil {
		id := *e.ID
		c.ID = &id
	}
	c.Data = maps.Clone(e.Data)
	return c
}

// WithDuration returns a copy of the event with a different duration.
func (e Event) WithDuration(d time.Duration) Event {
	c := e.Clone()
	c.Duration = d
	return c
}

func normalizeData(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return map[string]interface{}{}
	}
	return data
}

// eventJSON is the wire representation: durations in float seconds.
type eventJSON struct {
	ID        *int64                 `json:"id,omitempty"`
	Timestamp string                 `json:"timestamp"`
	Duration  float64                `json:"duration"`
	Data      map[string]interface{} `json:"data"`
}

// MarshalJSON implements json.Marshaler.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{
		ID:        e.ID,
		Timestamp: e.Timestamp.Format(time.RFC3339Nano),
		Duration:  e.Duration.Seconds(),
		Data:      normalizeData(e.Data),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Event) UnmarshalJSON(data []byte) error {
	var j eventJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339Nano, j.Timestamp)
	if err != nil {
		return fmt.Errorf("event timestamp: %w", err)
	}
	e.ID = j.ID
	e.Timestamp = ts
	e.Duration = Seconds(j.Duration)
	e.Data = normalizeData(j.Data)
	return nil
}

// Seconds converts fractional seconds into a Duration, rounded to the
// nearest microsecond (the server's resolution).
func Seconds(s float64) time.Duration {
	us := math.Round(s * 1e6)
	return time.Duration(us) * time.Microsecond
}
