// ABOUTME: Event wire type for the agent-hub live stream and history endpoints
// ABOUTME: Handles decoding with validation and timestamp ordering

package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrMalformed is returned when a payload cannot be decoded into a usable event.
var ErrMalformed = errors.New("malformed event")

// Type names what happened to an entity.
type Type string

const (
	TypeRunStarted   Type = "run.started"
	TypeRunTick      Type = "run.tick"
	TypeRunPaused    Type = "run.paused"
	TypeRunResumed   Type = "run.resumed"
	TypeRunCompleted Type = "agent.completed"
	TypeRunError     Type = "run.error"
	TypeRunCanceled  Type = "run.canceled"

	// TypeRunCompletedAlias is emitted by older hubs.
	TypeRunCompletedAlias Type = "run.completed"

	TypeUserMessage        Type = "user.message"
	TypeSystemMessage      Type = "system.message"
	TypeAssistantMessage   Type = "assistant.message"
	TypeAssistantToolCalls Type = "assistant.tool_calls"
	TypeToolResult         Type = "tool.result"
	TypeToolError          Type = "tool.error"

	TypeSpawned Type = "agent.spawned"
)

// Event is a discrete, timestamped fact about one entity.
type Event struct {
	ID         string          `json:"id,omitempty"`
	Type       Type            `json:"type"`
	EntityID   string          `json:"entityId"`
	EntityKind string          `json:"entityKind,omitempty"`
	Timestamp  time.Time       `json:"ts"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// wireEvent mirrors Event with the timestamp left as text so both "ts" and
// the legacy "timestamp" key can be accepted.
type wireEvent struct {
	ID         string          `json:"id"`
	Type       Type            `json:"type"`
	EntityID   string          `json:"entityId"`
	EntityKind string          `json:"entityKind"`
	TS         string          `json:"ts"`
	Timestamp  string          `json:"timestamp"`
	Data       json.RawMessage `json:"data"`
}

// UnmarshalJSON accepts either "ts" or "timestamp" in RFC 3339 form.
func (e *Event) UnmarshalJSON(b []byte) error {
	var w wireEvent
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	raw := w.TS
	if raw == "" {
		raw = w.Timestamp
	}

	var ts time.Time
	if raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return fmt.Errorf("parsing timestamp %q: %w", raw, err)
		}
		ts = parsed
	}

	*e = Event{
		ID:         w.ID,
		Type:       w.Type,
		EntityID:   w.EntityID,
		EntityKind: w.EntityKind,
		Timestamp:  ts,
		Data:       w.Data,
	}
	return nil
}

// Decode parses a single event frame and checks the fields every consumer relies on.
func Decode(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Validate reports whether the event has a type, an entity and a timestamp.
func (e Event) Validate() error {
	switch {
	case e.Type == "":
		return fmt.Errorf("%w: missing type", ErrMalformed)
	case e.EntityID == "":
		return fmt.Errorf("%w: missing entityId", ErrMalformed)
	case e.Timestamp.IsZero():
		return fmt.Errorf("%w: missing timestamp", ErrMalformed)
	}
	if len(e.Data) > 0 && !json.Valid(e.Data) {
		return fmt.Errorf("%w: data is not valid JSON", ErrMalformed)
	}
	return nil
}

// IsStatus reports whether the type drives run status.
func (t Type) IsStatus() bool {
	switch t {
	case TypeRunStarted, TypeRunTick, TypeRunPaused, TypeRunResumed,
		TypeRunCompleted, TypeRunCompletedAlias, TypeRunError, TypeRunCanceled:
		return true
	}
	return false
}

// SortByTime orders events by timestamp ascending. Events with equal
// timestamps keep their relative order.
func SortByTime(events []Event) {
	slices.SortStableFunc(events, func(a, b Event) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
}
