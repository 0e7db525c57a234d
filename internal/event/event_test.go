// ABOUTME: Tests for event decoding, validation, ordering and keys
// ABOUTME: Covers the ts/timestamp alias, malformed frames and fingerprint stability

package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_ValidFrame(t *testing.T) {
	raw := []byte(`{"id":"e1","type":"run.tick","entityId":"a1","entityKind":"agent","ts":"2026-01-02T15:04:05.5Z","data":{"step":3}}`)

	ev, err := Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, "e1", ev.ID)
	assert.Equal(t, TypeRunTick, ev.Type)
	assert.Equal(t, "a1", ev.EntityID)
	assert.Equal(t, "agent", ev.EntityKind)
	assert.Equal(t, int64(3), ev.Field("step").Int())
	assert.Equal(t, 500*time.Millisecond, time.Duration(ev.Timestamp.Nanosecond()))
}

func TestDecode_LegacyTimestampKey(t *testing.T) {
	raw := []byte(`{"type":"run.started","entityId":"a1","timestamp":"2026-01-02T15:04:05Z"}`)

	ev, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, 2026, ev.Timestamp.Year())
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{{`},
		{"missing type", `{"entityId":"a1","ts":"2026-01-02T15:04:05Z"}`},
		{"missing entity", `{"type":"run.tick","ts":"2026-01-02T15:04:05Z"}`},
		{"missing timestamp", `{"type":"run.tick","entityId":"a1"}`},
		{"bad timestamp", `{"type":"run.tick","entityId":"a1","ts":"yesterday"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestEvent_MarshalRoundTripUsesTS(t *testing.T) {
	ev := Event{
		Type:      TypeUserMessage,
		EntityID:  "a1",
		Timestamp: time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC),
		Data:      json.RawMessage(`{"content":"hi"}`),
	}

	b, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"ts":"2026-01-02T15:04:05Z"`)
}

func TestChildID(t *testing.T) {
	ev := Event{Type: TypeSpawned, Data: json.RawMessage(`{"child_id":"b1"}`)}
	assert.Equal(t, "b1", ev.ChildID())

	ev = Event{Type: TypeSpawned, Data: json.RawMessage(`{"childId":"c1","child_id":"ignored"}`)}
	assert.Equal(t, "c1", ev.ChildID())

	other := Event{Type: TypeRunTick, Data: json.RawMessage(`{"childId":"b1"}`)}
	assert.Empty(t, other.ChildID())
}

func TestKey_ServerIDWins(t *testing.T) {
	a := Event{ID: "evt-1", Type: TypeRunTick, EntityID: "a1"}
	b := Event{ID: "evt-1", Type: TypeRunPaused, EntityID: "a2"}
	assert.Equal(t, a.Key(), b.Key())
}

func TestKey_FingerprintIgnoresWhitespace(t *testing.T) {
	ts := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	a := Event{Type: TypeAssistantMessage, EntityID: "a1", Timestamp: ts, Data: json.RawMessage(`{"content": "hi"}`)}
	b := Event{Type: TypeAssistantMessage, EntityID: "a1", Timestamp: ts.In(time.FixedZone("x", 3600)), Data: json.RawMessage(`{"content":"hi"}`)}
	c := Event{Type: TypeAssistantMessage, EntityID: "a1", Timestamp: ts, Data: json.RawMessage(`{"content":"bye"}`)}

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestSortByTime_Stable(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []Event{
		{ID: "late", Timestamp: base.Add(2 * time.Second)},
		{ID: "tie-1", Timestamp: base.Add(time.Second)},
		{ID: "early", Timestamp: base},
		{ID: "tie-2", Timestamp: base.Add(time.Second)},
	}

	SortByTime(events)

	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	assert.Equal(t, []string{"early", "tie-1", "tie-2", "late"}, ids)
}

func TestType_IsStatus(t *testing.T) {
	assert.True(t, TypeRunTick.IsStatus())
	assert.True(t, TypeRunCompletedAlias.IsStatus())
	assert.False(t, TypeUserMessage.IsStatus())
	assert.False(t, Type("custom.debug").IsStatus())
}
