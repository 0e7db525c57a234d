// ABOUTME: Tests for the hub REST client against an httptest server
// ABOUTME: Covers list shapes, history decoding, invoke acks and API errors

package hubapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deathbyknowledge/agent-hub-sub000/internal/event"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Options{BaseURL: srv.URL + "/", Token: "secret"}, nil)
}

func TestListEntities_BareArrayAndWrapped(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bare", `[{"id":"a1","kind":"agent"},{"id":"a2"}]`},
		{"wrapped", `{"agents":[{"id":"a1","kind":"agent"},{"id":"a2"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/agency/acme/agents", r.URL.Path)
				assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
				w.Header().Set("Content-Type", "application/json")
				io.WriteString(w, tt.body)
			}))

			entities, err := c.ListEntities(t.Context(), "acme")
			require.NoError(t, err)
			require.Len(t, entities, 2)
			assert.Equal(t, "a1", entities[0].ID)
			assert.Equal(t, "agent", entities[0].Kind)
		})
	}
}

func TestGetEntityHistory_DecodesAndDropsMalformed(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/agency/acme/agent/a1/events", r.URL.Path)
		io.WriteString(w, `{"events":[
			{"id":"e1","type":"run.started","ts":"2026-01-02T15:04:05Z"},
			{"id":"e2","type":"run.tick","entityId":"a1","timestamp":"2026-01-02T15:04:06Z","data":{"step":1}},
			{"id":"bad","type":"run.tick","entityId":"a1"},
			"garbage"
		]}`)
	}))

	events, err := c.GetEntityHistory(t.Context(), "acme", "a1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "a1", events[0].EntityID, "entity id defaults to the requested entity")
	assert.Equal(t, event.TypeRunTick, events[1].Type)
	assert.Equal(t, int64(1), events[1].Field("step").Int())
}

func TestGetEntityHistory_NotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":{"message":"agent not initialized"}}`)
	}))

	_, err := c.GetEntityHistory(t.Context(), "acme", "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "agent not initialized", apiErr.Message)
}

func TestInvoke(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/agency/acme/agent/a1/invoke", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["message"])

		io.WriteString(w, `{"ok":true,"runId":"run-9"}`)
	}))

	ack, err := c.Invoke(t.Context(), "acme", "a1", map[string]string{"message": "hello"})
	require.NoError(t, err)
	assert.True(t, ack.OK)
	assert.Equal(t, "run-9", ack.RunID)
}

func TestInvoke_ServerError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent busy", http.StatusConflict)
	}))

	_, err := c.Invoke(t.Context(), "acme", "a1", map[string]string{"message": "hello"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "agent busy", apiErr.Message)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestStreamURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://hub.local:8080", "ws://hub.local:8080/agency/acme%20co/events"},
		{"https://hub.example.com/api/", "wss://hub.example.com/api/agency/acme%20co/events"},
	}
	for _, tt := range tests {
		c := NewClient(Options{BaseURL: tt.base}, nil)
		got, err := c.StreamURL("acme co")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := NewClient(Options{BaseURL: "ftp://hub"}, nil).StreamURL("acme")
	assert.Error(t, err)
}
