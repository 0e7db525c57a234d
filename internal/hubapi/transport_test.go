// ABOUTME: Tests for the WebSocket transport against an in-process hub
// ABOUTME: Covers handshake auth, event decoding, batch frames and close reporting

package hubapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deathbyknowledge/agent-hub-sub000/internal/event"
	"github.com/deathbyknowledge/agent-hub-sub000/internal/eventbus"
)

type recorder struct {
	opened chan struct{}
	events chan event.Event
	closed chan error
}

func newRecorder() *recorder {
	return &recorder{
		opened: make(chan struct{}, 1),
		events: make(chan event.Event, 16),
		closed: make(chan error, 1),
	}
}

func (r *recorder) handlers() eventbus.Handlers {
	return eventbus.Handlers{
		OnOpen:  func() { r.opened <- struct{}{} },
		OnEvent: func(ev event.Event) { r.events <- ev },
		OnClose: func(err error) { r.closed <- err },
	}
}

func wait[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting")
		var zero T
		return zero
	}
}

func frame(id, typ string) map[string]any {
	return map[string]any{
		"id":       id,
		"type":     typ,
		"entityId": "a1",
		"ts":       "2026-01-02T15:04:05Z",
		"data":     map[string]any{"step": 1},
	}
}

func TestTransport_DeliversEventsInOrder(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/agency/acme/events", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		_ = wsjson.Write(ctx, conn, frame("e1", "run.started"))
		_ = conn.Write(ctx, websocket.MessageText, []byte(`not json`))
		_ = wsjson.Write(ctx, conn, []any{frame("e2", "run.tick"), map[string]any{"type": "run.tick"}, frame("e3", "agent.completed")})

		<-release
		conn.Close(websocket.StatusNormalClosure, "done")
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Token: "secret"}, nil)
	rec := newRecorder()

	_, err := c.Transport().Open("acme", rec.handlers())
	require.NoError(t, err)

	wait(t, rec.opened)
	var ids []string
	for range 3 {
		ids = append(ids, wait(t, rec.events).ID)
	}
	assert.Equal(t, []string{"e1", "e2", "e3"}, ids)

	close(release)
	assert.ErrorIs(t, wait(t, rec.closed), ErrClosedByHub)
}

func TestTransport_CloseReportsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		// Hold the stream open until the client goes away.
		_, _, _ = conn.Read(context.Background())
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL}, nil)
	rec := newRecorder()

	conn, err := c.Transport().Open("acme", rec.handlers())
	require.NoError(t, err)
	wait(t, rec.opened)

	require.NoError(t, conn.Close())
	assert.NoError(t, wait(t, rec.closed))
}

func TestTransport_DialFailureReportsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such agency", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL}, nil)
	rec := newRecorder()

	_, err := c.Transport().Open("acme", rec.handlers())
	require.NoError(t, err)

	assert.Error(t, wait(t, rec.closed))
	assert.Empty(t, rec.opened)
}
