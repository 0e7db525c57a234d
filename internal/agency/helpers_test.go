// ABOUTME: Test doubles for the agency client: an in-memory hub and a scripted transport
// ABOUTME: Connections open immediately unless deferred; tests push events and drop them by hand

package agency

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/deathbyknowledge/agent-hub-sub000/internal/event"
	"github.com/deathbyknowledge/agent-hub-sub000/internal/eventbus"
	"github.com/deathbyknowledge/agent-hub-sub000/internal/hubapi"
	"github.com/deathbyknowledge/agent-hub-sub000/internal/store"
)

var base = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func ev(id, entity string, typ event.Type, offset time.Duration, data string) event.Event {
	if data == "" {
		data = "{}"
	}
	return event.Event{
		ID:        id,
		Type:      typ,
		EntityID:  entity,
		Timestamp: base.Add(offset),
		Data:      json.RawMessage(data),
	}
}

type invocation struct {
	agencyID string
	entityID string
	payload  any
}

type fakeHub struct {
	mu        sync.Mutex
	histories map[string][]event.Event
	invokes   []invocation
	invokeErr error
	listErr   error
	ack       *hubapi.Ack
}

func newFakeHub() *fakeHub {
	return &fakeHub{histories: make(map[string][]event.Event)}
}

func (h *fakeHub) add(events ...event.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range events {
		h.histories[e.EntityID] = append(h.histories[e.EntityID], e)
	}
}

func (h *fakeHub) ListEntities(ctx context.Context, agencyID string) ([]event.EntitySummary, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listErr != nil {
		return nil, h.listErr
	}
	var out []event.EntitySummary
	for id := range h.histories {
		out = append(out, event.EntitySummary{ID: id})
	}
	return out, nil
}

func (h *fakeHub) GetEntityHistory(ctx context.Context, agencyID, entityID string) ([]event.Event, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	events, ok := h.histories[entityID]
	if !ok {
		return nil, fmt.Errorf("entity %s: %w", entityID, hubapi.ErrNotFound)
	}
	return append([]event.Event(nil), events...), nil
}

func (h *fakeHub) Invoke(ctx context.Context, agencyID, entityID string, payload any) (*hubapi.Ack, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.invokes = append(h.invokes, invocation{agencyID, entityID, payload})
	if h.invokeErr != nil {
		return nil, h.invokeErr
	}
	if h.ack != nil {
		return h.ack, nil
	}
	return &hubapi.Ack{OK: true, Status: "running"}, nil
}

func (h *fakeHub) invocations() []invocation {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]invocation(nil), h.invokes...)
}

type fakeConn struct {
	h eventbus.Handlers

	mu     sync.Mutex
	closed bool
}

func (c *fakeConn) Close() error {
	if c.markClosed() {
		c.h.OnClose(nil)
	}
	return nil
}

func (c *fakeConn) drop(err error) {
	if c.markClosed() {
		c.h.OnClose(err)
	}
}

func (c *fakeConn) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	return true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) emit(e event.Event) { c.h.OnEvent(e) }

// open completes the handshake of a deferred connection.
func (c *fakeConn) open() { c.h.OnOpen() }

type fakeTransport struct {
	mu    sync.Mutex
	conns []*fakeConn
	// deferOpen leaves new connections mid-handshake until open is called.
	deferOpen bool
}

func (t *fakeTransport) Open(agencyID string, h eventbus.Handlers) (eventbus.Conn, error) {
	c := &fakeConn{h: h}
	t.mu.Lock()
	t.conns = append(t.conns, c)
	deferred := t.deferOpen
	t.mu.Unlock()

	if !deferred {
		h.OnOpen()
	}
	return c, nil
}

func (t *fakeTransport) opened() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

func (t *fakeTransport) last() *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

type fixture struct {
	hub       *fakeHub
	transport *fakeTransport
	cache     *store.MockStore
	client    *Client
}

// newFixture builds a client whose retries never fire on their own.
func newFixture(t *testing.T, withCache bool) *fixture {
	t.Helper()
	f := &fixture{hub: newFakeHub(), transport: &fakeTransport{}}
	opts := Options{
		Hub:       f.hub,
		Transport: f.transport,
		Bus: eventbus.Config{
			Policy: eventbus.Policy{BaseDelay: time.Hour, MaxDelay: time.Hour},
		},
		Concurrency: 2,
	}
	if withCache {
		f.cache = store.NewMockStore()
		opts.Cache = f.cache
	}
	f.client = New(opts, nil)
	t.Cleanup(func() { _ = f.client.Close() })
	return f
}
