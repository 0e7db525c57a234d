// ABOUTME: Test doubles for the event bus: a scripted transport and a manual clock
// ABOUTME: Lets tests open, fail and feed connections deterministically

package eventbus

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/deathbyknowledge/agent-hub-sub000/internal/event"
)

type fakeTimer struct {
	clock   *fakeClock
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fakeClock records scheduled callbacks; tests fire them explicitly.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, delay: d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

// pending returns timers that have neither fired nor been stopped.
func (c *fakeClock) pending() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// delays returns the delay of every timer ever scheduled, in order.
func (c *fakeClock) delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.timers))
	for i, t := range c.timers {
		out[i] = t.delay
	}
	return out
}

// fireNext runs the oldest pending timer. Returns false if none is pending.
func (c *fakeClock) fireNext() bool {
	c.mu.Lock()
	var next *fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			next = t
			break
		}
	}
	if next == nil {
		c.mu.Unlock()
		return false
	}
	next.fired = true
	c.mu.Unlock()

	next.fn()
	return true
}

// fakeConn is one opened connection; the test drives its handlers.
type fakeConn struct {
	transport *fakeTransport
	key       string
	h         Handlers

	mu       sync.Mutex
	closed   bool
	closeErr error
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	err := c.closeErr
	c.mu.Unlock()

	c.h.OnClose(nil)
	return err
}

func (c *fakeConn) failClose(err error) {
	c.mu.Lock()
	c.closeErr = err
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) open() { c.h.OnOpen() }

func (c *fakeConn) fail(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.h.OnClose(err)
}

func (c *fakeConn) emit(ev event.Event) { c.h.OnEvent(ev) }

type fakeTransport struct {
	mu      sync.Mutex
	conns   []*fakeConn
	openErr error
	// autoOpen opens each connection as soon as it is created.
	autoOpen bool
}

func (t *fakeTransport) Open(key string, h Handlers) (Conn, error) {
	t.mu.Lock()
	if t.openErr != nil {
		err := t.openErr
		t.mu.Unlock()
		return nil, err
	}
	c := &fakeConn{transport: t, key: key, h: h}
	t.conns = append(t.conns, c)
	auto := t.autoOpen
	t.mu.Unlock()

	if auto {
		c.open()
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

// live counts connections for key that have not been closed.
func (t *fakeTransport) live(key string) int {
	t.mu.Lock()
	conns := append([]*fakeConn(nil), t.conns...)
	t.mu.Unlock()

	n := 0
	for _, c := range conns {
		if c.key == key && !c.isClosed() {
			n++
		}
	}
	return n
}

var errDropped = errors.New("connection reset by peer")

func makeEvent(id, entity string, typ event.Type) event.Event {
	return event.Event{
		ID:        id,
		Type:      typ,
		EntityID:  entity,
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Data:      json.RawMessage(`{}`),
	}
}

func newTestRegistry(t *fakeTransport, clock *fakeClock) *Registry {
	return NewRegistry(t, Config{Clock: clock, DedupeSize: 64}, nil)
}
