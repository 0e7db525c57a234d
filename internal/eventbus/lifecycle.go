// ABOUTME: Connection lifecycle for one group: open, retry with backoff, close
// ABOUTME: Owns the single transport per group and ignores callbacks from replaced connections

package eventbus

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deathbyknowledge/agent-hub-sub000/internal/dedupe"
	"github.com/deathbyknowledge/agent-hub-sub000/internal/event"
)

var errClosedBeforeOpen = errors.New("connection closed before open")

// attempt is one call to Transport.Open. Callbacks carry their attempt so
// the group can tell a live connection from one it already replaced.
type attempt struct {
	conn   Conn
	opened bool
	closed bool
}

type listenerEntry struct {
	id string
	fn func(event.Event)
}

type statusEntry struct {
	id string
	fn func(Status)
}

// group is the per-key connection record. All fields are guarded by mu.
type group struct {
	key       string
	transport Transport
	policy    Policy
	clock     Clock
	dedupe    *dedupe.Window
	logger    *slog.Logger

	mu          sync.Mutex
	current     *attempt
	listeners   []listenerEntry
	statuses    []statusEntry
	attempts    int
	intentional bool
	exhausted   bool
	connected   bool
	lastErr     error
	retryTimer  Timer
	retryDelay  time.Duration
}

func newGroup(key string, r *Registry) *group {
	g := &group{
		key:       key,
		transport: r.transport,
		policy:    r.policy,
		clock:     r.clock,
		logger:    r.logger.With("group_key", key),
	}
	if r.dedupeSize > 0 {
		g.dedupe = dedupe.New(r.dedupeTTL, r.dedupeSize)
	}
	return g
}

// statusLocked builds the current status. Must be called with mu held.
func (g *group) statusLocked() Status {
	s := Status{
		GroupKey:  g.key,
		Connected: g.connected,
		Attempt:   g.attempts,
		Exhausted: g.exhausted,
		LastError: g.lastErr,
	}
	if g.retryTimer != nil {
		s.RetryIn = g.retryDelay
	}
	return s
}

// notifyStatus sends s to every status listener. Must be called without mu.
func (g *group) notifyStatus(s Status, targets []statusEntry) {
	for _, t := range targets {
		func() {
			defer func() {
				if r := recover(); r != nil {
					g.logger.Warn("status listener panicked", "panic", r)
				}
			}()
			t.fn(s)
		}()
	}
}

// snapshotStatusLocked returns the status and a copy of the status listeners.
func (g *group) snapshotStatusLocked() (Status, []statusEntry) {
	targets := make([]statusEntry, len(g.statuses))
	copy(targets, g.statuses)
	return g.statusLocked(), targets
}

// connect opens a transport unless one exists or an attempt is in flight.
func (g *group) connect() {
	g.mu.Lock()
	if g.current != nil {
		g.mu.Unlock()
		return
	}
	g.stopRetryLocked()
	a := &attempt{}
	g.current = a
	g.mu.Unlock()

	g.logger.Debug("opening connection", "attempt", g.attemptCount())

	conn, err := g.transport.Open(g.key, Handlers{
		OnOpen:  func() { g.handleOpen(a) },
		OnEvent: func(ev event.Event) { g.handleEvent(a, ev) },
		OnClose: func(err error) { g.handleClose(a, err) },
	})
	if err != nil {
		g.handleClose(a, err)
		return
	}

	g.mu.Lock()
	a.conn = conn
	stale := g.current != a && !a.closed
	g.mu.Unlock()

	// Disconnected or replaced while Open was running.
	if stale {
		if err := conn.Close(); err != nil {
			g.logger.Debug("closing connection", "error", err)
		}
	}
}

func (g *group) attemptCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attempts
}

func (g *group) handleOpen(a *attempt) {
	g.mu.Lock()
	if g.current != a || a.closed {
		g.mu.Unlock()
		return
	}
	a.opened = true
	g.attempts = 0
	g.exhausted = false
	g.connected = true
	g.lastErr = nil
	s, targets := g.snapshotStatusLocked()
	g.mu.Unlock()

	g.logger.Info("connection open")
	g.notifyStatus(s, targets)
}

func (g *group) handleEvent(a *attempt, ev event.Event) {
	g.mu.Lock()
	if g.current != a {
		g.mu.Unlock()
		return
	}
	targets := make([]listenerEntry, len(g.listeners))
	copy(targets, g.listeners)
	g.mu.Unlock()

	if err := ev.Validate(); err != nil {
		g.logger.Warn("dropping malformed event", "error", err, "event_type", ev.Type)
		return
	}
	if g.dedupe != nil && ev.ID != "" && g.dedupe.Seen(ev.ID) {
		g.logger.Debug("dropping duplicate event", "event_id", ev.ID)
		return
	}

	for _, l := range targets {
		g.deliver(l, ev)
	}
}

func (g *group) deliver(l listenerEntry, ev event.Event) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Warn("listener panicked",
				"listener_id", l.id,
				"event_type", ev.Type,
				"entity_id", ev.EntityID,
				"panic", r)
		}
	}()
	l.fn(ev)
}

func (g *group) handleClose(a *attempt, err error) {
	g.mu.Lock()
	if a.closed {
		g.mu.Unlock()
		return
	}
	a.closed = true
	if g.current != a {
		g.mu.Unlock()
		return
	}
	g.current = nil
	wasConnected := g.connected
	g.connected = false
	if err == nil && !a.opened {
		err = errClosedBeforeOpen
	}
	g.lastErr = err

	if g.intentional || len(g.listeners) == 0 {
		s, targets := g.snapshotStatusLocked()
		g.mu.Unlock()
		if wasConnected {
			g.notifyStatus(s, targets)
		}
		return
	}

	g.attempts++
	if g.attempts >= g.policy.MaxAttempts {
		g.exhausted = true
		s, targets := g.snapshotStatusLocked()
		g.mu.Unlock()

		g.logger.Error("giving up on connection", "attempts", s.Attempt, "error", err)
		g.notifyStatus(s, targets)
		return
	}

	delay := g.policy.Delay(g.attempts - 1)
	g.scheduleRetryLocked(delay)
	s, targets := g.snapshotStatusLocked()
	g.mu.Unlock()

	g.logger.Info("connection closed, scheduling retry",
		"attempt", s.Attempt,
		"delay", delay,
		"error", err)
	g.notifyStatus(s, targets)
}

// scheduleRetryLocked arms the retry timer. Must be called with mu held.
func (g *group) scheduleRetryLocked(delay time.Duration) {
	g.stopRetryLocked()

	var timer Timer
	timer = g.clock.AfterFunc(delay, func() {
		g.mu.Lock()
		if g.retryTimer != timer {
			g.mu.Unlock()
			return
		}
		g.retryTimer = nil
		g.retryDelay = 0
		skip := g.intentional || len(g.listeners) == 0
		g.mu.Unlock()

		if !skip {
			g.connect()
		}
	})
	g.retryTimer = timer
	g.retryDelay = delay
}

// stopRetryLocked cancels any pending retry. Must be called with mu held.
func (g *group) stopRetryLocked() {
	if g.retryTimer != nil {
		g.retryTimer.Stop()
		g.retryTimer = nil
		g.retryDelay = 0
	}
}

// releaseLocked detaches the current attempt and returns its connection, if
// Open has already returned one. An attempt still inside Open is closed by
// connect once it notices it was replaced. Must be called with mu held.
func (g *group) releaseLocked() Conn {
	a := g.current
	g.current = nil
	if a == nil {
		return nil
	}
	return a.conn
}

// disconnect marks the close as intentional, cancels retries and closes the
// transport. It has no effect on listeners.
func (g *group) disconnect() {
	g.shutdown(false)
}

// teardown is disconnect for a group whose last listener just left. It does
// nothing if a new listener arrived in the meantime.
func (g *group) teardown() {
	g.shutdown(true)
}

func (g *group) shutdown(onlyIfIdle bool) {
	g.mu.Lock()
	if onlyIfIdle && len(g.listeners) > 0 {
		g.mu.Unlock()
		return
	}
	g.intentional = true
	g.stopRetryLocked()
	conn := g.releaseLocked()
	wasConnected := g.connected
	g.connected = false
	s, targets := g.snapshotStatusLocked()
	g.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			g.logger.Debug("closing connection", "error", err)
		}
	}
	if wasConnected {
		g.logger.Info("connection closed")
		g.notifyStatus(s, targets)
	}
}

// reconnect force-closes any connection, resets the attempt counter and the
// exhausted flag, and connects again if anyone is listening.
func (g *group) reconnect() {
	g.mu.Lock()
	g.intentional = false
	g.attempts = 0
	g.exhausted = false
	g.stopRetryLocked()
	conn := g.releaseLocked()
	g.connected = false
	hasListeners := len(g.listeners) > 0
	s, targets := g.snapshotStatusLocked()
	g.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			g.logger.Debug("closing connection", "error", err)
		}
	}
	g.notifyStatus(s, targets)

	if hasListeners {
		g.logger.Info("manual reconnect")
		g.connect()
	}
}

// addListener registers fn and reports whether it is the first listener.
func (g *group) addListener(fn func(event.Event)) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := uuid.New().String()
	g.listeners = append(g.listeners, listenerEntry{id: id, fn: fn})
	first := len(g.listeners) == 1
	if first {
		g.intentional = false
		g.attempts = 0
		g.exhausted = false
		if g.dedupe != nil {
			g.dedupe.Reset()
		}
	}
	return id, first
}

// removeListener drops the listener and reports whether none remain.
func (g *group) removeListener(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, l := range g.listeners {
		if l.id == id {
			g.listeners = append(g.listeners[:i], g.listeners[i+1:]...)
			break
		}
	}
	return len(g.listeners) == 0
}

func (g *group) addStatus(fn func(Status)) (string, Status) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := uuid.New().String()
	g.statuses = append(g.statuses, statusEntry{id: id, fn: fn})
	return id, g.statusLocked()
}

func (g *group) removeStatus(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, s := range g.statuses {
		if s.id == id {
			g.statuses = append(g.statuses[:i], g.statuses[i+1:]...)
			return
		}
	}
}

// idle reports whether the group has no listeners of either kind.
func (g *group) idle() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.listeners) == 0 && len(g.statuses) == 0
}

func (g *group) hasTransport() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current != nil
}
