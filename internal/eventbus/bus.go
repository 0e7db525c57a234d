// ABOUTME: Registry of per-agency connection groups with listener fan-out
// ABOUTME: Subscribe opens the shared connection on demand; the last unsubscribe closes it

package eventbus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/deathbyknowledge/agent-hub-sub000/internal/event"
)

// Config tunes a Registry. Zero values fall back to defaults.
type Config struct {
	Policy Policy
	Clock  Clock
	// DedupeWindow and DedupeSize bound the per-group memory of delivered
	// event ids. A zero DedupeSize disables duplicate suppression.
	DedupeWindow time.Duration
	DedupeSize   int
}

// Registry owns every connection group. Create one per application and pass
// it to whatever needs live events.
type Registry struct {
	transport  Transport
	policy     Policy
	clock      Clock
	dedupeTTL  time.Duration
	dedupeSize int
	logger     *slog.Logger

	mu     sync.Mutex
	groups map[string]*group
}

// NewRegistry creates a registry that opens connections through transport.
// Pass nil logger for default.
func NewRegistry(transport Transport, cfg Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = RealClock()
	}
	ttl := cfg.DedupeWindow
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Registry{
		transport:  transport,
		policy:     cfg.Policy.withDefaults(),
		clock:      clock,
		dedupeTTL:  ttl,
		dedupeSize: cfg.DedupeSize,
		logger:     logger.With("component", "eventbus"),
		groups:     make(map[string]*group),
	}
}

// groupLocked returns the group for key, creating it if needed. Must be
// called with r.mu held.
func (r *Registry) groupLocked(key string) *group {
	g, ok := r.groups[key]
	if !ok {
		g = newGroup(key, r)
		r.groups[key] = g
		r.logger.Debug("group created", "group_key", key)
	}
	return g
}

// Subscribe registers onEvent for the group's events and returns a function
// that removes it. The first listener for a group opens the connection.
// The returned function is safe to call more than once.
func (r *Registry) Subscribe(groupKey string, onEvent func(event.Event)) (unsubscribe func()) {
	r.mu.Lock()
	g := r.groupLocked(groupKey)
	id, first := g.addListener(onEvent)
	r.mu.Unlock()

	r.logger.Debug("listener added", "group_key", groupKey, "listener_id", id)

	if first {
		g.connect()
	}

	var once sync.Once
	return func() {
		once.Do(func() { r.removeListener(groupKey, g, id) })
	}
}

func (r *Registry) removeListener(groupKey string, g *group, id string) {
	r.mu.Lock()
	empty := g.removeListener(id)
	if empty && g.idle() {
		r.dropGroupLocked(groupKey, g)
	}
	r.mu.Unlock()

	r.logger.Debug("listener removed", "group_key", groupKey, "listener_id", id)

	if empty {
		g.teardown()
	}
}

// dropGroupLocked forgets g unless groupKey already maps to a newer group,
// as it does when an unsubscribe from before Close runs after it.
func (r *Registry) dropGroupLocked(groupKey string, g *group) {
	if r.groups[groupKey] == g {
		delete(r.groups, groupKey)
	}
}

// SubscribeStatus calls onStatus immediately with the current status and
// again on every transition. It does not open a connection by itself.
func (r *Registry) SubscribeStatus(groupKey string, onStatus func(Status)) (unsubscribe func()) {
	r.mu.Lock()
	g := r.groupLocked(groupKey)
	id, current := g.addStatus(onStatus)
	r.mu.Unlock()

	g.notifyStatus(current, []statusEntry{{id: id, fn: onStatus}})

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			g.removeStatus(id)
			if g.idle() {
				r.dropGroupLocked(groupKey, g)
			}
		})
	}
}

// Status returns the group's current status. Unknown groups report disconnected.
func (r *Registry) Status(groupKey string) Status {
	r.mu.Lock()
	g, ok := r.groups[groupKey]
	r.mu.Unlock()

	if !ok {
		return Status{GroupKey: groupKey}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusLocked()
}

// Reconnect clears the intentional-close flag and attempt counter, closes any
// existing connection, and connects again if the group has listeners.
func (r *Registry) Reconnect(groupKey string) {
	r.mu.Lock()
	g, ok := r.groups[groupKey]
	r.mu.Unlock()

	if ok {
		g.reconnect()
	}
}

// Disconnect closes the group's connection and stops retries. Listeners stay
// registered; Reconnect resumes delivery.
func (r *Registry) Disconnect(groupKey string) {
	r.mu.Lock()
	g, ok := r.groups[groupKey]
	r.mu.Unlock()

	if ok {
		g.disconnect()
	}
}

// Groups returns the keys of groups that currently hold or are opening a
// connection.
func (r *Registry) Groups() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.groups))
	for k, g := range r.groups {
		if g.hasTransport() {
			keys = append(keys, k)
		}
	}
	return keys
}

// Close disconnects every group and forgets them.
func (r *Registry) Close() {
	r.mu.Lock()
	groups := make([]*group, 0, len(r.groups))
	for k, g := range r.groups {
		groups = append(groups, g)
		delete(r.groups, k)
	}
	r.mu.Unlock()

	for _, g := range groups {
		g.disconnect()
	}
	r.logger.Debug("registry closed")
}
