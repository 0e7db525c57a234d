// ABOUTME: Projector folds events into per-entity state with idempotent application
// ABOUTME: Keeps messages and trace ordered by timestamp and notifies watchers of changes

package projector

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deathbyknowledge/agent-hub-sub000/internal/event"
)

// entity is the mutable record behind an EntityState. Guarded by Projector.mu.
type entity struct {
	state EntityState
	// counter numbers messages. It only grows, even across rollbacks.
	counter uint64
	// applied maps event keys to the message id they produced, or "" for
	// events that produced no message.
	applied map[string]string
	// keyOf is the reverse of applied for messages.
	keyOf    map[string]string
	statusAt time.Time
}

func newEntity(id string) *entity {
	return &entity{
		state:   EntityState{EntityID: id, Status: StatusIdle},
		applied: make(map[string]string),
		keyOf:   make(map[string]string),
	}
}

func (e *entity) nextMessageID(kind MessageKind) string {
	id := fmt.Sprintf("%s:%s:%d", e.state.EntityID, kind, e.counter)
	e.counter++
	return id
}

// insertMessage places m after every message with an equal or earlier
// timestamp.
func (e *entity) insertMessage(m Message) {
	msgs := e.state.Messages
	i := sort.Search(len(msgs), func(i int) bool {
		return msgs[i].Timestamp.After(m.Timestamp)
	})
	e.state.Messages = slices.Insert(msgs, i, m)
}

func (e *entity) insertTrace(ev event.Event) {
	trace := e.state.Trace
	i := sort.Search(len(trace), func(i int) bool {
		return trace[i].Timestamp.After(ev.Timestamp)
	})
	e.state.Trace = slices.Insert(trace, i, ev)
}

// supersede drops the oldest pending user message with the given content.
func (e *entity) supersede(content string) {
	for i, m := range e.state.Messages {
		if m.Pending && m.Kind == KindUser && m.Content == content {
			e.state.Messages = slices.Delete(e.state.Messages, i, i+1)
			return
		}
	}
}

type watcher struct {
	id string
	fn func(entityID string)
}

// Projector holds the projections of every entity it has seen events for.
// It is safe for concurrent use.
type Projector struct {
	mu       sync.Mutex
	entities map[string]*entity
	watchers []watcher
	logger   *slog.Logger
}

// New creates an empty projector. Pass nil logger for default.
func New(logger *slog.Logger) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Projector{
		entities: make(map[string]*entity),
		logger:   logger.With("component", "projector"),
	}
}

func (p *Projector) entityLocked(id string) *entity {
	e, ok := p.entities[id]
	if !ok {
		e = newEntity(id)
		p.entities[id] = e
	}
	return e
}

// Apply folds one event into its entity's state. It returns false when the
// event was already applied or is malformed.
func (p *Projector) Apply(ev event.Event) bool {
	if err := ev.Validate(); err != nil {
		p.logger.Warn("ignoring malformed event", "error", err, "event_type", ev.Type)
		return false
	}

	p.mu.Lock()
	changed := p.applyLocked(ev)
	watchers := p.watchersLocked()
	p.mu.Unlock()

	if changed {
		notify(watchers, ev.EntityID, p.logger)
	}
	return changed
}

// ApplyAll sorts events by timestamp and applies them in that order. It
// returns the number of events that changed state.
func (p *Projector) ApplyAll(events []event.Event) int {
	sorted := slices.Clone(events)
	event.SortByTime(sorted)

	p.mu.Lock()
	n := 0
	changed := make(map[string]struct{})
	var order []string
	for _, ev := range sorted {
		if err := ev.Validate(); err != nil {
			p.logger.Warn("ignoring malformed event", "error", err, "event_type", ev.Type)
			continue
		}
		if p.applyLocked(ev) {
			n++
			if _, ok := changed[ev.EntityID]; !ok {
				changed[ev.EntityID] = struct{}{}
				order = append(order, ev.EntityID)
			}
		}
	}
	watchers := p.watchersLocked()
	p.mu.Unlock()

	for _, id := range order {
		notify(watchers, id, p.logger)
	}
	return n
}

func (p *Projector) applyLocked(ev event.Event) bool {
	e := p.entityLocked(ev.EntityID)

	key := ev.Key()
	if _, dup := e.applied[key]; dup {
		p.logger.Debug("event already applied", "entity_id", ev.EntityID, "event_type", ev.Type)
		return false
	}

	if ev.EntityKind != "" {
		e.state.EntityKind = ev.EntityKind
	}

	e.applied[key] = ""
	if h, ok := handlers[ev.Type]; ok {
		h(e, ev)
	} else {
		p.logger.Debug("recording unhandled event type", "entity_id", ev.EntityID, "event_type", ev.Type)
		e.insertTrace(ev)
	}

	if ev.Timestamp.After(e.state.UpdatedAt) {
		e.state.UpdatedAt = ev.Timestamp
	}
	return true
}

// Snapshot returns a deep copy of the entity's state. The boolean is false
// if no event has been seen for the entity; the state is then idle and empty.
func (p *Projector) Snapshot(entityID string) (EntityState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entities[entityID]
	if !ok {
		return EntityState{EntityID: entityID, Status: StatusIdle}, false
	}
	return e.state.Clone(), true
}

// Entities returns the ids of all known entities, sorted.
func (p *Projector) Entities() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.entities))
	for id := range p.entities {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Messages returns a copy of the entity's message list.
func (p *Projector) Messages(entityID string) []Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entities[entityID]
	if !ok {
		return nil
	}
	return cloneMessages(e.state.Messages)
}

// Watch registers fn to be called with the entity id after every change.
// fn runs on the goroutine that applied the change, outside any lock.
func (p *Projector) Watch(fn func(entityID string)) (cancel func()) {
	id := uuid.New().String()

	p.mu.Lock()
	p.watchers = append(p.watchers, watcher{id: id, fn: fn})
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.watchers = slices.DeleteFunc(p.watchers, func(w watcher) bool { return w.id == id })
		})
	}
}

func (p *Projector) watchersLocked() []watcher {
	return slices.Clone(p.watchers)
}

func notify(watchers []watcher, entityID string, logger *slog.Logger) {
	for _, w := range watchers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Warn("watcher panicked", "entity_id", entityID, "panic", r)
				}
			}()
			w.fn(entityID)
		}()
	}
}
