// ABOUTME: Local edits for optimistic updates and targeted removal of them
// ABOUTME: Edit reports the ids it inserted; RemoveMessages drops only those ids

package projector

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Local is the mutation surface handed to an Edit callback. It is only valid
// for the duration of the callback.
type Local struct {
	e     *entity
	added *[]string
}

// EntityID returns the entity being edited.
func (l Local) EntityID() string { return l.e.state.EntityID }

// Append inserts m as a pending message and returns it with its assigned id.
// A zero timestamp becomes the current time.
func (l Local) Append(m Message) Message {
	if m.ID == "" {
		m.ID = l.e.state.EntityID + ":pending:" + uuid.New().String()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	m.Pending = true
	l.e.insertMessage(m)
	*l.added = append(*l.added, m.ID)
	return m.clone()
}

// Edit runs fn against the entity under the projector lock and returns the
// ids of the messages fn inserted.
func (p *Projector) Edit(entityID string, fn func(Local)) []string {
	var added []string

	p.mu.Lock()
	e := p.entityLocked(entityID)
	fn(Local{e: e, added: &added})
	watchers := p.watchersLocked()
	p.mu.Unlock()

	notify(watchers, entityID, p.logger)
	return added
}

// RemoveMessages drops the messages with the given ids from the entity and
// leaves every other message in place. Ids no longer present, such as a
// pending message already superseded, are ignored. A removed message's event
// is forgotten by the idempotence index so a later bootstrap can apply it
// again. The message counter is left as is. It returns how many messages
// were removed.
func (p *Projector) RemoveMessages(entityID string, ids []string) int {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	p.mu.Lock()
	e := p.entityLocked(entityID)
	n := len(e.state.Messages)
	e.state.Messages = slices.DeleteFunc(e.state.Messages, func(m Message) bool {
		if _, ok := drop[m.ID]; !ok {
			return false
		}
		if key, ok := e.keyOf[m.ID]; ok {
			delete(e.applied, key)
			delete(e.keyOf, m.ID)
		}
		return true
	})
	removed := n - len(e.state.Messages)
	var watchers []watcher
	if removed > 0 {
		watchers = p.watchersLocked()
	}
	p.mu.Unlock()

	p.logger.Debug("messages removed", "entity_id", entityID, "count", removed)
	notify(watchers, entityID, p.logger)
	return removed
}
