// ABOUTME: Tracks optimistic edits until the confirming call settles
// ABOUTME: Rollback removes only the messages the failed edit inserted

package optimistic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deathbyknowledge/agent-hub-sub000/internal/projector"
)

// ErrUnknownToken is returned when a token was never issued or has already
// been committed or rolled back.
var ErrUnknownToken = errors.New("unknown optimistic token")

// State is the projection an edit is applied to. *projector.Projector
// satisfies it.
type State interface {
	Edit(entityID string, fn func(projector.Local)) []string
	RemoveMessages(entityID string, ids []string) int
}

// Edit is a local change applied before the hub confirms it.
type Edit func(projector.Local)

// AppendUserMessage returns an edit that adds a pending user message.
func AppendUserMessage(content string) Edit {
	return func(l projector.Local) {
		l.Append(projector.Message{Kind: projector.KindUser, Content: content})
	}
}

// pending is one edit awaiting its outcome.
type pending struct {
	entityID  string
	added     []string
	appliedAt time.Time
}

// Tracker records applied edits so they can be reverted if the call that
// should confirm them fails.
type Tracker struct {
	state  State
	logger *slog.Logger

	mu    sync.Mutex
	edits map[string]pending
}

// New creates a tracker over state. Pass nil logger for default.
func New(state State, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		state:  state,
		logger: logger.With("component", "optimistic"),
		edits:  make(map[string]pending),
	}
}

// Apply applies edit, remembers the messages it inserted, and returns a
// token for Commit or Rollback.
func (t *Tracker) Apply(entityID string, edit Edit) string {
	added := t.state.Edit(entityID, edit)
	token := uuid.New().String()

	t.mu.Lock()
	t.edits[token] = pending{entityID: entityID, added: added, appliedAt: time.Now()}
	t.mu.Unlock()

	t.logger.Debug("optimistic edit applied", "entity_id", entityID, "token", token)
	return token
}

// take removes and returns the edit for token.
func (t *Tracker) take(token string) (pending, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.edits[token]
	if !ok {
		return pending{}, fmt.Errorf("%w: %s", ErrUnknownToken, token)
	}
	delete(t.edits, token)
	return p, nil
}

// Commit forgets the edit after its call succeeded. The authoritative event
// replaces the pending message when it arrives.
func (t *Tracker) Commit(token string) error {
	p, err := t.take(token)
	if err != nil {
		return err
	}
	t.logger.Debug("optimistic edit committed",
		"entity_id", p.entityID,
		"token", token,
		"pending_for", time.Since(p.appliedAt))
	return nil
}

// Rollback removes the messages the edit inserted. Server events and other
// edits on the same entity stay where they are, so with nothing else in
// between the entity returns to exactly its state before Apply.
func (t *Tracker) Rollback(token string) error {
	p, err := t.take(token)
	if err != nil {
		return err
	}
	removed := t.state.RemoveMessages(p.entityID, p.added)
	t.logger.Info("optimistic edit rolled back",
		"entity_id", p.entityID,
		"token", token,
		"removed", removed)
	return nil
}

// Pending returns the number of unsettled edits.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.edits)
}

// Do applies edit, runs call, and settles the edit by the outcome. A failed
// call is rolled back and its error returned unchanged.
func (t *Tracker) Do(ctx context.Context, entityID string, edit Edit, call func(context.Context) error) error {
	token := t.Apply(entityID, edit)

	if err := call(ctx); err != nil {
		if rbErr := t.Rollback(token); rbErr != nil {
			t.logger.Error("rolling back optimistic edit", "entity_id", entityID, "error", rbErr)
		}
		return err
	}
	return t.Commit(token)
}
