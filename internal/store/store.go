// ABOUTME: EventStore interface and record types for the local history cache
// ABOUTME: Shared by the SQLite store and the in-memory mock

package store

import (
	"context"
	"errors"
	"time"

	"github.com/deathbyknowledge/agent-hub-sub000/internal/event"
)

// ErrNotFound is returned when nothing is cached for the requested entity.
var ErrNotFound = errors.New("not found")

// EntityRecord summarizes the cached events of one entity.
type EntityRecord struct {
	AgencyID    string
	EntityID    string
	EntityKind  string
	EventCount  int
	LastEventAt time.Time
}

// EventStore persists event history per agency and entity.
type EventStore interface {
	// SaveEvents stores events for agencyID, skipping any already stored.
	// It returns the number of new rows.
	SaveEvents(ctx context.Context, agencyID string, events []event.Event) (int, error)

	// ListEntityEvents returns the cached events for one entity, oldest first.
	ListEntityEvents(ctx context.Context, agencyID, entityID string) ([]event.Event, error)

	// ListEntities returns every entity with cached events in the agency,
	// ordered by entity id.
	ListEntities(ctx context.Context, agencyID string) ([]EntityRecord, error)

	// DeleteAgency removes every cached event for the agency.
	DeleteAgency(ctx context.Context, agencyID string) error

	Close() error
}
