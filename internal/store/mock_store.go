// ABOUTME: Mock EventStore implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/deathbyknowledge/agent-hub-sub000/internal/event"
)

// MockStore is an in-memory EventStore implementation for testing.
type MockStore struct {
	mu     sync.RWMutex
	events map[string][]event.Event // keyed by "agencyID\x00entityID"
	keys   map[string]struct{}      // keyed by "agencyID\x00entityID\x00eventKey"
	closed bool
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		events: make(map[string][]event.Event),
		keys:   make(map[string]struct{}),
	}
}

func entityKey(agencyID, entityID string) string {
	return agencyID + "\x00" + entityID
}

// SaveEvents stores copies of events not seen before.
func (m *MockStore) SaveEvents(ctx context.Context, agencyID string, events []event.Event) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inserted := 0
	for _, ev := range events {
		ek := entityKey(agencyID, ev.EntityID)
		k := ek + "\x00" + ev.Key()
		if _, ok := m.keys[k]; ok {
			continue
		}
		m.keys[k] = struct{}{}

		ev.Data = slices.Clone(ev.Data)
		m.events[ek] = append(m.events[ek], ev)
		inserted++
	}
	return inserted, nil
}

// ListEntityEvents returns copies of the entity's events, oldest first.
func (m *MockStore) ListEntityEvents(ctx context.Context, agencyID, entityID string) ([]event.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.events[entityKey(agencyID, entityID)]
	if len(stored) == 0 {
		return nil, ErrNotFound
	}

	out := make([]event.Event, len(stored))
	for i, ev := range stored {
		ev.Data = slices.Clone(ev.Data)
		out[i] = ev
	}
	event.SortByTime(out)
	return out, nil
}

// ListEntities summarizes cached entities in the agency.
func (m *MockStore) ListEntities(ctx context.Context, agencyID string) ([]EntityRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := agencyID + "\x00"
	var records []EntityRecord
	for k, evs := range m.events {
		if !strings.HasPrefix(k, prefix) || len(evs) == 0 {
			continue
		}
		rec := EntityRecord{
			AgencyID:   agencyID,
			EntityID:   strings.TrimPrefix(k, prefix),
			EventCount: len(evs),
		}
		for _, ev := range evs {
			if ev.EntityKind > rec.EntityKind {
				rec.EntityKind = ev.EntityKind
			}
			if ev.Timestamp.After(rec.LastEventAt) {
				rec.LastEventAt = ev.Timestamp
			}
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].EntityID < records[j].EntityID
	})
	return records, nil
}

// DeleteAgency removes every cached event for the agency.
func (m *MockStore) DeleteAgency(ctx context.Context, agencyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := agencyID + "\x00"
	for k := range m.events {
		if strings.HasPrefix(k, prefix) {
			delete(m.events, k)
		}
	}
	for k := range m.keys {
		if strings.HasPrefix(k, prefix) {
			delete(m.keys, k)
		}
	}
	return nil
}

// Close marks the store closed.
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Compile-time interface checks.
var (
	_ EventStore = (*MockStore)(nil)
	_ EventStore = (*SQLiteStore)(nil)
)
