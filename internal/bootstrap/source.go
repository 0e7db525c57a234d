// ABOUTME: History sources backed by the local event cache
// ABOUTME: Write-through caching in front of the hub and a cache-only source for replay

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/deathbyknowledge/agent-hub-sub000/internal/event"
	"github.com/deathbyknowledge/agent-hub-sub000/internal/store"
)

// CachingSource saves every history it fetches from upstream into a store,
// and serves the cached copy when upstream fails.
type CachingSource struct {
	upstream HistorySource
	cache    store.EventStore
	logger   *slog.Logger
}

// NewCachingSource wraps upstream with cache. Pass nil logger for default.
func NewCachingSource(upstream HistorySource, cache store.EventStore, logger *slog.Logger) *CachingSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachingSource{
		upstream: upstream,
		cache:    cache,
		logger:   logger.With("component", "bootstrap_cache"),
	}
}

// ListEntities lists from upstream, falling back to the cached entities.
func (c *CachingSource) ListEntities(ctx context.Context, agencyID string) ([]event.EntitySummary, error) {
	entities, err := c.upstream.ListEntities(ctx, agencyID)
	if err == nil {
		return entities, nil
	}

	cached, cacheErr := cachedEntities(ctx, c.cache, agencyID)
	if cacheErr != nil || len(cached) == 0 {
		return nil, err
	}
	c.logger.Warn("hub listing failed, using cache", "agency_id", agencyID, "error", err)
	return cached, nil
}

// GetEntityHistory fetches from upstream and writes the result through to
// the cache. If upstream fails, cached history is returned when present.
func (c *CachingSource) GetEntityHistory(ctx context.Context, agencyID, entityID string) ([]event.Event, error) {
	events, err := c.upstream.GetEntityHistory(ctx, agencyID, entityID)
	if err != nil {
		cached, cacheErr := c.cache.ListEntityEvents(ctx, agencyID, entityID)
		if cacheErr != nil {
			return nil, err
		}
		c.logger.Warn("hub history failed, using cache",
			"agency_id", agencyID,
			"entity_id", entityID,
			"error", err)
		return cached, nil
	}

	if _, err := c.cache.SaveEvents(ctx, agencyID, events); err != nil {
		c.logger.Warn("caching history", "agency_id", agencyID, "entity_id", entityID, "error", err)
	}
	return events, nil
}

// StoreSource serves history purely from the local cache.
type StoreSource struct {
	cache store.EventStore
}

// NewStoreSource creates a cache-only source.
func NewStoreSource(cache store.EventStore) *StoreSource {
	return &StoreSource{cache: cache}
}

// ListEntities lists the cached entities of the agency.
func (s *StoreSource) ListEntities(ctx context.Context, agencyID string) ([]event.EntitySummary, error) {
	return cachedEntities(ctx, s.cache, agencyID)
}

// GetEntityHistory returns the cached events for the entity.
func (s *StoreSource) GetEntityHistory(ctx context.Context, agencyID, entityID string) ([]event.Event, error) {
	events, err := s.cache.ListEntityEvents(ctx, agencyID, entityID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("no cached history for %s: %w", entityID, err)
	}
	return events, err
}

func cachedEntities(ctx context.Context, cache store.EventStore, agencyID string) ([]event.EntitySummary, error) {
	records, err := cache.ListEntities(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	out := make([]event.EntitySummary, 0, len(records))
	for _, r := range records {
		out = append(out, event.EntitySummary{ID: r.EntityID, Kind: r.EntityKind})
	}
	return out, nil
}
