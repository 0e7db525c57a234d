// ABOUTME: Composition root for the agency sync layer
// ABOUTME: Owns the shared event bus registry, bootstrap fetcher and optional event cache

package agency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/deathbyknowledge/agent-hub-sub000/internal/bootstrap"
	"github.com/deathbyknowledge/agent-hub-sub000/internal/config"
	"github.com/deathbyknowledge/agent-hub-sub000/internal/event"
	"github.com/deathbyknowledge/agent-hub-sub000/internal/eventbus"
	"github.com/deathbyknowledge/agent-hub-sub000/internal/hubapi"
	"github.com/deathbyknowledge/agent-hub-sub000/internal/store"
)

var (
	// ErrClosed is returned by operations on a closed Client or View.
	ErrClosed = errors.New("agency client closed")

	// ErrRejected is returned when the hub answers an invoke with ok=false.
	ErrRejected = errors.New("invoke rejected by hub")
)

// Hub is the part of the hub API the client calls over request/response.
type Hub interface {
	bootstrap.HistorySource
	Invoke(ctx context.Context, agencyID, entityID string, payload any) (*hubapi.Ack, error)
}

// Options assembles a Client from its collaborators.
type Options struct {
	Hub         Hub
	Transport   eventbus.Transport
	Bus         eventbus.Config
	Concurrency int
	// Cache, when set, records fetched and live events. History reads go
	// through it so an unreachable hub falls back to what was cached.
	Cache store.EventStore
}

// Client hands out Views and keeps the resources they share.
type Client struct {
	hub      Hub
	source   bootstrap.HistorySource
	registry *eventbus.Registry
	fetcher  *bootstrap.Fetcher
	cache    store.EventStore
	base     *slog.Logger
	logger   *slog.Logger

	// ownsCache is set when the client opened the cache and must close it.
	ownsCache bool

	mu     sync.Mutex
	closed bool
	views  map[*View]struct{}
}

// New creates a client from opts. Pass nil logger for default.
func New(opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	var source bootstrap.HistorySource = opts.Hub
	if opts.Cache != nil {
		source = bootstrap.NewCachingSource(opts.Hub, opts.Cache, logger)
	}

	return &Client{
		hub:      opts.Hub,
		source:   source,
		registry: eventbus.NewRegistry(opts.Transport, opts.Bus, logger),
		fetcher:  bootstrap.New(source, opts.Concurrency, logger),
		cache:    opts.Cache,
		base:     logger,
		logger:   logger.With("component", "agency"),
		views:    make(map[*View]struct{}),
	}
}

// NewFromConfig builds a client for the configured hub. When the cache is
// enabled the SQLite store is opened here and closed by Close.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	hub := hubapi.NewClient(hubapi.Options{
		BaseURL:       cfg.Hub.BaseURL,
		Token:         cfg.Hub.Token,
		WebSocketPath: cfg.Hub.WebSocketPath,
	}, logger)

	opts := Options{
		Hub:       hub,
		Transport: hub.Transport(),
		Bus: eventbus.Config{
			Policy: eventbus.Policy{
				BaseDelay:   cfg.Reconnect.BaseDelay,
				MaxDelay:    cfg.Reconnect.MaxDelay,
				MaxAttempts: cfg.Reconnect.MaxAttempts,
			},
			DedupeWindow: cfg.Dedupe.Window,
			DedupeSize:   cfg.Dedupe.MaxSize,
		},
		Concurrency: cfg.Bootstrap.Concurrency,
	}

	if cfg.Cache.Enabled {
		cache, err := store.NewSQLiteStore(cfg.Cache.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("opening event cache: %w", err)
		}
		opts.Cache = cache
	}

	c := New(opts, logger)
	c.ownsCache = opts.Cache != nil
	return c, nil
}

// Registry returns the shared event bus registry.
func (c *Client) Registry() *eventbus.Registry {
	return c.registry
}

// Status returns the live connection status for the agency.
func (c *Client) Status(agencyID string) eventbus.Status {
	return c.registry.Status(agencyID)
}

// ListAgents returns the agency's entities, from the cache if the hub is
// unreachable and a cache is configured.
func (c *Client) ListAgents(ctx context.Context, agencyID string) ([]event.EntitySummary, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.source.ListEntities(ctx, agencyID)
}

// Open bootstraps a projection and subscribes it to live events. An empty
// agentID projects every entity the agency lists.
//
// Open fails only if ctx is done or the agency listing fails. A root whose
// history cannot be fetched yet still gets a subscribed View; see
// View.BootstrapErr.
func (c *Client) Open(ctx context.Context, agencyID, agentID string) (*View, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	v := newView(c, agencyID, agentID)
	if err := v.bootstrap(ctx); err != nil {
		v.cancel()
		return nil, err
	}

	v.start()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = v.Close()
		return nil, ErrClosed
	}
	c.views[v] = struct{}{}
	c.mu.Unlock()

	c.logger.Info("view opened", "agency_id", agencyID, "entity_id", agentID)
	return v, nil
}

func (c *Client) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

func (c *Client) forget(v *View) {
	c.mu.Lock()
	delete(c.views, v)
	c.mu.Unlock()
}

// record saves events to the cache, if one is configured.
func (c *Client) record(ctx context.Context, agencyID string, events []event.Event) {
	if c.cache == nil || len(events) == 0 {
		return
	}
	if _, err := c.cache.SaveEvents(ctx, agencyID, events); err != nil {
		c.logger.Warn("recording events", "agency_id", agencyID, "error", err)
	}
}

// Close closes every open view, the bus registry and an owned cache.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	views := make([]*View, 0, len(c.views))
	for v := range c.views {
		views = append(views, v)
	}
	c.mu.Unlock()

	for _, v := range views {
		_ = v.Close()
	}
	c.registry.Close()

	if c.ownsCache {
		if err := c.cache.Close(); err != nil {
			return fmt.Errorf("closing event cache: %w", err)
		}
	}
	return nil
}
