// ABOUTME: One-shot historical load of an entity and everything it spawned
// ABOUTME: Breadth-first over spawn events with a visited set so cycles terminate

package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/deathbyknowledge/agent-hub-sub000/internal/event"
)

// DefaultConcurrency is the number of histories fetched in parallel per level.
const DefaultConcurrency = 4

// HistorySource is the part of the hub API bootstrap reads from.
type HistorySource interface {
	ListEntities(ctx context.Context, agencyID string) ([]event.EntitySummary, error)
	GetEntityHistory(ctx context.Context, agencyID, entityID string) ([]event.Event, error)
}

// Applier folds a batch of events. *projector.Projector satisfies it.
type Applier interface {
	ApplyAll(events []event.Event) int
}

// Result is the outcome of one bootstrap pass.
type Result struct {
	// Events from every fetched entity, sorted by timestamp.
	Events []event.Event
	// Entities lists the entities whose history was fetched, in visit order.
	Entities []string
	// Skipped holds entities whose fetch failed in this pass.
	Skipped map[string]error
}

// ApplyTo feeds the events to a in one batch and returns how many changed state.
func (r *Result) ApplyTo(a Applier) int {
	return a.ApplyAll(r.Events)
}

// Fetcher loads event history for bootstrap.
type Fetcher struct {
	source      HistorySource
	concurrency int
	logger      *slog.Logger
}

// New creates a fetcher. concurrency <= 0 uses DefaultConcurrency. Pass nil
// logger for default.
func New(source HistorySource, concurrency int, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Fetcher{
		source:      source,
		concurrency: concurrency,
		logger:      logger.With("component", "bootstrap"),
	}
}

// Load fetches rootID's history and, recursively, the history of every
// entity it spawned. A failed root fetch is returned as an error; failed
// children are recorded in Result.Skipped and left for the next pass.
func (f *Fetcher) Load(ctx context.Context, agencyID, rootID string) (*Result, error) {
	return f.walk(ctx, agencyID, []string{rootID}, true)
}

// Refresh is Load for a projection that follows live events regardless of
// how its history fetch went. A failed root is recorded in Result.Skipped
// like a failed child and retried by the next pass; only context
// cancellation is an error.
func (f *Fetcher) Refresh(ctx context.Context, agencyID, rootID string) (*Result, error) {
	return f.walk(ctx, agencyID, []string{rootID}, false)
}

// LoadAgency lists the agency's entities and loads each of them as a root.
// Only a failed listing is an error; individual entities that fail are
// skipped.
func (f *Fetcher) LoadAgency(ctx context.Context, agencyID string) (*Result, error) {
	entities, err := f.source.ListEntities(ctx, agencyID)
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}

	roots := make([]string, 0, len(entities))
	for _, e := range entities {
		roots = append(roots, e.ID)
	}
	return f.walk(ctx, agencyID, roots, false)
}

// walker holds the state of one pass. visited and next are shared by the
// fetch goroutines of a level.
type walker struct {
	mu      sync.Mutex
	visited map[string]struct{}
	next    []string
}

// claim marks id visited and reports whether this call was the first.
func (w *walker) claim(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.visited[id]; ok {
		return false
	}
	w.visited[id] = struct{}{}
	w.next = append(w.next, id)
	return true
}

func (w *walker) takeNext() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	level := w.next
	w.next = nil
	slices.Sort(level)
	return level
}

func (f *Fetcher) walk(ctx context.Context, agencyID string, roots []string, strictRoots bool) (*Result, error) {
	w := &walker{visited: make(map[string]struct{})}
	for _, id := range roots {
		if id != "" {
			w.claim(id)
		}
	}
	rootSet := make(map[string]struct{}, len(roots))
	for _, id := range roots {
		rootSet[id] = struct{}{}
	}

	res := &Result{Skipped: make(map[string]error)}

	for depth := 0; ; depth++ {
		level := w.takeNext()
		if len(level) == 0 {
			break
		}

		histories := make([][]event.Event, len(level))
		failures := make([]error, len(level))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(f.concurrency)
		for i, id := range level {
			g.Go(func() error {
				events, err := f.source.GetEntityHistory(gctx, agencyID, id)
				if err != nil {
					if _, isRoot := rootSet[id]; isRoot && strictRoots {
						return fmt.Errorf("fetching history for %s: %w", id, err)
					}
					failures[i] = err
					return nil
				}
				histories[i] = events

				for _, ev := range events {
					if child := ev.ChildID(); child != "" && w.claim(child) {
						f.logger.Debug("discovered child", "entity_id", id, "child_id", child)
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for i, id := range level {
			if failures[i] != nil {
				res.Skipped[id] = failures[i]
				f.logger.Warn("skipping entity for this pass",
					"agency_id", agencyID,
					"entity_id", id,
					"error", failures[i])
				continue
			}
			res.Entities = append(res.Entities, id)
			res.Events = append(res.Events, histories[i]...)
		}

		f.logger.Debug("bootstrap level fetched",
			"agency_id", agencyID,
			"depth", depth,
			"entities", len(level))
	}

	event.SortByTime(res.Events)

	f.logger.Info("bootstrap complete",
		"agency_id", agencyID,
		"entities", len(res.Entities),
		"skipped", len(res.Skipped),
		"events", len(res.Events))
	return res, nil
}
