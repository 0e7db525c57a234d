// ABOUTME: A live projection of one agent (or a whole agency) kept current by the event bus
// ABOUTME: Re-bootstraps after reconnects and routes sends through the optimistic tracker

package agency

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/deathbyknowledge/agent-hub-sub000/internal/bootstrap"
	"github.com/deathbyknowledge/agent-hub-sub000/internal/event"
	"github.com/deathbyknowledge/agent-hub-sub000/internal/eventbus"
	"github.com/deathbyknowledge/agent-hub-sub000/internal/optimistic"
	"github.com/deathbyknowledge/agent-hub-sub000/internal/projector"
)

// View is a consumer's handle on a projection. Its methods are safe for
// concurrent use.
type View struct {
	client   *Client
	agencyID string
	agentID  string
	proj     *projector.Projector
	tracker  *optimistic.Tracker
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	resync chan struct{}
	done   chan struct{}

	// bootMu serializes bootstrap passes.
	bootMu sync.Mutex

	mu           sync.Mutex
	unsubEvents  func()
	unsubStatus  func()
	connected    bool
	bootstrapErr error
	closeOnce    sync.Once
}

func newView(c *Client, agencyID, agentID string) *View {
	ctx, cancel := context.WithCancel(context.Background())
	proj := projector.New(c.base)
	return &View{
		client:   c,
		agencyID: agencyID,
		agentID:  agentID,
		proj:     proj,
		tracker:  optimistic.New(proj, c.base),
		logger:   c.logger.With("agency_id", agencyID, "entity_id", agentID),
		ctx:      ctx,
		cancel:   cancel,
		resync:   make(chan struct{}, 1),
	}
}

// start subscribes to the agency's live events and connection status.
func (v *View) start() {
	v.done = make(chan struct{})
	go v.resyncLoop()

	unsubEvents := v.client.registry.Subscribe(v.agencyID, v.onEvent)
	unsubStatus := v.client.registry.SubscribeStatus(v.agencyID, v.onStatus)

	v.mu.Lock()
	v.unsubEvents = unsubEvents
	v.unsubStatus = unsubStatus
	v.mu.Unlock()
}

// bootstrap fetches history and folds it into the projection. Results that
// arrive after Close are discarded. A root whose history could not be
// fetched is recorded for BootstrapErr rather than returned; only a failed
// agency listing or cancellation is an error.
func (v *View) bootstrap(ctx context.Context) error {
	v.bootMu.Lock()
	defer v.bootMu.Unlock()

	var (
		res *bootstrap.Result
		err error
	)
	if v.agentID == "" {
		res, err = v.client.fetcher.LoadAgency(ctx, v.agencyID)
	} else {
		res, err = v.client.fetcher.Refresh(ctx, v.agencyID, v.agentID)
	}
	if err != nil {
		err = fmt.Errorf("bootstrapping %s/%s: %w", v.agencyID, v.agentID, err)
		if ctx.Err() == nil {
			v.setBootstrapErr(err)
		}
		return err
	}
	if v.ctx.Err() != nil {
		return ErrClosed
	}

	applied := res.ApplyTo(v.proj)
	var rootErr error
	for id, skipErr := range res.Skipped {
		if v.agentID != "" && id == v.agentID {
			rootErr = fmt.Errorf("fetching history for %s: %w", id, skipErr)
			v.logger.Warn("root history unavailable, retrying on next resync", "error", skipErr)
			continue
		}
		v.logger.Warn("history unavailable", "child_id", id, "error", skipErr)
	}
	v.setBootstrapErr(rootErr)
	v.logger.Debug("bootstrap applied",
		"events", len(res.Events),
		"applied", applied,
		"entities", len(res.Entities))
	return nil
}

func (v *View) onEvent(ev event.Event) {
	if v.ctx.Err() != nil {
		return
	}
	if v.proj.Apply(ev) {
		v.client.record(v.ctx, v.agencyID, []event.Event{ev})
	}
}

func (v *View) setBootstrapErr(err error) {
	v.mu.Lock()
	v.bootstrapErr = err
	v.mu.Unlock()
}

// BootstrapErr returns why the last history fetch could not load the view's
// root, or list the agency for an agency-wide view, or nil if it did. The view keeps following live events either way
// and the next resync fetches again.
func (v *View) BootstrapErr() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.bootstrapErr
}

// onStatus queues a re-bootstrap on every transition to connected, the first
// one included: events the hub sent between the history fetch and the
// handshake reach neither.
func (v *View) onStatus(st eventbus.Status) {
	v.mu.Lock()
	up := st.Connected && !v.connected
	v.connected = st.Connected
	v.mu.Unlock()

	if !up {
		return
	}
	v.logger.Info("connected, fetching history since last bootstrap")
	select {
	case v.resync <- struct{}{}:
	default:
	}
}

func (v *View) resyncLoop() {
	defer close(v.done)
	for {
		select {
		case <-v.ctx.Done():
			return
		case <-v.resync:
			if err := v.bootstrap(v.ctx); err != nil && v.ctx.Err() == nil {
				v.logger.Warn("re-bootstrap failed", "error", err)
			}
		}
	}
}

// Resync fetches history again and folds in anything not yet applied. A
// root that is still unavailable shows up in BootstrapErr, not here.
func (v *View) Resync(ctx context.Context) error {
	if v.ctx.Err() != nil {
		return ErrClosed
	}
	return v.bootstrap(ctx)
}

// AgencyID returns the agency the view follows.
func (v *View) AgencyID() string { return v.agencyID }

// AgentID returns the root agent, empty for an agency-wide view.
func (v *View) AgentID() string { return v.agentID }

// Snapshot returns the root agent's state.
func (v *View) Snapshot() (projector.EntityState, bool) {
	return v.proj.Snapshot(v.agentID)
}

// Entity returns any projected entity's state.
func (v *View) Entity(entityID string) (projector.EntityState, bool) {
	return v.proj.Snapshot(entityID)
}

// Entities returns the ids of every projected entity.
func (v *View) Entities() []string {
	return v.proj.Entities()
}

// Watch calls fn with the id of each entity whose state changes. fn must
// not call Close or Resync.
func (v *View) Watch(fn func(entityID string)) (cancel func()) {
	return v.proj.Watch(fn)
}

// Status returns the agency's live connection status.
func (v *View) Status() eventbus.Status {
	return v.client.registry.Status(v.agencyID)
}

// SubscribeStatus calls fn with the connection status now and on every
// transition until cancel is called.
func (v *View) SubscribeStatus(fn func(eventbus.Status)) (cancel func()) {
	return v.client.registry.SubscribeStatus(v.agencyID, fn)
}

// Send posts a user message to the root agent.
func (v *View) Send(ctx context.Context, content string) error {
	if v.agentID == "" {
		return fmt.Errorf("sending: view has no root agent")
	}
	return v.SendTo(ctx, v.agentID, content)
}

// SendTo shows content as a pending user message on entityID and invokes
// the agent. If the invoke fails the message is removed again and the
// error returned.
func (v *View) SendTo(ctx context.Context, entityID, content string) error {
	if v.ctx.Err() != nil {
		return ErrClosed
	}
	return v.tracker.Do(ctx, entityID, optimistic.AppendUserMessage(content), func(ctx context.Context) error {
		ack, err := v.client.hub.Invoke(ctx, v.agencyID, entityID, invokePayload(content))
		if err != nil {
			return err
		}
		if !ack.OK {
			return fmt.Errorf("%w: status %q", ErrRejected, ack.Status)
		}
		return nil
	})
}

func invokePayload(content string) map[string]any {
	return map[string]any{
		"messages": []map[string]string{
			{"role": "user", "content": content},
		},
	}
}

// Close unsubscribes the view and stops background re-bootstraps. It must
// not be called from a Watch callback.
func (v *View) Close() error {
	v.closeOnce.Do(func() {
		v.cancel()

		v.mu.Lock()
		unsubEvents, unsubStatus := v.unsubEvents, v.unsubStatus
		v.mu.Unlock()

		if unsubStatus != nil {
			unsubStatus()
		}
		if unsubEvents != nil {
			unsubEvents()
		}
		if v.done != nil {
			<-v.done
		}
		v.client.forget(v)
		v.logger.Info("view closed")
	})
	return nil
}
