// ABOUTME: In-memory agencies for the fake hub: entity listing, history, invoke and live streams
// ABOUTME: Each invoke plays a short scripted run whose events go to history and every stream

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/deathbyknowledge/agent-hub-sub000/internal/event"
)

// streamBuffer is how many events a stream may fall behind before it is
// dropped. The client re-bootstraps on reconnect, so nothing is lost.
const streamBuffer = 64

type agent struct {
	summary event.EntitySummary
	events  []event.Event
	running bool
}

type stream struct {
	ch   chan event.Event
	stop context.CancelFunc
}

type agencyState struct {
	agents  map[string]*agent
	streams map[*stream]struct{}
}

type hub struct {
	token  string
	step   time.Duration
	logger *slog.Logger

	mu       sync.Mutex
	agencies map[string]*agencyState
	runs     sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

func newHub(token string, step time.Duration, logger *slog.Logger) *hub {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &hub{
		token:    token,
		step:     step,
		logger:   logger.With("component", "fake-hub"),
		agencies: make(map[string]*agencyState),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (h *hub) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /agency/{agency}/agents", h.handleAgents)
	mux.HandleFunc("GET /agency/{agency}/agent/{id}/events", h.handleHistory)
	mux.HandleFunc("POST /agency/{agency}/agent/{id}/invoke", h.handleInvoke)
	mux.HandleFunc("GET /agency/{agency}/events", h.handleStream)
	return h.requireToken(mux)
}

func (h *hub) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.token != "" && r.Header.Get("Authorization") != "Bearer "+h.token {
			writeError(w, http.StatusUnauthorized, "missing or invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// agencyLocked returns the agency, seeding a new one with a single idle
// assistant. Must be called with h.mu held.
func (h *hub) agencyLocked(name string) *agencyState {
	a, ok := h.agencies[name]
	if ok {
		return a
	}

	now := time.Now().UTC()
	a = &agencyState{
		agents:  make(map[string]*agent),
		streams: make(map[*stream]struct{}),
	}
	a.agents["assistant"] = &agent{
		summary: event.EntitySummary{ID: "assistant", Kind: "agent", Name: "Assistant", CreatedAt: now},
		events: []event.Event{
			newEvent("assistant", event.TypeSystemMessage, now, map[string]any{"content": "You are a helpful assistant."}),
		},
	}
	h.agencies[name] = a
	h.logger.Info("agency created", "agency_id", name)
	return a
}

func newEvent(entityID string, typ event.Type, ts time.Time, data any) event.Event {
	raw, _ := json.Marshal(data)
	return event.Event{
		ID:         uuid.New().String(),
		Type:       typ,
		EntityID:   entityID,
		EntityKind: "agent",
		Timestamp:  ts,
		Data:       raw,
	}
}

// emit records ev in history and pushes it to every stream of the agency.
// A stream whose buffer is full is dropped.
func (h *hub) emit(agencyID string, ev event.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	a := h.agencyLocked(agencyID)
	ag, ok := a.agents[ev.EntityID]
	if !ok {
		ag = &agent{summary: event.EntitySummary{ID: ev.EntityID, Kind: "agent", CreatedAt: ev.Timestamp}}
		a.agents[ev.EntityID] = ag
	}
	ag.events = append(ag.events, ev)

	for s := range a.streams {
		select {
		case s.ch <- ev:
		default:
			h.logger.Warn("dropping slow stream", "agency_id", agencyID)
			delete(a.streams, s)
			s.stop()
		}
	}
	h.logger.Debug("event emitted", "agency_id", agencyID, "entity_id", ev.EntityID, "event_type", ev.Type)
}

func (h *hub) handleAgents(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	a := h.agencyLocked(r.PathValue("agency"))
	agents := make([]event.EntitySummary, 0, len(a.agents))
	for _, ag := range a.agents {
		agents = append(agents, ag.summary)
	}
	h.mu.Unlock()

	slices.SortFunc(agents, func(x, y event.EntitySummary) int { return strings.Compare(x.ID, y.ID) })
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

func (h *hub) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	h.mu.Lock()
	a := h.agencyLocked(r.PathValue("agency"))
	ag, ok := a.agents[id]
	var events []event.Event
	if ok {
		events = slices.Clone(ag.events)
	}
	h.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("agent %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *hub) handleInvoke(w http.ResponseWriter, r *http.Request) {
	agencyID, id := r.PathValue("agency"), r.PathValue("id")

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading body")
		return
	}
	content := lastUserContent(body)
	if content == "" {
		writeError(w, http.StatusBadRequest, "no user message in payload")
		return
	}

	h.mu.Lock()
	a := h.agencyLocked(agencyID)
	ag, ok := a.agents[id]
	switch {
	case !ok:
		h.mu.Unlock()
		writeError(w, http.StatusNotFound, fmt.Sprintf("agent %s not found", id))
		return
	case ag.running:
		h.mu.Unlock()
		writeError(w, http.StatusConflict, "agent is busy")
		return
	}
	ag.running = true
	h.mu.Unlock()

	runID := uuid.New().String()
	h.logger.Info("invoke", "agency_id", agencyID, "entity_id", id, "run_id", runID)

	h.runs.Add(1)
	go func() {
		defer h.runs.Done()
		h.playRun(agencyID, id, content)
	}()

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "runId": runID, "status": "running"})
}

// lastUserContent reads the newest user message from an invoke payload.
// A bare {"content": "..."} body is accepted too.
func lastUserContent(body []byte) string {
	contents := gjson.GetBytes(body, `messages.#(role=="user")#.content`).Array()
	if n := len(contents); n > 0 {
		return strings.TrimSpace(contents[n-1].String())
	}
	return strings.TrimSpace(gjson.GetBytes(body, "content").String())
}

// playRun emits a scripted run. Messages containing "fail" end in an error;
// messages containing "delegate" spawn a helper agent first.
func (h *hub) playRun(agencyID, agentID, content string) {
	defer func() {
		h.mu.Lock()
		if ag, ok := h.agencyLocked(agencyID).agents[agentID]; ok {
			ag.running = false
		}
		h.mu.Unlock()
	}()

	emit := func(entity string, typ event.Type, data any) bool {
		if h.ctx.Err() != nil {
			return false
		}
		h.emit(agencyID, newEvent(entity, typ, time.Now().UTC(), data))
		sleepCtx(h.ctx, h.step)
		return true
	}

	lower := strings.ToLower(content)
	callID := "call_" + uuid.New().String()[:8]

	steps := []func() bool{
		func() bool { return emit(agentID, event.TypeUserMessage, map[string]any{"content": content}) },
		func() bool { return emit(agentID, event.TypeRunStarted, map[string]any{}) },
		func() bool { return emit(agentID, event.TypeRunTick, map[string]any{"step": 1}) },
	}
	if strings.Contains(lower, "fail") {
		steps = append(steps, func() bool {
			return emit(agentID, event.TypeRunError, map[string]any{"error": map[string]any{"message": "scripted failure"}})
		})
	} else {
		steps = append(steps,
			func() bool {
				return emit(agentID, event.TypeAssistantToolCalls, map[string]any{
					"toolCalls": []map[string]any{{"id": callID, "name": "echo", "arguments": map[string]any{"text": content}}},
				})
			},
			func() bool {
				return emit(agentID, event.TypeToolResult, map[string]any{"toolCallId": callID, "toolName": "echo", "content": content})
			},
		)
		if strings.Contains(lower, "delegate") {
			child := agentID + "-helper-" + uuid.New().String()[:4]
			steps = append(steps,
				func() bool { return emit(agentID, event.TypeSpawned, map[string]any{"childId": child}) },
				func() bool { return emit(child, event.TypeRunStarted, map[string]any{}) },
				func() bool { return emit(child, event.TypeAssistantMessage, map[string]any{"content": "On it."}) },
				func() bool { return emit(child, event.TypeRunCompleted, map[string]any{}) },
			)
		}
		steps = append(steps,
			func() bool { return emit(agentID, event.TypeRunTick, map[string]any{"step": 2}) },
			func() bool {
				return emit(agentID, event.TypeAssistantMessage, map[string]any{"content": echoReply(content)})
			},
			func() bool { return emit(agentID, event.TypeRunCompleted, map[string]any{}) },
		)
	}

	for _, step := range steps {
		if !step() {
			return
		}
	}
}

func echoReply(input string) string {
	return fmt.Sprintf("Echo: %s", input)
}

func (h *hub) handleStream(w http.ResponseWriter, r *http.Request) {
	agencyID := r.PathValue("agency")

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx, stop := context.WithCancel(r.Context())
	defer stop()
	s := &stream{ch: make(chan event.Event, streamBuffer), stop: stop}

	h.mu.Lock()
	h.agencyLocked(agencyID).streams[s] = struct{}{}
	h.mu.Unlock()
	defer h.removeStream(agencyID, s)

	h.logger.Info("stream opened", "agency_id", agencyID)

	// Clients never send; CloseRead handles their close frame.
	ctx = conn.CloseRead(ctx)
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "stream ended")
			h.logger.Info("stream closed", "agency_id", agencyID)
			return
		case ev := <-s.ch:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, ev)
			cancel()
			if err != nil {
				h.logger.Debug("stream write failed", "agency_id", agencyID, "error", err)
				return
			}
		}
	}
}

func (h *hub) removeStream(agencyID string, s *stream) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.agencyLocked(agencyID).streams, s)
}

// closeStreams ends every open stream and stops scripted runs.
func (h *hub) closeStreams() {
	h.cancel()
	h.dropStreams()
	h.runs.Wait()
}

func (h *hub) dropStreams() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, a := range h.agencies {
		for s := range a.streams {
			delete(a.streams, s)
			s.stop()
			n++
		}
	}
	return n
}

func (h *hub) dropStreamsEvery(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := h.dropStreams(); n > 0 {
				h.logger.Info("dropped streams", "count", n)
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": map[string]any{"message": message}})
}
