// ABOUTME: Dispatch table mapping event types to state transitions
// ABOUTME: Status handlers, message handlers and the relationship handler

package projector

import (
	"slices"

	"github.com/deathbyknowledge/agent-hub-sub000/internal/event"
)

// handler applies one event to an entity.
type handler func(e *entity, ev event.Event)

var handlers = map[event.Type]handler{
	event.TypeRunStarted: statusHandler(func(s *EntityState, _ event.Event) {
		s.Status = StatusRunning
		s.Step = 0
		s.Reason = ""
	}),
	event.TypeRunTick: statusHandler(func(s *EntityState, ev event.Event) {
		s.Status = StatusRunning
		if step := ev.Field("step"); step.Exists() {
			s.Step = step.Int()
		}
	}),
	event.TypeRunPaused: statusHandler(func(s *EntityState, ev event.Event) {
		s.Status = StatusPaused
		s.Reason = ev.FirstString("reason")
	}),
	event.TypeRunResumed: statusHandler(func(s *EntityState, _ event.Event) {
		s.Status = StatusRunning
		s.Reason = ""
	}),
	event.TypeRunCompleted:      statusHandler(complete),
	event.TypeRunCompletedAlias: statusHandler(complete),
	event.TypeRunError: statusHandler(func(s *EntityState, ev event.Event) {
		s.Status = StatusError
		s.Reason = ev.FirstString("error.message", "error", "message")
	}),
	event.TypeRunCanceled: statusHandler(func(s *EntityState, ev event.Event) {
		s.Status = StatusCanceled
		s.Reason = ev.FirstString("reason")
	}),

	event.TypeUserMessage:      messageHandler(KindUser, contentMessage),
	event.TypeSystemMessage:    messageHandler(KindSystem, contentMessage),
	event.TypeAssistantMessage: messageHandler(KindAssistant, contentMessage),
	event.TypeAssistantToolCalls: messageHandler(KindToolCalls, func(m *Message, ev event.Event) {
		m.Content = ev.FirstString("content")
		for _, path := range []string{"toolCalls", "tool_calls", "calls"} {
			if v := ev.Field(path); v.Exists() {
				m.ToolCalls = []byte(v.Raw)
				break
			}
		}
	}),
	event.TypeToolResult: messageHandler(KindToolResult, func(m *Message, ev event.Event) {
		m.ToolCallID = ev.FirstString("toolCallId", "tool_call_id", "callId")
		m.ToolName = ev.FirstString("toolName", "name", "tool")
		m.Content = ev.FirstString("content", "output")
		if m.Content == "" {
			if v := ev.Field("result"); v.Exists() {
				m.Content = v.String()
			}
		}
	}),
	event.TypeToolError: messageHandler(KindToolError, func(m *Message, ev event.Event) {
		m.ToolCallID = ev.FirstString("toolCallId", "tool_call_id", "callId")
		m.ToolName = ev.FirstString("toolName", "name", "tool")
		m.Content = ev.FirstString("error.message", "error", "message")
	}),

	event.TypeSpawned: spawned,
}

func complete(s *EntityState, _ event.Event) {
	s.Status = StatusCompleted
	s.Reason = ""
}

func contentMessage(m *Message, ev event.Event) {
	m.Content = ev.FirstString("content", "text", "message")
}

// statusHandler wraps a run status transition with the stale-status guard:
// a status event older than the last one applied is kept in the trace and
// does not move the status backwards.
func statusHandler(apply func(s *EntityState, ev event.Event)) handler {
	return func(e *entity, ev event.Event) {
		if ev.Timestamp.Before(e.statusAt) {
			e.insertTrace(ev)
			return
		}
		e.statusAt = ev.Timestamp
		apply(&e.state, ev)
	}
}

func messageHandler(kind MessageKind, fill func(m *Message, ev event.Event)) handler {
	return func(e *entity, ev event.Event) {
		m := Message{
			ID:        e.nextMessageID(kind),
			Kind:      kind,
			Timestamp: ev.Timestamp,
		}
		fill(&m, ev)

		if kind == KindUser {
			e.supersede(m.Content)
		}
		e.insertMessage(m)
		key := ev.Key()
		e.applied[key] = m.ID
		e.keyOf[m.ID] = key
	}
}

func spawned(e *entity, ev event.Event) {
	if child := ev.ChildID(); child != "" && !slices.Contains(e.state.Children, child) {
		e.state.Children = append(e.state.Children, child)
	}
	e.insertTrace(ev)
}
