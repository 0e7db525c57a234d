// ABOUTME: Entity state types produced by the projector
// ABOUTME: Run status, messages, trace and deep-copy helpers for snapshots

package projector

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/deathbyknowledge/agent-hub-sub000/internal/event"
)

// Status is an entity's run status.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusError     Status = "error"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether no further run events are expected.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusCanceled
}

// MessageKind distinguishes the message variants in a conversation.
type MessageKind string

const (
	KindUser       MessageKind = "user"
	KindSystem     MessageKind = "system"
	KindAssistant  MessageKind = "assistant"
	KindToolCalls  MessageKind = "tool_calls"
	KindToolResult MessageKind = "tool_result"
	KindToolError  MessageKind = "tool_error"
)

// Message is one entry in an entity's conversation.
type Message struct {
	ID      string      `json:"id"`
	Kind    MessageKind `json:"kind"`
	Content string      `json:"content,omitempty"`
	// ToolCalls holds the raw tool call batch for KindToolCalls.
	ToolCalls  json.RawMessage `json:"toolCalls,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Timestamp  time.Time       `json:"ts"`
	// Pending marks a local message that the hub has not confirmed yet.
	Pending bool `json:"pending,omitempty"`
}

func (m Message) clone() Message {
	if m.ToolCalls != nil {
		m.ToolCalls = slices.Clone(m.ToolCalls)
	}
	return m
}

// EntityState is the projection of one entity's events.
type EntityState struct {
	EntityID   string    `json:"entityId"`
	EntityKind string    `json:"entityKind,omitempty"`
	Status     Status    `json:"status"`
	Step       int64     `json:"step"`
	Reason     string    `json:"reason,omitempty"`
	Messages   []Message `json:"messages"`
	// Trace holds events with no status or message effect, oldest first.
	Trace     []event.Event `json:"trace,omitempty"`
	Children  []string      `json:"children,omitempty"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s EntityState) Clone() EntityState {
	out := s
	out.Messages = cloneMessages(s.Messages)
	if s.Trace != nil {
		out.Trace = make([]event.Event, len(s.Trace))
		for i, ev := range s.Trace {
			ev.Data = slices.Clone(ev.Data)
			out.Trace[i] = ev
		}
	}
	out.Children = slices.Clone(s.Children)
	return out
}

func cloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.clone()
	}
	return out
}
