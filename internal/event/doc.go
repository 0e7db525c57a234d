// Package event defines the wire shape of agent-hub events and the helpers
// the rest of the sync layer uses to read them.
//
// # Wire Shape
//
// Every event carries at least:
//
//	{"type": "run.tick", "entityId": "a1", "ts": "2026-01-02T15:04:05Z", "data": {"step": 3}}
//
// An optional "id" is a server-assigned event id, and "entityKind" names the
// kind of entity ("agent", "subagent"). Older payloads use "timestamp"
// instead of "ts"; both are accepted on decode.
//
// # Event Types
//
// Run lifecycle:
//
//   - run.started, run.tick, run.paused, run.resumed
//   - agent.completed (run.completed is accepted as an alias)
//   - run.error, run.canceled
//
// Messages:
//
//   - user.message, system.message
//   - assistant.message, assistant.tool_calls
//   - tool.result, tool.error
//
// Relationships:
//
//   - agent.spawned carries the child entity id in data.childId
//
// Anything else is an unknown type. Unknown types are kept for tracing but
// never change run status or messages.
//
// # Payload Access
//
// Payloads are kept as raw JSON. Fields are read with gjson paths:
//
//	step := ev.Field("step").Int()
//	reason := ev.Field("reason").String()
package event
