// Package projector folds agent-hub events into per-entity state.
//
// A Projector holds one EntityState per entity id. Events are applied
// through a dispatch table keyed by event type:
//
//	run.started          status=running, step=0
//	run.tick             status=running, step=data.step
//	run.paused           status=paused, reason=data.reason
//	run.resumed          status=running
//	agent.completed      status=completed
//	run.error            status=error, reason=data.error
//	run.canceled         status=canceled
//	user.message         append user message
//	system.message       append system message
//	assistant.message    append assistant message
//	assistant.tool_calls append tool call batch
//	tool.result          append tool result
//	tool.error           append tool error
//	agent.spawned        record child, trace
//
// Any other type is kept in the entity's trace, sorted by timestamp.
//
// Applying an event is idempotent. Each event is identified by event.Key
// and each message gets an id of the form "entity:kind:counter" from a
// per-entity counter that only grows, so re-delivery after a reconnect or a
// repeated bootstrap never inserts a message twice.
package projector
