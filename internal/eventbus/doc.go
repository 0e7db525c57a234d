// Package eventbus keeps exactly one live connection per agency and fans its
// events out to any number of listeners.
//
// # Overview
//
// A Registry is created once by the composition root and shared by every
// consumer. Each group key (an agency id) maps to one connection group that
// owns:
//
//   - the current transport connection, if any
//   - the event listeners and status listeners
//   - the reconnect attempt counter and the pending retry timer
//   - the intentional-close flag
//
// # Lifecycle
//
// The first Subscribe for a group opens the connection. When the last
// listener unsubscribes the connection is closed and the group forgotten.
// Consumers never open their own transport.
//
//	unsubscribe := registry.Subscribe("agency-1", func(ev event.Event) {
//		projection.Apply(ev)
//	})
//	defer unsubscribe()
//
// # Reconnect Policy
//
// After an unexpected close the group waits min(base*2^n, max) before trying
// again, n counting consecutive failures from zero. Once MaxAttempts
// consecutive failures have happened the group stops retrying and reports
// an exhausted status until Reconnect is called or the group is recreated.
//
// Defaults: base 1s, max 30s, 10 attempts.
//
// # Delivery
//
// Events are delivered synchronously on the transport's reader goroutine, in
// arrival order, to each listener in registration order. A panicking
// listener is logged and skipped; it never stops delivery to the others.
package eventbus
