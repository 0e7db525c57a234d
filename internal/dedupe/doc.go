// Package dedupe suppresses re-delivered events. A Window remembers the keys
// it has seen for a bounded time and a bounded count, so a burst replayed by
// the hub after a reconnect is dropped before fan-out.
package dedupe
