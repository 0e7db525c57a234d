// ABOUTME: Connection status reported to status listeners
// ABOUTME: Distinguishes connected, retrying and exhausted groups

package eventbus

import (
	"fmt"
	"time"
)

// Status is a snapshot of a group's connection state.
type Status struct {
	GroupKey  string
	Connected bool
	// Attempt counts consecutive failures since the last successful open.
	Attempt int
	// RetryIn is the delay before the pending retry, zero if none is scheduled.
	RetryIn time.Duration
	// Exhausted is set once MaxAttempts consecutive failures have happened.
	// No automatic retry follows until Reconnect.
	Exhausted bool
	LastError error
}

func (s Status) String() string {
	switch {
	case s.Connected:
		return "connected"
	case s.Exhausted:
		return fmt.Sprintf("gave up after %d attempts", s.Attempt)
	case s.RetryIn > 0:
		return fmt.Sprintf("reconnecting in %s (attempt %d)", s.RetryIn, s.Attempt)
	default:
		return "disconnected"
	}
}
