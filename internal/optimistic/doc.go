// Package optimistic applies local edits before the hub confirms them and
// reverts them when the confirming call fails.
//
// Each edit is settled exactly once. Commit drops the record after the call
// succeeds; the authoritative event then replaces the pending message in the
// projection. Rollback removes only the messages its own edit inserted;
// server events and sibling edits that landed in between are kept.
//
//	err := tracker.Do(ctx, "a1", optimistic.AppendUserMessage("hello"), func(ctx context.Context) error {
//		return hub.Invoke(ctx, agency, "a1", payload)
//	})
package optimistic
