// Package store caches agent-hub event history locally using SQLite.
//
// # Architecture
//
// EventStore is the interface the rest of the client uses. Two
// implementations exist:
//
//   - SQLiteStore: persistent cache backed by modernc.org/sqlite
//   - MockStore: in-memory implementation for tests
//
// Events are stored per (agency, entity) and keyed by event.Key, so saving
// the same event twice, live and again from a bootstrap, keeps one row.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode so a recording CLI and a replaying CLI
// can share one file:
//
//	PRAGMA journal_mode=WAL;
//
// Default location: $XDG_DATA_HOME/agency/events.db (see config.Cache).
// Tests use a file under t.TempDir().
//
// # Error Handling
//
//   - ErrNotFound: no events cached for the requested entity
//
// All methods accept context.Context for cancellation support.
package store
