// ABOUTME: SQLite implementation of EventStore using modernc.org/sqlite
// ABOUTME: Provides event history persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/deathbyknowledge/agent-hub-sub000/internal/event"
)

// tsLayout is fixed width so stored timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements EventStore using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed. Pass nil logger for default.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			agency_id TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			event_key TEXT NOT NULL,
			event_id TEXT,
			type TEXT NOT NULL,
			entity_kind TEXT,
			ts TEXT NOT NULL,
			data TEXT,
			stored_at TEXT NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_events_key
			ON events(agency_id, entity_id, event_key);

		CREATE INDEX IF NOT EXISTS idx_events_entity_ts
			ON events(agency_id, entity_id, ts);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// SaveEvents inserts events in one transaction, ignoring ones already stored.
func (s *SQLiteStore) SaveEvents(ctx context.Context, agencyID string, events []event.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO events (
			agency_id, entity_id, event_key, event_id, type, entity_kind, ts, data, stored_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	inserted := 0
	for _, ev := range events {
		res, err := stmt.ExecContext(ctx,
			agencyID,
			ev.EntityID,
			ev.Key(),
			nullString(ev.ID),
			string(ev.Type),
			nullString(ev.EntityKind),
			ev.Timestamp.UTC().Format(tsLayout),
			nullString(string(ev.Data)),
			now,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting event: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing events: %w", err)
	}

	s.logger.Debug("saved events",
		"agency_id", agencyID,
		"received", len(events),
		"inserted", inserted,
	)
	return inserted, nil
}

// ListEntityEvents returns the entity's events ordered by timestamp, then by
// insertion order.
func (s *SQLiteStore) ListEntityEvents(ctx context.Context, agencyID, entityID string) ([]event.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, type, entity_id, entity_kind, ts, data
		FROM events
		WHERE agency_id = ? AND entity_id = ?
		ORDER BY ts ASC, seq ASC
	`, agencyID, entityID)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var (
			id, kind, data sql.NullString
			typ, ts        string
			ev             event.Event
		)
		if err := rows.Scan(&id, &typ, &ev.EntityID, &kind, &ts, &data); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}

		ev.ID = id.String
		ev.Type = event.Type(typ)
		ev.EntityKind = kind.String
		if data.Valid {
			ev.Data = []byte(data.String)
		}
		ev.Timestamp, err = time.Parse(tsLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}

	if len(events) == 0 {
		return nil, ErrNotFound
	}
	return events, nil
}

// ListEntities summarizes cached entities in the agency.
func (s *SQLiteStore) ListEntities(ctx context.Context, agencyID string) ([]EntityRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, COALESCE(MAX(entity_kind), ''), COUNT(*), MAX(ts)
		FROM events
		WHERE agency_id = ?
		GROUP BY entity_id
		ORDER BY entity_id ASC
	`, agencyID)
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()

	var records []EntityRecord
	for rows.Next() {
		rec := EntityRecord{AgencyID: agencyID}
		var last string
		if err := rows.Scan(&rec.EntityID, &rec.EntityKind, &rec.EventCount, &last); err != nil {
			return nil, fmt.Errorf("scanning entity row: %w", err)
		}
		rec.LastEventAt, err = time.Parse(tsLayout, last)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entity rows: %w", err)
	}
	return records, nil
}

// DeleteAgency removes every cached event for the agency.
func (s *SQLiteStore) DeleteAgency(ctx context.Context, agencyID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE agency_id = ?`, agencyID)
	if err != nil {
		return fmt.Errorf("deleting events: %w", err)
	}
	n, _ := res.RowsAffected()
	s.logger.Info("deleted cached agency", "agency_id", agencyID, "events", n)
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
