package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Event kinds recorded by the sync layer.
const (
	KindPatchFlush = "patch_flush"
	KindDirectSave = "direct_save"
	KindReset      = "reset"
	KindBootstrap  = "bootstrap"
)

// Event outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// SyncEvent records metadata for a single sync operation.
type SyncEvent struct {
	Kind      string
	Outcome   string
	Detail    string
	LatencyMS int64
	Timestamp time.Time
}

// Store handles persistence of sync events to SQLite. A nil Store is valid
// and drops every event, so callers never need to guard journal access.
type Store struct {
	db *sql.DB
}

// NewStore initializes the Store with an existing database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record saves a sync event to the database.
func (s *Store) Record(e SyncEvent) error {
	if s == nil || s.db == nil {
		return nil
	}

	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO sync_events (kind, outcome, detail, latency_ms, timestamp) VALUES (?, ?, ?, ?, ?)`,
		e.Kind, e.Outcome, e.Detail, e.LatencyMS, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync event: %w", err)
	}
	return nil
}

// RecentEvents returns the most recent sync events, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]SyncEvent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, outcome, detail, latency_ms, timestamp FROM sync_events ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync events: %w", err)
	}
	defer rows.Close()

	var events []SyncEvent
	for rows.Next() {
		var e SyncEvent
		if err := rows.Scan(&e.Kind, &e.Outcome, &e.Detail, &e.LatencyMS, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan sync event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
