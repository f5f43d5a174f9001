// Package mirror implements the durable local mirror: device-local,
// string-keyed persistence that survives process restarts. Each slot holds one
// JSON-serialized value; a missing slot means "never synced", not an error.
package mirror

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Slot names for the shared grocery document fields.
const (
	SlotCheckedItems    = "checked_items"
	SlotCustomItems     = "custom_items"
	SlotSelectedEntries = "selected_entries"
	SlotEntryServings   = "entry_servings"

	// SlotCacheSnapshot holds the persisted query cache blob.
	SlotCacheSnapshot = "query_cache_snapshot"

	// SlotDeviceID holds the generated per-device writer identity.
	SlotDeviceID = "device_id"
)

// Store persists mirror slots to SQLite.
type Store struct {
	db *sql.DB
}

// NewStore initializes the Store with an existing database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Put writes a slot value, replacing any previous value.
func (s *Store) Put(ctx context.Context, slot string, value []byte) error {
	if slot == "" {
		return fmt.Errorf("slot name is required")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mirror_slots (slot, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(slot) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		slot, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to write mirror slot %q: %w", slot, err)
	}
	return nil
}

// Get reads a slot value. A slot that was never written returns (nil, nil).
func (s *Store) Get(ctx context.Context, slot string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM mirror_slots WHERE slot = ?`, slot,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil // never synced
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read mirror slot %q: %w", slot, err)
	}
	return value, nil
}

// Delete removes a slot. Deleting an absent slot is not an error.
func (s *Store) Delete(ctx context.Context, slot string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM mirror_slots WHERE slot = ?`, slot)
	if err != nil {
		return fmt.Errorf("failed to delete mirror slot %q: %w", slot, err)
	}
	return nil
}
