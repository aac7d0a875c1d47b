package store

import (
	"database/sql"
	"fmt"
	"time"
)

// SweepCursor returns the persisted batch-recompute cursor, if a sweep was
// interrupted mid-way. ok is false when no sweep is in progress.
func (db *DB) SweepCursor() (cursor string, ok bool, err error) {
	err = db.QueryRow("SELECT cursor FROM sweep_state WHERE id = 1").Scan(&cursor)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sweep cursor: %w", err)
	}
	return cursor, true, nil
}

// SaveSweepCursor persists the cursor after a completed page so a crashed
// sweep resumes where it left off.
func (db *DB) SaveSweepCursor(cursor string) error {
	_, err := db.Exec(`
		INSERT INTO sweep_state (id, cursor, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET cursor = excluded.cursor, updated_at = excluded.updated_at
	`, cursor, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save sweep cursor: %w", err)
	}
	return nil
}

// ClearSweepCursor marks the current sweep as complete.
func (db *DB) ClearSweepCursor() error {
	if _, err := db.Exec("DELETE FROM sweep_state WHERE id = 1"); err != nil {
		return fmt.Errorf("clear sweep cursor: %w", err)
	}
	return nil
}
