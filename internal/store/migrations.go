package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "contacts: warmth state per tracked contact",
		SQL: `
CREATE TABLE contacts (
    id           TEXT PRIMARY KEY,
    display_name TEXT,

    -- Anchor state: amplitude set at anchor_at, decaying ever since.
    -- Written only by ApplyEvent / WriteMode.
    amplitude    REAL NOT NULL DEFAULT 0,
    anchor_at    INTEGER NOT NULL,
    mode         TEXT NOT NULL DEFAULT 'medium' CHECK (mode IN ('slow', 'medium', 'fast', 'test')),

    -- Cached display fields, refreshed by recompute. Written only by WriteCache.
    cached_score INTEGER NOT NULL DEFAULT 0 CHECK (cached_score BETWEEN 0 AND 100),
    cached_at    INTEGER,
    band         TEXT NOT NULL DEFAULT 'cold' CHECK (band IN ('hot', 'warm', 'neutral', 'cool', 'cold')),

    -- Optimistic concurrency: every warmth write bumps this.
    row_version  INTEGER NOT NULL DEFAULT 1,

    created_at   INTEGER NOT NULL,
    updated_at   INTEGER NOT NULL
);

CREATE INDEX idx_contacts_band  ON contacts(band);
CREATE INDEX idx_contacts_score ON contacts(cached_score);
`,
	},
	{
		Version:     2,
		Description: "warmth_events: append-only idempotency ledger",
		SQL: `
CREATE TABLE warmth_events (
    id          INTEGER PRIMARY KEY,
    source_key  TEXT NOT NULL UNIQUE,
    contact_id  TEXT NOT NULL,
    weight      REAL NOT NULL,
    occurred_at INTEGER NOT NULL,
    applied_at  INTEGER NOT NULL,

    FOREIGN KEY (contact_id) REFERENCES contacts(id) ON DELETE CASCADE
);

CREATE INDEX idx_events_contact ON warmth_events(contact_id);
`,
	},
	{
		Version:     3,
		Description: "sweep_state: resumable batch recompute cursor",
		SQL: `
CREATE TABLE sweep_state (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    cursor     TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
