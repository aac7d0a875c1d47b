package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/IsaiahDupree/EverReach-sub008/internal/warmth"
)

// ErrExists is returned when initializing warmth state for a contact id
// that already has one.
var ErrExists = errors.New("contact already exists")

// Contact is one tracked contact's warmth state. Timestamps are Unix
// milliseconds. CachedAt is nil until the first recompute.
type Contact struct {
	ID          string
	DisplayName string
	Amplitude   float64
	AnchorAt    int64
	Mode        warmth.Mode
	CachedScore int
	CachedAt    *int64
	Band        warmth.Band
	RowVersion  int64
	CreatedAt   int64
	UpdatedAt   int64
}

// AnchorTime returns the anchor instant as a time.Time.
func (c *Contact) AnchorTime() time.Time {
	return time.UnixMilli(c.AnchorAt)
}

// WarmthState projects the decaying anchor fields for the calculator.
func (c *Contact) WarmthState() warmth.State {
	return warmth.State{
		Amplitude: c.Amplitude,
		AnchorAt:  c.AnchorTime(),
		Mode:      c.Mode,
	}
}

const contactColumns = `id, display_name, amplitude, anchor_at, mode,
	cached_score, cached_at, band, row_version, created_at, updated_at`

// CreateContact initializes warmth state for a new contact. Defaults:
// amplitude 0, anchor at now, mode medium, band cold. Generates a UUID when
// no id is supplied. Called by the contact-creation collaborator.
func (db *DB) CreateContact(c *Contact) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Mode == "" {
		c.Mode = warmth.ModeMedium
	}
	if !warmth.ValidMode(c.Mode) {
		return fmt.Errorf("invalid mode %q", c.Mode)
	}

	now := time.Now().UnixMilli()
	if c.AnchorAt == 0 {
		c.AnchorAt = now
	}
	c.Band = warmth.BandCold
	c.RowVersion = 1
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := db.Exec(`
		INSERT INTO contacts (id, display_name, amplitude, anchor_at, mode,
			cached_score, band, row_version, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?, 0, 'cold', 1, ?, ?)
	`, c.ID, c.DisplayName, c.AnchorAt, string(c.Mode), now, now)
	if err != nil {
		if existing, lookErr := db.GetContact(c.ID); lookErr == nil && existing != nil {
			return ErrExists
		}
		return fmt.Errorf("create contact: %w", err)
	}
	c.Amplitude = 0
	return nil
}

// GetContact returns a contact's warmth state, or ErrNotFound.
func (db *DB) GetContact(id string) (*Contact, error) {
	row := db.QueryRow(`SELECT `+contactColumns+` FROM contacts WHERE id = ?`, id)
	c, err := scanContact(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return c, nil
}

// ApplyEvent records an event in the idempotency ledger and writes the
// re-anchored amplitude, in one transaction. Exactly one caller wins per
// source_key: a duplicate returns (false, nil) without touching the anchor.
// A row_version mismatch returns ErrConflict and rolls back the ledger row
// so the caller can retry with a fresh read.
func (db *DB) ApplyEvent(contactID, sourceKey string, weight float64, occurredAt int64, newAmplitude float64, expectVersion int64) (bool, error) {
	tx, err := db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin apply event: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	res, err := tx.Exec(`
		INSERT OR IGNORE INTO warmth_events (source_key, contact_id, weight, occurred_at, applied_at)
		VALUES (?, ?, ?, ?, ?)
	`, sourceKey, contactID, weight, occurredAt, now)
	if err != nil {
		return false, fmt.Errorf("insert ledger: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Already applied — the idempotency contract working as intended.
		return false, nil
	}

	res, err = tx.Exec(`
		UPDATE contacts SET amplitude = ?, anchor_at = ?, row_version = row_version + 1, updated_at = ?
		WHERE id = ? AND row_version = ?
	`, newAmplitude, occurredAt, now, contactID, expectVersion)
	if err != nil {
		return false, fmt.Errorf("write anchor: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, ErrConflict
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit apply event: %w", err)
	}
	return true, nil
}

// WriteCache refreshes the cached score, band, and cached_at — nothing
// else. Guarded by row_version so a concurrent anchor write is never
// overwritten with a stale score.
func (db *DB) WriteCache(contactID string, score int, band warmth.Band, cachedAt int64, expectVersion int64) error {
	res, err := db.Exec(`
		UPDATE contacts SET cached_score = ?, band = ?, cached_at = ?, row_version = row_version + 1, updated_at = ?
		WHERE id = ? AND row_version = ?
	`, score, string(band), cachedAt, time.Now().UnixMilli(), contactID, expectVersion)
	if err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := db.GetContact(contactID); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

// WriteMode switches the decay mode, re-anchoring with the equivalent
// amplitude so the current score is preserved across the switch.
func (db *DB) WriteMode(contactID string, mode warmth.Mode, amplitude float64, anchorAt int64, expectVersion int64) error {
	if !warmth.ValidMode(mode) {
		return fmt.Errorf("invalid mode %q", mode)
	}
	res, err := db.Exec(`
		UPDATE contacts SET mode = ?, amplitude = ?, anchor_at = ?, row_version = row_version + 1, updated_at = ?
		WHERE id = ? AND row_version = ?
	`, string(mode), amplitude, anchorAt, time.Now().UnixMilli(), contactID, expectVersion)
	if err != nil {
		return fmt.Errorf("write mode: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := db.GetContact(contactID); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

// ListContactsPage returns up to limit contacts with id > afterID, in
// stable id order. Batch sweeps page with this.
func (db *DB) ListContactsPage(afterID string, limit int) ([]Contact, error) {
	rows, err := db.Query(`
		SELECT `+contactColumns+` FROM contacts
		WHERE id > ? ORDER BY id LIMIT ?
	`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list contacts page: %w", err)
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, *c)
	}
	return contacts, rows.Err()
}

// CountContacts returns the number of tracked contacts.
func (db *DB) CountContacts() (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM contacts").Scan(&count)
	return count, err
}

// CountByBand returns the number of contacts in each band.
func (db *DB) CountByBand() (map[warmth.Band]int, error) {
	rows, err := db.Query("SELECT band, COUNT(*) FROM contacts GROUP BY band")
	if err != nil {
		return nil, fmt.Errorf("count by band: %w", err)
	}
	defer rows.Close()

	counts := make(map[warmth.Band]int)
	for rows.Next() {
		var band string
		var n int
		if err := rows.Scan(&band, &n); err != nil {
			return nil, fmt.Errorf("scan band count: %w", err)
		}
		counts[warmth.Band(band)] = n
	}
	return counts, rows.Err()
}

// AverageScore returns the mean cached score across all contacts, or 0
// when there are none.
func (db *DB) AverageScore() (float64, error) {
	var avg sql.NullFloat64
	err := db.QueryRow("SELECT AVG(cached_score) FROM contacts").Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("average score: %w", err)
	}
	return avg.Float64, nil
}

// CountNeedingAttention returns how many contacts have a cached score at
// or below the given threshold.
func (db *DB) CountNeedingAttention(threshold int) (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM contacts WHERE cached_score <= ?", threshold).Scan(&count)
	return count, err
}

// EventCount returns how many ledger entries exist for a contact.
func (db *DB) EventCount(contactID string) (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM warmth_events WHERE contact_id = ?", contactID).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (*Contact, error) {
	var c Contact
	var displayName sql.NullString
	var cachedAt sql.NullInt64
	var mode, band string
	err := row.Scan(&c.ID, &displayName, &c.Amplitude, &c.AnchorAt, &mode,
		&c.CachedScore, &cachedAt, &band, &c.RowVersion, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.DisplayName = displayName.String
	c.Mode = warmth.Mode(mode)
	c.Band = warmth.Band(band)
	if cachedAt.Valid {
		c.CachedAt = &cachedAt.Int64
	}
	return &c, nil
}
