package engine

import (
	"context"
	"errors"
	"time"

	"github.com/IsaiahDupree/EverReach-sub008/internal/store"
	"github.com/IsaiahDupree/EverReach-sub008/internal/warmth"
)

// ErrStaleEvent is returned when an event's timestamp precedes the
// contact's current anchor. The caller must re-read or drop the event;
// anchors never rewind.
var ErrStaleEvent = errors.New("event older than current anchor")

// ErrConflict is surfaced when the bounded retry loop exhausts without
// winning a version-guarded write.
var ErrConflict = store.ErrConflict

// casRetries bounds the optimistic-concurrency retry loop. Conflicts past
// this are surfaced as transient errors (HTTP 409 at the API edge).
const casRetries = 3

// Engine applies qualifying events to contact warmth state and refreshes
// cached scores. All persistence goes through the store; the engine itself
// holds no mutable state.
type Engine struct {
	DB     *store.DB
	Params warmth.Params

	// Now is injectable for deterministic tests. Defaults to time.Now.
	Now func() time.Time
}

// New creates an Engine with production decay constants.
func New(db *store.DB) *Engine {
	return &Engine{
		DB:     db,
		Params: warmth.DefaultParams(),
		Now:    time.Now,
	}
}

// Event is one qualifying trigger: a logged interaction or a confirmed
// outbox send. SourceKey is the originating record's unique id and drives
// idempotency; Weight is chosen by the caller's channel policy.
type Event struct {
	SourceKey  string
	OccurredAt time.Time
	Weight     float64
}

// ApplyResult reports what an event application did.
type ApplyResult struct {
	Contact *store.Contact
	Applied bool // false when the source_key had already been applied
}

// ApplyEvent folds decay-to-event-time into the contact's amplitude, adds
// the event's weight, and re-anchors at the event instant. The ledger
// insert and anchor write commit atomically; a duplicate source_key is a
// success-no-op. The cached score is refreshed afterwards either way.
func (e *Engine) ApplyEvent(ctx context.Context, contactID string, ev Event) (*ApplyResult, error) {
	if ev.SourceKey == "" {
		return nil, errors.New("event source_key required")
	}

	var applied bool
	var lastErr error
	for attempt := 0; attempt < casRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c, err := e.DB.GetContact(contactID)
		if err != nil {
			return nil, err
		}
		if ev.OccurredAt.UnixMilli() < c.AnchorAt {
			return nil, ErrStaleEvent
		}

		// Re-anchor: add the weight to the amplitude *already decayed* to
		// the event time, never to the stale original. This keeps repeated
		// small boosts from outpacing a single large one.
		decayed := warmth.AmplitudeAt(e.Params, c.WarmthState(), ev.OccurredAt)
		newAmp := decayed + ev.Weight
		if newAmp < 0 {
			newAmp = 0
		}
		if max := e.Params.MaxAmplitude(); newAmp > max {
			newAmp = max
		}

		applied, err = e.DB.ApplyEvent(contactID, ev.SourceKey, ev.Weight,
			ev.OccurredAt.UnixMilli(), newAmp, c.RowVersion)
		if errors.Is(err, store.ErrConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return nil, lastErr
	}

	// Losers of the idempotency race still refresh the cache; with no
	// amplitude change this is a pure recompute.
	c, err := e.RecomputeOne(ctx, contactID)
	if err != nil {
		return nil, err
	}
	return &ApplyResult{Contact: c, Applied: applied}, nil
}

// RecomputeOne refreshes a contact's cached score, band, and cached_at
// from the anchor state. It never touches the anchor itself, so repeated
// calls with no new events are idempotent up to elapsed time.
func (e *Engine) RecomputeOne(ctx context.Context, contactID string) (*store.Contact, error) {
	var lastErr error
	for attempt := 0; attempt < casRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c, err := e.DB.GetContact(contactID)
		if err != nil {
			return nil, err
		}

		now := e.Now()
		score := warmth.ScoreAt(e.Params, c.WarmthState(), now)
		band := warmth.BandFor(score)

		err = e.DB.WriteCache(contactID, score, band, now.UnixMilli(), c.RowVersion)
		if errors.Is(err, store.ErrConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		return e.DB.GetContact(contactID)
	}
	return nil, lastErr
}

// ModeSwitch reports a decay-mode change.
type ModeSwitch struct {
	ModeBefore  warmth.Mode
	ModeAfter   warmth.Mode
	ScoreBefore int
	ScoreAfter  int
	BandAfter   warmth.Band
}

// SwitchMode changes a contact's decay mode, re-anchoring at now with the
// current decayed amplitude so the score is continuous across the switch.
// The new mode applies from now on; it never rewrites history.
func (e *Engine) SwitchMode(ctx context.Context, contactID string, mode warmth.Mode) (*ModeSwitch, error) {
	if !warmth.ValidMode(mode) {
		return nil, errors.New("invalid mode")
	}

	var lastErr error
	for attempt := 0; attempt < casRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c, err := e.DB.GetContact(contactID)
		if err != nil {
			return nil, err
		}

		now := e.Now()
		before := warmth.ScoreAt(e.Params, c.WarmthState(), now)
		amp := warmth.AmplitudeAt(e.Params, c.WarmthState(), now)

		// Anchors never rewind, even under clock skew.
		anchorMs := now.UnixMilli()
		if anchorMs < c.AnchorAt {
			anchorMs = c.AnchorAt
		}

		err = e.DB.WriteMode(contactID, mode, amp, anchorMs, c.RowVersion)
		if errors.Is(err, store.ErrConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}

		refreshed, err := e.RecomputeOne(ctx, contactID)
		if err != nil {
			return nil, err
		}
		return &ModeSwitch{
			ModeBefore:  c.Mode,
			ModeAfter:   mode,
			ScoreBefore: before,
			ScoreAfter:  refreshed.CachedScore,
			BandAfter:   refreshed.Band,
		}, nil
	}
	return nil, lastErr
}
