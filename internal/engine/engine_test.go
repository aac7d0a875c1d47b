package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/IsaiahDupree/EverReach-sub008/internal/store"
	"github.com/IsaiahDupree/EverReach-sub008/internal/warmth"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	eng := New(db)
	eng.Now = func() time.Time { return t0 }
	return eng
}

func createContact(t *testing.T, eng *Engine, id string, anchor time.Time) {
	t.Helper()
	err := eng.DB.CreateContact(&store.Contact{
		ID:       id,
		AnchorAt: anchor.UnixMilli(),
	})
	if err != nil {
		t.Fatalf("CreateContact(%s): %v", id, err)
	}
}

func TestApplyEventBoost(t *testing.T) {
	eng := testEngine(t)
	ctx := context.Background()
	createContact(t, eng, "c1", t0)

	res, err := eng.ApplyEvent(ctx, "c1", Event{SourceKey: "int-001", OccurredAt: t0, Weight: 9})
	if err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}
	if !res.Applied {
		t.Fatal("expected applied = true")
	}
	if res.Contact.Amplitude != 9 {
		t.Errorf("amplitude = %v, want 9", res.Contact.Amplitude)
	}
	if res.Contact.CachedScore != 39 {
		t.Errorf("cached_score = %d, want 39", res.Contact.CachedScore)
	}
	if res.Contact.Band != warmth.BandCool {
		t.Errorf("band = %s, want cool", res.Contact.Band)
	}
}

func TestApplyEventReanchors(t *testing.T) {
	eng := testEngine(t)
	ctx := context.Background()
	createContact(t, eng, "c1", t0)

	// amplitude 50 anchored at t0
	if _, err := eng.ApplyEvent(ctx, "c1", Event{SourceKey: "int-001", OccurredAt: t0, Weight: 50}); err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}

	// One medium half-life later: decayed equivalent ≈ 25. A new weight-10
	// event must land on the decayed value, not the stale 50.
	at := t0.Add(8 * 24 * time.Hour)
	eng.Now = func() time.Time { return at }
	res, err := eng.ApplyEvent(ctx, "c1", Event{SourceKey: "int-002", OccurredAt: at, Weight: 10})
	if err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}

	if res.Contact.Amplitude < 34 || res.Contact.Amplitude > 36 {
		t.Errorf("amplitude = %v, want ≈ 35 (decayed 25 + 10), not 60", res.Contact.Amplitude)
	}
	if res.Contact.AnchorAt != at.UnixMilli() {
		t.Errorf("anchor_at = %d, want event time %d", res.Contact.AnchorAt, at.UnixMilli())
	}
}

func TestApplyEventClampsAmplitude(t *testing.T) {
	eng := testEngine(t)
	ctx := context.Background()
	createContact(t, eng, "c1", t0)

	res, err := eng.ApplyEvent(ctx, "c1", Event{SourceKey: "int-001", OccurredAt: t0, Weight: 500})
	if err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}
	if res.Contact.Amplitude != 70 {
		t.Errorf("amplitude = %v, want clamped to 70", res.Contact.Amplitude)
	}
	if res.Contact.CachedScore != 100 {
		t.Errorf("cached_score = %d, want 100", res.Contact.CachedScore)
	}
}

func TestApplyEventIdempotent(t *testing.T) {
	eng := testEngine(t)
	ctx := context.Background()
	createContact(t, eng, "c1", t0)

	ev := Event{SourceKey: "out-042", OccurredAt: t0, Weight: 5}
	first, err := eng.ApplyEvent(ctx, "c1", ev)
	if err != nil {
		t.Fatalf("first ApplyEvent: %v", err)
	}

	// Retried outbox delivery: success-no-op, amplitude unchanged.
	second, err := eng.ApplyEvent(ctx, "c1", ev)
	if err != nil {
		t.Fatalf("duplicate ApplyEvent: %v", err)
	}
	if second.Applied {
		t.Error("expected applied = false for duplicate")
	}
	if second.Contact.Amplitude != first.Contact.Amplitude {
		t.Errorf("amplitude changed on duplicate: %v → %v", first.Contact.Amplitude, second.Contact.Amplitude)
	}
}

func TestApplyEventStale(t *testing.T) {
	eng := testEngine(t)
	ctx := context.Background()
	createContact(t, eng, "c1", t0)

	_, err := eng.ApplyEvent(ctx, "c1", Event{
		SourceKey:  "int-001",
		OccurredAt: t0.Add(-time.Hour),
		Weight:     5,
	})
	if !errors.Is(err, ErrStaleEvent) {
		t.Errorf("ApplyEvent(before anchor) = %v, want ErrStaleEvent", err)
	}
}

func TestApplyEventUnknownContact(t *testing.T) {
	eng := testEngine(t)

	_, err := eng.ApplyEvent(context.Background(), "ghost", Event{SourceKey: "int-001", OccurredAt: t0, Weight: 5})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("ApplyEvent(unknown) = %v, want ErrNotFound", err)
	}
}

func TestRecomputeOneIdempotent(t *testing.T) {
	eng := testEngine(t)
	ctx := context.Background()
	createContact(t, eng, "c1", t0)

	first, err := eng.RecomputeOne(ctx, "c1")
	if err != nil {
		t.Fatalf("RecomputeOne: %v", err)
	}
	second, err := eng.RecomputeOne(ctx, "c1")
	if err != nil {
		t.Fatalf("second RecomputeOne: %v", err)
	}

	if first.CachedScore != second.CachedScore {
		t.Errorf("repeated recompute changed score: %d → %d", first.CachedScore, second.CachedScore)
	}
	if first.Amplitude != second.Amplitude || first.AnchorAt != second.AnchorAt {
		t.Error("recompute must never touch anchor fields")
	}
}

func TestRecomputeDoesNotCompoundDecay(t *testing.T) {
	eng := testEngine(t)
	ctx := context.Background()
	createContact(t, eng, "c1", t0)

	if _, err := eng.ApplyEvent(ctx, "c1", Event{SourceKey: "int-001", OccurredAt: t0, Weight: 40}); err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}

	// Recomputing ten times at the same instant must give the same score
	// as recomputing once: decay derives from the anchor, not from the
	// previous cached value.
	at := t0.Add(5 * 24 * time.Hour)
	eng.Now = func() time.Time { return at }

	want := warmth.ScoreAt(eng.Params, warmth.State{Amplitude: 40, AnchorAt: t0, Mode: warmth.ModeMedium}, at)
	for i := 0; i < 10; i++ {
		c, err := eng.RecomputeOne(ctx, "c1")
		if err != nil {
			t.Fatalf("RecomputeOne #%d: %v", i, err)
		}
		if c.CachedScore != want {
			t.Fatalf("recompute #%d score = %d, want %d", i, c.CachedScore, want)
		}
	}
}

func TestLifecycleScenario(t *testing.T) {
	eng := testEngine(t)
	ctx := context.Background()

	// Fresh contact: amplitude 0 → score 30 → cool.
	createContact(t, eng, "c1", t0)
	c, err := eng.RecomputeOne(ctx, "c1")
	if err != nil {
		t.Fatalf("RecomputeOne: %v", err)
	}
	if c.CachedScore != 30 || c.Band != warmth.BandCool {
		t.Fatalf("fresh contact = %d/%s, want 30/cool", c.CachedScore, c.Band)
	}

	// One strong interaction: amplitude 60 → score 90 → hot.
	res, err := eng.ApplyEvent(ctx, "c1", Event{SourceKey: "int-001", OccurredAt: t0, Weight: 60})
	if err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}
	if res.Contact.CachedScore != 90 || res.Contact.Band != warmth.BandHot {
		t.Fatalf("after interaction = %d/%s, want 90/hot", res.Contact.CachedScore, res.Contact.Band)
	}

	// 60 days of silence under medium: amplitude ≈ 0.34 → score 30 → cool.
	eng.Now = func() time.Time { return t0.Add(60 * 24 * time.Hour) }
	c, err = eng.RecomputeOne(ctx, "c1")
	if err != nil {
		t.Fatalf("RecomputeOne: %v", err)
	}
	if c.CachedScore != 30 || c.Band != warmth.BandCool {
		t.Errorf("after 60 days = %d/%s, want 30/cool", c.CachedScore, c.Band)
	}
}

func TestSwitchModePreservesScore(t *testing.T) {
	eng := testEngine(t)
	ctx := context.Background()
	createContact(t, eng, "c1", t0)

	if _, err := eng.ApplyEvent(ctx, "c1", Event{SourceKey: "int-001", OccurredAt: t0, Weight: 50}); err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}

	at := t0.Add(4 * 24 * time.Hour)
	eng.Now = func() time.Time { return at }

	sw, err := eng.SwitchMode(ctx, "c1", warmth.ModeFast)
	if err != nil {
		t.Fatalf("SwitchMode: %v", err)
	}
	if sw.ModeBefore != warmth.ModeMedium || sw.ModeAfter != warmth.ModeFast {
		t.Errorf("modes = %s→%s, want medium→fast", sw.ModeBefore, sw.ModeAfter)
	}
	if diff := sw.ScoreAfter - sw.ScoreBefore; diff < -1 || diff > 1 {
		t.Errorf("score jumped across mode switch: %d → %d", sw.ScoreBefore, sw.ScoreAfter)
	}

	c, _ := eng.DB.GetContact("c1")
	if c.Mode != warmth.ModeFast {
		t.Errorf("mode = %s, want fast", c.Mode)
	}
	if c.AnchorAt != at.UnixMilli() {
		t.Errorf("anchor_at = %d, want re-anchored at %d", c.AnchorAt, at.UnixMilli())
	}
	// Equivalent amplitude: 50·e^(-0.085998·4) ≈ 35.4
	if math.Abs(c.Amplitude-35.4) > 0.5 {
		t.Errorf("amplitude = %v, want ≈ 35.4 decayed equivalent", c.Amplitude)
	}
}

func TestRecomputeOneConflictExhaustsRetries(t *testing.T) {
	eng := testEngine(t)
	ctx := context.Background()
	createContact(t, eng, "c1", t0)

	// A rival writer bumps row_version between every read and write,
	// so each attempt loses its version guard.
	attempts := 0
	eng.Now = func() time.Time {
		attempts++
		c, err := eng.DB.GetContact("c1")
		if err != nil {
			t.Fatalf("rival read: %v", err)
		}
		if err := eng.DB.WriteCache("c1", 50, warmth.BandNeutral, t0.UnixMilli(), c.RowVersion); err != nil {
			t.Fatalf("rival write: %v", err)
		}
		return t0
	}

	_, err := eng.RecomputeOne(ctx, "c1")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("RecomputeOne under constant conflict = %v, want ErrConflict", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want bounded at 3", attempts)
	}
}

func TestRecomputeBatchPagination(t *testing.T) {
	eng := testEngine(t)
	ctx := context.Background()
	for _, id := range []string{"c1", "c2", "c3", "c4", "c5"} {
		createContact(t, eng, id, t0)
	}

	res, err := eng.RecomputeBatch(ctx, "", 2)
	if err != nil {
		t.Fatalf("RecomputeBatch: %v", err)
	}
	if res.Processed != 2 || res.NextCursor != "c2" || res.Done {
		t.Fatalf("page 1 = %+v, want 2 processed, cursor c2, not done", res)
	}

	res, err = eng.RecomputeBatch(ctx, res.NextCursor, 2)
	if err != nil {
		t.Fatalf("RecomputeBatch: %v", err)
	}
	if res.Processed != 2 || res.NextCursor != "c4" || res.Done {
		t.Fatalf("page 2 = %+v, want 2 processed, cursor c4, not done", res)
	}

	res, err = eng.RecomputeBatch(ctx, res.NextCursor, 2)
	if err != nil {
		t.Fatalf("RecomputeBatch: %v", err)
	}
	if res.Processed != 1 || !res.Done {
		t.Fatalf("page 3 = %+v, want 1 processed and done", res)
	}

	// All contacts refreshed
	for _, id := range []string{"c1", "c2", "c3", "c4", "c5"} {
		c, _ := eng.DB.GetContact(id)
		if c.CachedAt == nil {
			t.Errorf("contact %s not refreshed", id)
		}
	}
}

func TestRecomputeBatchEmpty(t *testing.T) {
	eng := testEngine(t)

	res, err := eng.RecomputeBatch(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("RecomputeBatch: %v", err)
	}
	if !res.Done || res.Processed != 0 {
		t.Errorf("empty batch = %+v, want done with 0 processed", res)
	}
}

func TestRecomputeBatchCancellation(t *testing.T) {
	eng := testEngine(t)
	for _, id := range []string{"c1", "c2", "c3"} {
		createContact(t, eng, id, t0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := eng.RecomputeBatch(ctx, "", 10)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RecomputeBatch(cancelled) = %v, want context.Canceled", err)
	}
	if res.Processed != 0 {
		t.Errorf("processed = %d, want 0 after immediate cancel", res.Processed)
	}
}
