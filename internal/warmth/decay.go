package warmth

import (
	"math"
	"time"
)

// Mode selects how quickly a contact's warmth decays toward baseline.
type Mode string

const (
	ModeSlow   Mode = "slow"   // ~30 days between touches
	ModeMedium Mode = "medium" // ~14 days between touches
	ModeFast   Mode = "fast"   // ~7 days between touches
	ModeTest   Mode = "test"   // ~12 hours; testing only
)

// ValidMode reports whether m is a known decay mode.
func ValidMode(m Mode) bool {
	switch m {
	case ModeSlow, ModeMedium, ModeFast, ModeTest:
		return true
	}
	return false
}

// Params holds the decay constants. Passed explicitly everywhere so tests
// can inject their own table; there is no package-level mutable state.
type Params struct {
	Base   float64
	Lambda map[Mode]float64 // decay per day
}

// DefaultParams returns the production decay table.
// Half-lives: slow ≈ 17.3d, medium ≈ 8.1d, fast ≈ 4.0d, test ≈ 0.7d.
func DefaultParams() Params {
	return Params{
		Base: 30,
		Lambda: map[Mode]float64{
			ModeSlow:   0.040132,
			ModeMedium: 0.085998,
			ModeFast:   0.171996,
			ModeTest:   2.407946,
		},
	}
}

// LambdaFor returns the decay rate for a mode, falling back to medium for
// anything unrecognized.
func (p Params) LambdaFor(m Mode) float64 {
	if l, ok := p.Lambda[m]; ok {
		return l
	}
	return p.Lambda[ModeMedium]
}

// MaxAmplitude is the largest boost above baseline that still fits in the
// 0-100 score range.
func (p Params) MaxAmplitude() float64 {
	return 100 - p.Base
}

// State is the anchor portion of a contact's warmth record: the amplitude
// set at anchor time, decaying ever since.
type State struct {
	Amplitude float64
	AnchorAt  time.Time
	Mode      Mode
}

// AmplitudeAt returns the amplitude remaining at time t, after exponential
// decay since the anchor. Elapsed time is clamped at zero so clock skew
// never inflates a score.
func AmplitudeAt(p Params, s State, t time.Time) float64 {
	days := t.Sub(s.AnchorAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	amp := s.Amplitude * math.Exp(-p.LambdaFor(s.Mode)*days)
	if amp < 0 {
		return 0
	}
	return amp
}

// ScoreAt returns the 0-100 warmth score at time t: base plus the decayed
// amplitude, clamped and rounded to the nearest integer. Pure and
// deterministic for identical inputs.
func ScoreAt(p Params, s State, t time.Time) int {
	raw := p.Base + AmplitudeAt(p, s, t)
	if raw < 0 {
		raw = 0
	}
	if raw > 100 {
		raw = 100
	}
	return int(math.Round(raw))
}

// attentionThreshold is the score at which a contact counts as needing a
// touch (matches the reachout guidance in the mode catalogue).
const attentionThreshold = 30

// DaysUntilAttention estimates how many days remain before the contact
// needs a touch. Returns 0 when the contact already needs attention.
//
// This is a reachout horizon, not a literal crossing time: with a base of
// 30 the score approaches the threshold asymptotically and never strictly
// crosses it, so the estimate is ln(score/threshold)/λ — the time for the
// score-to-threshold ratio to decay away. It runs a little optimistic for
// high scores.
func DaysUntilAttention(p Params, score int, mode Mode) int {
	if score <= attentionThreshold {
		return 0
	}
	days := math.Log(float64(score)/attentionThreshold) / p.LambdaFor(mode)
	if days < 0 {
		return 0
	}
	return int(math.Round(days))
}
