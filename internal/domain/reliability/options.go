package reliability

import (
	"time"

	"github.com/okian/refmatch/internal/domain/dedupe"
)

// Option configures a Tracker.
type Option func(*Tracker)

// WithInitial sets the score for referees without history.
func WithInitial(v float64) Option {
	return func(t *Tracker) {
		if v >= 0 && v <= 1 {
			t.initial = v
		}
	}
}

// WithStreakBonus sets the per-completion bonus and its cap.
func WithStreakBonus(step, limit float64) Option {
	return func(t *Tracker) {
		if step >= 0 && limit >= 0 {
			t.streakStep = step
			t.streakCap = limit
		}
	}
}

// WithNoShowPenalty sets the recency penalty and the window over which it
// decays to zero.
func WithNoShowPenalty(penalty float64, window time.Duration) Option {
	return func(t *Tracker) {
		if penalty >= 0 && window >= 0 {
			t.penalty = penalty
			t.penaltyWindow = window
		}
	}
}

// WithDeduper sets the store of applied outcome ids.
func WithDeduper(d dedupe.Deduper) Option {
	return func(t *Tracker) {
		if d != nil {
			t.seen = d
		}
	}
}
