package eligibility

import (
	"math"
	"time"

	"github.com/okian/refmatch/internal/domain/model"
)

// Option configures a Filter.
type Option func(*Filter)

// WithMaxDistanceKm sets the global travel radius, capped at
// DistanceLimitKm.
func WithMaxDistanceKm(km float64) Option {
	return func(f *Filter) {
		if km > 0 {
			f.maxDistanceKm = math.Min(km, DistanceLimitKm)
		}
	}
}

// WithConflictBuffer pads each game so back-to-back commitments conflict.
func WithConflictBuffer(d time.Duration) Option {
	return func(f *Filter) {
		if d >= 0 {
			f.buffer = d
		}
	}
}

// WithLevels sets the level seniority order, lowest first.
func WithLevels(levels ...model.Level) Option {
	return func(f *Filter) {
		if len(levels) == 0 {
			return
		}
		f.levels = make(map[model.Level]int, len(levels))
		for i, l := range levels {
			f.levels[l] = i
		}
	}
}

// WithPolicy sets the emergency fallback policy.
func WithPolicy(p Policy) Option {
	return func(f *Filter) {
		if p == PolicyWiden || p == PolicyOptedInOnly {
			f.policy = p
		}
	}
}
