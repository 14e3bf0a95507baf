// Package reliability derives a referee's reliability score from the
// outcomes of their past assignments.
package reliability

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/okian/refmatch/internal/domain/dedupe"
	"github.com/okian/refmatch/internal/domain/model"
	"github.com/okian/refmatch/pkg/metrics"
)

// Tracker recomputes reliability once per terminal assignment outcome.
type Tracker struct {
	initial       float64
	streakStep    float64
	streakCap     float64
	penalty       float64
	penaltyWindow time.Duration
	seen          dedupe.Deduper
}

// New creates a Tracker with the default curve.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		initial:       0.85,
		streakStep:    0.01,
		streakCap:     0.05,
		penalty:       0.10,
		penaltyWindow: 30 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.seen == nil {
		t.seen = dedupe.NewInMemoryDeduper()
	}
	return t
}

// Initial is the score assigned to referees without outcome history.
func (t *Tracker) Initial() float64 { return t.initial }

// Score computes reliability from stats as of now. The result is always
// in [0,1].
func (t *Tracker) Score(s model.Stats, now time.Time) float64 {
	if s.TotalOutcomes <= 0 {
		return t.initial
	}
	score := clamp(float64(s.Completed-s.NoShows) / float64(s.TotalOutcomes))
	score += math.Min(t.streakCap, t.streakStep*float64(s.Streak))

	if !s.LastNoShowAt.IsZero() && t.penaltyWindow > 0 {
		age := now.Sub(s.LastNoShowAt)
		if age < 0 {
			age = 0
		}
		if age < t.penaltyWindow {
			score -= t.penalty * (1 - float64(age)/float64(t.penaltyWindow))
		}
	}
	return clamp(score)
}

// Current returns the reliability used for ranking. Referees without
// history keep their stored value; everyone else is recomputed so that
// recency penalties decay on schedule.
func (t *Tracker) Current(r model.Referee, now time.Time) float64 {
	if r.Stats.TotalOutcomes <= 0 {
		return clamp(r.Reliability)
	}
	return t.Score(r.Stats, now)
}

// Apply folds the terminal outcome of a into the referee's stats and
// returns the updated copy. applied is false when the outcome was already
// recorded, in which case r is returned unchanged.
func (t *Tracker) Apply(ctx context.Context, r model.Referee, sport model.Sport, a model.Assignment, at time.Time) (out model.Referee, applied bool, err error) {
	if a.Status != model.AssignmentCompleted && a.Status != model.AssignmentNoShow {
		return r, false, fmt.Errorf("%w: %s", ErrUnsupportedOutcome, a.Status)
	}
	if a.RefereeID != r.ID {
		return r, false, fmt.Errorf("%w: assignment %s belongs to %s", ErrRefereeMismatch, a.ID, a.RefereeID)
	}

	dup, err := t.seen.SeenAndRecord(ctx, a.OutcomeID())
	if err != nil {
		return r, false, fmt.Errorf("record outcome %s: %w", a.OutcomeID(), err)
	}
	if dup {
		metrics.RecordDuplicateOutcome()
		return r, false, nil
	}

	out = r.Clone()
	s := &out.Stats
	s.TotalOutcomes++
	switch a.Status {
	case model.AssignmentCompleted:
		s.Completed++
		s.Streak++
		if s.CompletedBySport == nil {
			s.CompletedBySport = make(map[model.Sport]int)
		}
		s.CompletedBySport[sport]++
		if s.LastGameBySport == nil {
			s.LastGameBySport = make(map[model.Sport]time.Time)
		}
		s.LastGameBySport[sport] = at
	case model.AssignmentNoShow:
		s.NoShows++
		s.Streak = 0
		s.LastNoShowAt = at
	}
	out.Reliability = t.Score(out.Stats, at)
	metrics.RecordReliabilityUpdate()
	return out, true, nil
}

// Revert forgets a recorded outcome so the transition can be retried after
// its commit failed.
func (t *Tracker) Revert(ctx context.Context, a model.Assignment) error {
	return t.seen.Unrecord(ctx, a.OutcomeID())
}

// RecordEmergencyResponse updates the emergency acceptance history used by
// emergency availability scoring.
func RecordEmergencyResponse(r model.Referee, accepted bool) model.Referee {
	out := r.Clone()
	out.Stats.EmergencyOffers++
	if accepted {
		out.Stats.EmergencyAccepts++
	}
	return out
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
