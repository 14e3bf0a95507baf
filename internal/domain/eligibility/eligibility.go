// Package eligibility narrows the referee pool to those able to take a
// given game.
package eligibility

import (
	"fmt"
	"time"

	"github.com/okian/refmatch/internal/domain/geo"
	"github.com/okian/refmatch/internal/domain/model"
)

// Policy decides who may take an emergency game when nobody opted in.
type Policy string

// Emergency fallback policies.
const (
	// PolicyWiden falls back to otherwise eligible referees and flags them.
	PolicyWiden Policy = "widen"
	// PolicyOptedInOnly leaves the game unmatched.
	PolicyOptedInOnly Policy = "opted_in_only"
)

// Reason explains why a referee was left out.
type Reason string

// Rejection reasons, in the order they are checked.
const (
	ReasonInactive        Reason = "inactive"
	ReasonBackgroundCheck Reason = "background_check"
	ReasonCertification   Reason = "certification"
	ReasonUnavailable     Reason = "unavailable"
	ReasonConflict        Reason = "conflict"
	ReasonLocation        Reason = "invalid_location"
	ReasonDistance        Reason = "distance"
	ReasonExcluded        Reason = "excluded"
	ReasonOptIn           Reason = "emergency_opt_in"
)

// DistanceLimitKm is the hard travel radius. Configured radii are capped
// at it.
const DistanceLimitKm = 50.0

// DefaultLevels is the seniority order used when none is configured.
var DefaultLevels = []model.Level{"entry", "intermediate", "advanced"}

// Candidate is an eligible referee together with the facts scoring needs.
type Candidate struct {
	Referee    model.Referee
	DistanceKm float64
	// LevelDelta is how many levels the best valid certification sits
	// above the game's requirement.
	LevelDelta int
	// Fallback marks a non-opted-in referee admitted to an emergency game.
	Fallback bool
}

// Input is one filtering request.
type Input struct {
	Game model.Game
	Pool []model.Referee
	// Busy maps referee ids to the windows of their other non-terminal
	// assignments.
	Busy      map[string][]model.Window
	Emergency bool
}

// Result is the outcome of filtering. Rejected is populated even when no
// candidate survived.
type Result struct {
	Candidates []Candidate
	Fallback   bool
	Rejected   map[Reason]int
}

// Filter applies the eligibility rules.
type Filter struct {
	maxDistanceKm float64
	buffer        time.Duration
	levels        map[model.Level]int
	policy        Policy
}

// New creates a Filter.
func New(opts ...Option) *Filter {
	f := &Filter{
		maxDistanceKm: DistanceLimitKm,
		policy:        PolicyWiden,
	}
	WithLevels(DefaultLevels...)(f)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// MaxDistanceKm returns the global travel radius.
func (f *Filter) MaxDistanceKm() float64 { return f.maxDistanceKm }

// Apply returns the eligible candidates for in.Game. It fails with
// ErrNoEligibleReferees when nobody qualifies.
func (f *Filter) Apply(in Input) (Result, error) {
	res := Result{Rejected: make(map[Reason]int)}

	if err := in.Game.Location.Validate(); err != nil {
		return res, fmt.Errorf("game %s: %w", in.Game.ID, err)
	}
	required, ok := f.levels[in.Game.Level]
	if !ok {
		return res, fmt.Errorf("%w: %q", ErrUnknownLevel, in.Game.Level)
	}

	var optedIn, others []Candidate
	for _, r := range in.Pool {
		c, reason := f.check(in, r, required)
		if reason != "" {
			res.Rejected[reason]++
			continue
		}
		if r.EmergencyOptIn || !in.Emergency {
			optedIn = append(optedIn, c)
		} else {
			others = append(others, c)
		}
	}

	switch {
	case len(optedIn) > 0:
		res.Candidates = optedIn
		res.Rejected[ReasonOptIn] += len(others)
	case len(others) > 0 && f.policy == PolicyWiden:
		for i := range others {
			others[i].Fallback = true
		}
		res.Candidates = others
		res.Fallback = true
	default:
		res.Rejected[ReasonOptIn] += len(others)
	}

	if len(res.Candidates) == 0 {
		return res, fmt.Errorf("game %s: %w", in.Game.ID, ErrNoEligibleReferees)
	}
	return res, nil
}

// check evaluates every rule except opt-in and returns the first failure.
func (f *Filter) check(in Input, r model.Referee, required int) (Candidate, Reason) {
	g := in.Game
	if !r.Active {
		return Candidate{}, ReasonInactive
	}
	if !r.BackgroundCleared {
		return Candidate{}, ReasonBackgroundCheck
	}

	delta, ok := f.certified(r, g, required)
	if !ok {
		return Candidate{}, ReasonCertification
	}

	window := g.Window()
	if !r.Availability.Covers(window) {
		return Candidate{}, ReasonUnavailable
	}
	padded := window.Pad(f.buffer)
	for _, busy := range in.Busy[r.ID] {
		if busy.Overlaps(padded) {
			return Candidate{}, ReasonConflict
		}
	}

	km, err := geo.Distance(r.Home, g.Location)
	if err != nil {
		return Candidate{}, ReasonLocation
	}
	limit := f.maxDistanceKm
	if r.MaxTravelKm > 0 && r.MaxTravelKm < limit {
		limit = r.MaxTravelKm
	}
	if km > limit {
		return Candidate{}, ReasonDistance
	}

	if g.Excludes(r.ID) {
		return Candidate{}, ReasonExcluded
	}
	return Candidate{Referee: r, DistanceKm: km, LevelDelta: delta}, ""
}

// certified reports whether r holds a valid certification for the game's
// sport at or above the required level, and by how many levels.
func (f *Filter) certified(r model.Referee, g model.Game, required int) (int, bool) {
	best := -1
	for _, c := range r.Certifications {
		if c.Sport != g.Sport || !c.ValidAt(g.StartsAt) {
			continue
		}
		rank, ok := f.levels[c.Level]
		if !ok || rank < required {
			continue
		}
		if d := rank - required; d > best {
			best = d
		}
	}
	return best, best >= 0
}
