// Package scoring ranks eligible referees for a game and prices emergency
// offers. Everything here is a pure function of its inputs.
package scoring

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/okian/refmatch/internal/domain/eligibility"
	"github.com/okian/refmatch/internal/domain/model"
	"github.com/shopspring/decimal"
)

// Default scoring configuration constants.
const (
	maxScoreValue          = 100
	defaultEmergencyWindow = 24 * time.Hour
	defaultEscalateAfter   = 3
	defaultSurgeCap        = 1.5
	defaultSurgeStep       = 0.10
	defaultSlackHorizon    = 4 * time.Hour
	neutralAcceptRate      = 0.5
)

// Weights combines sub-scores. Availability is used only in emergency mode.
type Weights struct {
	Reliability  float64
	Distance     float64
	Experience   float64
	Availability float64
}

// Default weight sets.
var (
	DefaultNormalWeights    = Weights{Reliability: 0.50, Distance: 0.30, Experience: 0.20}
	DefaultEmergencyWeights = Weights{Availability: 0.40, Reliability: 0.25, Distance: 0.20, Experience: 0.15}
)

// ExperienceCurve shapes the experience sub-score. Each part is monotonic
// and the parts sum to at most 100.
type ExperienceCurve struct {
	// VolumeMax is reached after VolumeSaturation games in the sport.
	VolumeMax        float64
	VolumeSaturation int
	// LevelMax scales min(1, LevelBase + LevelStep*levelsAboveRequired).
	LevelMax  float64
	LevelBase float64
	LevelStep float64
	// RecencyMax decays linearly to zero over RecencyHorizon since the
	// last game in the sport.
	RecencyMax     float64
	RecencyHorizon time.Duration
}

// DefaultExperienceCurve is used unless overridden.
var DefaultExperienceCurve = ExperienceCurve{
	VolumeMax:        60,
	VolumeSaturation: 50,
	LevelMax:         25,
	LevelBase:        0.6,
	LevelStep:        0.2,
	RecencyMax:       15,
	RecencyHorizon:   365 * 24 * time.Hour,
}

// Input is one candidate to score.
type Input struct {
	Game      model.Game
	Candidate eligibility.Candidate
	// Reliability in [0,1] as of scoring time.
	Reliability float64
	// Busy holds the referee's other commitments, used for emergency slack.
	Busy []model.Window
}

// Ranked is a scored candidate.
type Ranked struct {
	Candidate eligibility.Candidate
	Breakdown model.ScoreBreakdown
}

// Engine computes candidate scores.
type Engine struct {
	normal          Weights
	emergency       Weights
	curve           ExperienceCurve
	emergencyWindow time.Duration
	escalateAfter   int
	surgeCap        float64
	surgeStep       float64
	slackHorizon    time.Duration
}

// New creates an Engine with the default weights and curves.
func New(opts ...Option) *Engine {
	e := &Engine{
		normal:          DefaultNormalWeights,
		emergency:       DefaultEmergencyWeights,
		curve:           DefaultExperienceCurve,
		emergencyWindow: defaultEmergencyWindow,
		escalateAfter:   defaultEscalateAfter,
		surgeCap:        defaultSurgeCap,
		surgeStep:       defaultSurgeStep,
		slackHorizon:    defaultSlackHorizon,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EmergencyWindow is the lead time below which a game is an emergency.
func (e *Engine) EmergencyWindow() time.Duration { return e.emergencyWindow }

// Mode selects the weight set for g at now. Games that have burned through
// escalateAfter offers are treated as emergencies regardless of lead time.
func (e *Engine) Mode(g model.Game, now time.Time) model.ScoringMode {
	if g.IsEmergency(now, e.emergencyWindow) {
		return model.ModeEmergency
	}
	if e.escalateAfter > 0 && g.FailedOffers >= e.escalateAfter {
		return model.ModeEmergency
	}
	return model.ModeNormal
}

// DistanceBand maps a distance to its step score.
func DistanceBand(km float64) float64 {
	switch {
	case km <= 10:
		return 100
	case km <= 20:
		return 80
	case km <= 30:
		return 60
	case km <= 40:
		return 40
	case km <= 50:
		return 20
	default:
		return 0
	}
}

// Experience scores r's track record in sport.
func (e *Engine) Experience(r model.Referee, sport model.Sport, levelDelta int, now time.Time) float64 {
	c := e.curve

	var volume float64
	if c.VolumeSaturation > 0 {
		n := min(r.Stats.CompletedBySport[sport], c.VolumeSaturation)
		volume = c.VolumeMax * float64(n) / float64(c.VolumeSaturation)
	}

	level := c.LevelMax * math.Min(1, c.LevelBase+c.LevelStep*float64(max(levelDelta, 0)))

	var recency float64
	if last, ok := r.Stats.LastGameBySport[sport]; ok && c.RecencyHorizon > 0 {
		age := max(now.Sub(last), 0)
		recency = c.RecencyMax * math.Max(0, 1-float64(age)/float64(c.RecencyHorizon))
	}
	return clamp(volume + level + recency)
}

// EmergencyAvailability rewards free time before kickoff and a history of
// accepting emergency offers.
func (e *Engine) EmergencyAvailability(r model.Referee, busy []model.Window, start, now time.Time) float64 {
	freeFrom := now
	for _, w := range busy {
		if !w.End.After(start) && w.End.After(freeFrom) {
			freeFrom = w.End
		}
	}
	slack := start.Sub(freeFrom)
	var slackScore float64
	if e.slackHorizon > 0 && slack > 0 {
		slackScore = math.Min(1, float64(slack)/float64(e.slackHorizon))
	}

	rate := neutralAcceptRate
	if r.Stats.EmergencyOffers > 0 {
		rate = float64(r.Stats.EmergencyAccepts) / float64(r.Stats.EmergencyOffers)
	}
	return clamp(60*slackScore + 40*math.Min(1, rate))
}

// Combine weights sub-scores already on [0,100].
func (e *Engine) Combine(mode model.ScoringMode, reliability, distance, experience, availability float64) float64 {
	w := e.normal
	if mode == model.ModeEmergency {
		w = e.emergency
	} else {
		availability = 0
	}
	return clamp(w.Reliability*reliability + w.Distance*distance + w.Experience*experience + w.Availability*availability)
}

// Score computes the breakdown for one candidate. LoadFactor is 1 and
// Final equals Raw until a load balancer adjusts it.
func (e *Engine) Score(in Input, mode model.ScoringMode, now time.Time) model.ScoreBreakdown {
	ref := in.Candidate.Referee
	b := model.ScoreBreakdown{
		Mode:        mode,
		Reliability: clamp(in.Reliability * maxScoreValue),
		Distance:    DistanceBand(in.Candidate.DistanceKm),
		Experience:  e.Experience(ref, in.Game.Sport, in.Candidate.LevelDelta, now),
		DistanceKm:  in.Candidate.DistanceKm,
		LoadFactor:  1,
	}
	if mode == model.ModeEmergency {
		b.EmergencyAvailability = e.EmergencyAvailability(ref, in.Busy, in.Game.StartsAt, now)
	}
	b.Raw = e.Combine(mode, b.Reliability, b.Distance, b.Experience, b.EmergencyAvailability)
	b.Final = b.Raw
	return b
}

// Surge returns the fee multiplier and the resulting fee for g matched in
// mode at now. Normal mode pays the base fee; a forced emergency far from
// kickoff still pays a step per failed offer.
func (e *Engine) Surge(g model.Game, mode model.ScoringMode, now time.Time) (multiplier, fee decimal.Decimal) {
	if mode != model.ModeEmergency {
		return decimal.NewFromInt(1), g.BaseFee.Round(2)
	}
	var urgency float64
	if e.emergencyWindow > 0 {
		urgency = 1 - float64(g.StartsAt.Sub(now))/float64(e.emergencyWindow)
		urgency = math.Max(0, math.Min(1, urgency))
	}
	m := 1 + (e.surgeCap-1)*urgency + e.surgeStep*float64(g.FailedOffers)
	m = math.Max(1, math.Min(e.surgeCap, m))
	multiplier = decimal.NewFromFloat(m).Round(4)
	return multiplier, g.BaseFee.Mul(multiplier).Round(2)
}

// Rank orders candidates best first. Ties break on higher reliability,
// then shorter distance, then earlier registration, then id.
func Rank(rs []Ranked) {
	slices.SortStableFunc(rs, func(a, b Ranked) int {
		if c := cmp.Compare(b.Breakdown.Final, a.Breakdown.Final); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Breakdown.Reliability, a.Breakdown.Reliability); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Breakdown.DistanceKm, b.Breakdown.DistanceKm); c != 0 {
			return c
		}
		if c := a.Candidate.Referee.RegisteredAt.Compare(b.Candidate.Referee.RegisteredAt); c != 0 {
			return c
		}
		return strings.Compare(a.Candidate.Referee.ID, b.Candidate.Referee.ID)
	})
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(maxScoreValue, v))
}
