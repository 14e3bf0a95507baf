package config

import (
	"time"

	"github.com/okian/refmatch/internal/domain/assignment"
	"github.com/okian/refmatch/internal/domain/eligibility"
	"github.com/okian/refmatch/internal/domain/loadbalance"
	"github.com/okian/refmatch/internal/domain/model"
	"github.com/okian/refmatch/internal/domain/reliability"
	"github.com/okian/refmatch/internal/domain/scoring"
	"github.com/shopspring/decimal"
)

// EligibilityOptions converts the eligibility keys.
func (c *Config) EligibilityOptions() []eligibility.Option {
	levels := make([]model.Level, 0, len(c.LevelOrder))
	for _, l := range c.LevelOrder {
		levels = append(levels, model.Level(l))
	}
	return []eligibility.Option{
		eligibility.WithMaxDistanceKm(c.MaxDistanceKm),
		eligibility.WithConflictBuffer(time.Duration(c.ConflictBufferMinutes) * time.Minute),
		eligibility.WithLevels(levels...),
		eligibility.WithPolicy(eligibility.Policy(c.EmergencyFallback)),
	}
}

// ScoringOptions converts weights, windows and surge keys.
func (c *Config) ScoringOptions() []scoring.Option {
	return []scoring.Option{
		scoring.WithNormalWeights(scoring.Weights{
			Reliability: c.WeightReliability,
			Distance:    c.WeightDistance,
			Experience:  c.WeightExperience,
		}),
		scoring.WithEmergencyWeights(scoring.Weights{
			Availability: c.EmergencyWeightAvailability,
			Reliability:  c.EmergencyWeightReliability,
			Distance:     c.EmergencyWeightDistance,
			Experience:   c.EmergencyWeightExperience,
		}),
		scoring.WithEmergencyWindow(time.Duration(c.EmergencyWindowHours) * time.Hour),
		scoring.WithEscalateAfter(c.EscalateAfterAttempts),
		scoring.WithSurge(c.SurgeCap, c.SurgeEscalationStep),
	}
}

// LoadBalanceOptions converts the load balancing keys.
func (c *Config) LoadBalanceOptions() []loadbalance.Option {
	return []loadbalance.Option{
		loadbalance.WithCap(c.WeeklyAssignmentCap),
		loadbalance.WithPeriod(time.Duration(c.LoadPeriodDays) * 24 * time.Hour),
		loadbalance.WithPenalties(c.LoadNearCapPenalty, c.LoadAtCapFactor),
	}
}

// AssignmentOptions converts confirmation windows and the platform fee.
func (c *Config) AssignmentOptions() []assignment.Option {
	return []assignment.Option{
		assignment.WithConfirmationWindows(
			time.Duration(c.ConfirmationWindowHours)*time.Hour,
			time.Duration(c.EmergencyConfirmationWindowMinutes)*time.Minute,
		),
		assignment.WithPlatformFee(c.PlatformFeePercentage),
	}
}

// ReliabilityOptions converts the reliability keys. The outcome deduper is
// chosen by the caller from dedupe_backend.
func (c *Config) ReliabilityOptions() []reliability.Option {
	return []reliability.Option{
		reliability.WithInitial(c.InitialReliability),
		reliability.WithStreakBonus(c.StreakBonusStep, c.StreakBonusCap),
		reliability.WithNoShowPenalty(c.NoShowPenalty, time.Duration(c.NoShowPenaltyWindowDays)*24*time.Hour),
	}
}

// Rates returns the base fee table keyed by sport and level.
func (c *Config) Rates() map[model.Sport]map[model.Level]decimal.Decimal {
	out := make(map[model.Sport]map[model.Level]decimal.Decimal, len(c.BaseRates))
	for sport, levels := range c.BaseRates {
		row := make(map[model.Level]decimal.Decimal, len(levels))
		for level, fee := range levels {
			row[model.Level(level)] = decimal.NewFromFloat(fee).Round(2)
		}
		out[model.Sport(sport)] = row
	}
	return out
}

// MatchInterval is the pass ticker period.
func (c *Config) MatchInterval() time.Duration {
	return time.Duration(c.MatchIntervalSec) * time.Second
}

// ReminderLead is how long before an offer deadline the reminder goes out.
func (c *Config) ReminderLead() time.Duration {
	return time.Duration(c.ReminderLeadHours) * time.Hour
}

// LockTTL bounds how long a distributed game lock survives its holder.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMS) * time.Millisecond
}

// DedupeTTL bounds how long recorded outcome ids are kept in Redis.
func (c *Config) DedupeTTL() time.Duration {
	return time.Duration(c.DedupeTTLHours) * time.Hour
}

// DispatchBackoff is the first retry delay of the dispatcher.
func (c *Config) DispatchBackoff() time.Duration {
	return time.Duration(c.DispatchBackoffMS) * time.Millisecond
}
