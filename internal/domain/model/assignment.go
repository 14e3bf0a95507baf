package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssignmentStatus is the state of an offer to a referee.
type AssignmentStatus string

// Assignment statuses.
const (
	AssignmentOffered   AssignmentStatus = "offered"
	AssignmentConfirmed AssignmentStatus = "confirmed"
	AssignmentRejected  AssignmentStatus = "rejected"
	AssignmentExpired   AssignmentStatus = "expired"
	AssignmentCompleted AssignmentStatus = "completed"
	AssignmentNoShow    AssignmentStatus = "no_show"
	AssignmentCancelled AssignmentStatus = "cancelled"
)

// Active reports whether the status holds the game's single slot.
func (s AssignmentStatus) Active() bool {
	return s == AssignmentOffered || s == AssignmentConfirmed
}

// Terminal reports whether no further transition is possible.
func (s AssignmentStatus) Terminal() bool { return !s.Active() }

// ScoringMode selects the weight set used to rank candidates.
type ScoringMode string

// Scoring modes.
const (
	ModeNormal    ScoringMode = "normal"
	ModeEmergency ScoringMode = "emergency"
)

// ScoreBreakdown records how a candidate's score was computed. It is kept
// on the winning assignment for audit.
type ScoreBreakdown struct {
	Mode                  ScoringMode `json:"mode"`
	Reliability           float64     `json:"reliability"`
	Distance              float64     `json:"distance"`
	Experience            float64     `json:"experience"`
	EmergencyAvailability float64     `json:"emergency_availability,omitempty"`
	DistanceKm            float64     `json:"distance_km"`
	Raw                   float64     `json:"raw"`
	LoadFactor            float64     `json:"load_factor"`
	Final                 float64     `json:"final"`
}

// Assignment is one offer of one game to one referee.
type Assignment struct {
	ID              string           `json:"id"`
	GameID          string           `json:"game_id"`
	RefereeID       string           `json:"referee_id"`
	Status          AssignmentStatus `json:"status"`
	Emergency       bool             `json:"emergency"`
	Forced          bool             `json:"forced"`
	Fallback        bool             `json:"fallback"`
	OfferedAt       time.Time        `json:"offered_at"`
	Deadline        time.Time        `json:"deadline"`
	RespondedAt     time.Time        `json:"responded_at,omitempty"`
	ClosedAt        time.Time        `json:"closed_at,omitempty"`
	Reason          string           `json:"reason,omitempty"`
	Fee             decimal.Decimal  `json:"fee"`
	SurgeMultiplier decimal.Decimal  `json:"surge_multiplier"`
	Payout          decimal.Decimal  `json:"payout"`
	Reminded        bool             `json:"reminded"`
	Breakdown       ScoreBreakdown   `json:"breakdown"`
	Version         int64            `json:"version"`
}

// OutcomeID identifies the terminal outcome of an assignment. Replays of
// the same outcome produce the same id.
func (a Assignment) OutcomeID() string {
	return a.ID + ":" + string(a.Status)
}
