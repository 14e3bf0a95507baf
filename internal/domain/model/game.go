// Package model holds the entities shared by the matching domain: games,
// referees, assignments and the outbound intents produced by transitions.
package model

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/okian/refmatch/internal/domain/geo"
	"github.com/shopspring/decimal"
)

// Sport identifies a discipline, e.g. "soccer".
type Sport string

// Level is a certification or game level, e.g. "intermediate".
type Level string

// GameStatus is the organizer-facing lifecycle of a game.
type GameStatus string

// Game statuses.
const (
	GamePending   GameStatus = "pending"
	GameAssigned  GameStatus = "assigned"
	GameConfirmed GameStatus = "confirmed"
	GameCompleted GameStatus = "completed"
	GameCancelled GameStatus = "cancelled"
)

// Terminal reports whether the game can no longer change.
func (s GameStatus) Terminal() bool {
	return s == GameCompleted || s == GameCancelled
}

// Game is a fixture submitted by an organizer that needs one referee.
type Game struct {
	ID               string          `json:"id"`
	OrganizerID      string          `json:"organizer_id"`
	Sport            Sport           `json:"sport"`
	Level            Level           `json:"level"`
	StartsAt         time.Time       `json:"starts_at"`
	Duration         time.Duration   `json:"duration"`
	Location         geo.Point       `json:"location"`
	Venue            string          `json:"venue,omitempty"`
	BaseFee          decimal.Decimal `json:"base_fee"`
	Status           GameStatus      `json:"status"`
	FailedOffers     int             `json:"failed_offers"`
	ExcludedReferees []string        `json:"excluded_referees,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	Version          int64           `json:"version"`
}

// EndsAt returns the scheduled end of the game.
func (g Game) EndsAt() time.Time { return g.StartsAt.Add(g.Duration) }

// Window returns the half-open interval occupied by the game.
func (g Game) Window() Window { return Window{Start: g.StartsAt, End: g.EndsAt()} }

// IsEmergency reports whether the game starts within window of now.
func (g Game) IsEmergency(now time.Time, window time.Duration) bool {
	return g.StartsAt.Sub(now) < window
}

// Started reports whether the game start is at or before now.
func (g Game) Started(now time.Time) bool { return !g.StartsAt.After(now) }

// Excludes reports whether refereeID may no longer be offered this game.
func (g Game) Excludes(refereeID string) bool {
	return slices.Contains(g.ExcludedReferees, refereeID)
}

// WithExcluded returns a copy of g with refereeID added to the exclusions.
func (g Game) WithExcluded(refereeID string) Game {
	if g.Excludes(refereeID) {
		return g
	}
	ex := make([]string, 0, len(g.ExcludedReferees)+1)
	ex = append(ex, g.ExcludedReferees...)
	g.ExcludedReferees = append(ex, refereeID)
	return g
}

// Validate checks the fields an organizer must supply.
func (g Game) Validate() error {
	switch {
	case strings.TrimSpace(g.ID) == "":
		return fmt.Errorf("%w: missing game id", ErrValidation)
	case strings.TrimSpace(g.OrganizerID) == "":
		return fmt.Errorf("%w: missing organizer id", ErrValidation)
	case g.Sport == "":
		return fmt.Errorf("%w: missing sport", ErrValidation)
	case g.Level == "":
		return fmt.Errorf("%w: missing level", ErrValidation)
	case g.StartsAt.IsZero():
		return fmt.Errorf("%w: missing start time", ErrValidation)
	case g.Duration <= 0:
		return fmt.Errorf("%w: duration must be positive", ErrValidation)
	case g.BaseFee.IsNegative():
		return fmt.Errorf("%w: base fee must not be negative", ErrValidation)
	}
	if err := g.Location.Validate(); err != nil {
		return fmt.Errorf("game %s location: %w", g.ID, err)
	}
	return nil
}
