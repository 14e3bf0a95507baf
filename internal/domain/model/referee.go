package model

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/okian/refmatch/internal/domain/geo"
)

// Certification is a referee's qualification for one sport.
type Certification struct {
	Sport     Sport     `json:"sport"`
	Level     Level     `json:"level"`
	Active    bool      `json:"active"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// ValidAt reports whether the certification is active and unexpired at t.
func (c Certification) ValidAt(t time.Time) bool {
	return c.Active && (c.ExpiresAt.IsZero() || c.ExpiresAt.After(t))
}

// Stats aggregates a referee's outcome history. It is mutated only by
// assignment transitions.
type Stats struct {
	Completed        int                 `json:"completed"`
	NoShows          int                 `json:"no_shows"`
	TotalOutcomes    int                 `json:"total_outcomes"`
	Streak           int                 `json:"streak"`
	LastNoShowAt     time.Time           `json:"last_no_show_at,omitempty"`
	CompletedBySport map[Sport]int       `json:"completed_by_sport,omitempty"`
	LastGameBySport  map[Sport]time.Time `json:"last_game_by_sport,omitempty"`
	EmergencyOffers  int                 `json:"emergency_offers"`
	EmergencyAccepts int                 `json:"emergency_accepts"`
}

// Clone returns a deep copy of s.
func (s Stats) Clone() Stats {
	s.CompletedBySport = maps.Clone(s.CompletedBySport)
	s.LastGameBySport = maps.Clone(s.LastGameBySport)
	return s
}

// Referee is a member of the referee pool.
type Referee struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Home              geo.Point       `json:"home"`
	MaxTravelKm       float64         `json:"max_travel_km,omitempty"`
	Certifications    []Certification `json:"certifications"`
	Availability      Availability    `json:"availability"`
	EmergencyOptIn    bool            `json:"emergency_opt_in"`
	Active            bool            `json:"active"`
	BackgroundCleared bool            `json:"background_cleared"`
	Reliability       float64         `json:"reliability"`
	Stats             Stats           `json:"stats"`
	RegisteredAt      time.Time       `json:"registered_at"`
	Version           int64           `json:"version"`
}

// Clone returns a deep copy of r.
func (r Referee) Clone() Referee {
	r.Certifications = append([]Certification(nil), r.Certifications...)
	r.Availability.Windows = append([]Window(nil), r.Availability.Windows...)
	r.Availability.Weekly = append([]WeeklySlot(nil), r.Availability.Weekly...)
	r.Availability.Blackouts = append([]Window(nil), r.Availability.Blackouts...)
	r.Stats = r.Stats.Clone()
	return r
}

// Validate checks the profile fields required for matching.
func (r Referee) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: missing referee id", ErrValidation)
	}
	if r.MaxTravelKm < 0 {
		return fmt.Errorf("%w: max travel must not be negative", ErrValidation)
	}
	if err := r.Home.Validate(); err != nil {
		return fmt.Errorf("referee %s home: %w", r.ID, err)
	}
	return nil
}
