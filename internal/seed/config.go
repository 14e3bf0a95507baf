package seed

import (
	"time"

	service "github.com/okian/refmatch/internal/app"
	"github.com/okian/refmatch/internal/domain/geo"
	"github.com/okian/refmatch/internal/domain/model"
)

// Config holds configuration for a seeding run.
type Config struct {
	BaseURL    string        // Base URL of the service
	Referees   int           // Number of referees to register
	Games      int           // Number of games to submit
	Center     geo.Point     // Everything is placed around this point
	RadiusKm   float64       // Placement radius around Center
	Sports     []string      // Sports drawn for certifications and games
	Seed       uint64        // Seed for deterministic generation
	Workers    int           // Number of concurrent submitters
	Timeout    time.Duration // HTTP request timeout
	OutputFile string        // Output file for the generated plan
	Verbose    bool          // Log every submission
}

// GameRequest is the body of POST /games.
type GameRequest struct {
	ID              string    `json:"id"`
	OrganizerID     string    `json:"organizer_id"`
	Sport           string    `json:"sport"`
	Level           string    `json:"level"`
	StartsAt        time.Time `json:"starts_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Location        geo.Point `json:"location"`
	Venue           string    `json:"venue,omitempty"`
}

// SubmitResponse is the body returned by POST /games.
type SubmitResponse struct {
	Game struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"game"`
	Match service.MatchOutcome `json:"match"`
}

// Plan is the generated population.
type Plan struct {
	Referees []model.Referee `json:"referees"`
	Games    []GameRequest   `json:"games"`
}

// Stats holds run statistics.
type Stats struct {
	RefereesGenerated int
	RefereesSubmitted int
	RefereesFailed    int
	GamesGenerated    int
	GamesSubmitted    int
	GamesOffered      int
	GamesEscalated    int
	GamesFailed       int
	PassOffered       int
	PassEscalated     int
	OffersChecked     int
	Violations        int
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
}
