package api

import (
	"strings"
	"time"

	"github.com/google/uuid"
	service "github.com/okian/refmatch/internal/app"
	"github.com/okian/refmatch/internal/domain/geo"
	"github.com/okian/refmatch/internal/domain/model"
	"github.com/shopspring/decimal"
)

// gameRequest mirrors the OpenAPI schema for POST /games.
type gameRequest struct {
	ID              string           `json:"id"`
	OrganizerID     string           `json:"organizer_id"`
	Sport           string           `json:"sport"`
	Level           string           `json:"level"`
	StartsAt        time.Time        `json:"starts_at"`
	DurationMinutes int              `json:"duration_minutes"`
	Location        geo.Point        `json:"location"`
	Venue           string           `json:"venue"`
	BaseFee         *decimal.Decimal `json:"base_fee,omitempty"`
}

func (g gameRequest) toModel() model.Game {
	id := strings.TrimSpace(g.ID)
	if id == "" {
		id = uuid.NewString()
	}
	out := model.Game{
		ID:          id,
		OrganizerID: g.OrganizerID,
		Sport:       model.Sport(g.Sport),
		Level:       model.Level(g.Level),
		StartsAt:    g.StartsAt,
		Duration:    time.Duration(g.DurationMinutes) * time.Minute,
		Location:    g.Location,
		Venue:       g.Venue,
	}
	if g.BaseFee != nil {
		out.BaseFee = *g.BaseFee
	}
	return out
}

// gameView is the wire shape of a game.
type gameView struct {
	ID               string           `json:"id"`
	OrganizerID      string           `json:"organizer_id"`
	Sport            model.Sport      `json:"sport"`
	Level            model.Level      `json:"level"`
	StartsAt         time.Time        `json:"starts_at"`
	EndsAt           time.Time        `json:"ends_at"`
	DurationMinutes  int              `json:"duration_minutes"`
	Location         geo.Point        `json:"location"`
	Venue            string           `json:"venue,omitempty"`
	BaseFee          decimal.Decimal  `json:"base_fee"`
	Status           model.GameStatus `json:"status"`
	FailedOffers     int              `json:"failed_offers"`
	ExcludedReferees []string         `json:"excluded_referees,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	Version          int64            `json:"version"`
}

func newGameView(g model.Game) gameView {
	return gameView{
		ID:               g.ID,
		OrganizerID:      g.OrganizerID,
		Sport:            g.Sport,
		Level:            g.Level,
		StartsAt:         g.StartsAt,
		EndsAt:           g.EndsAt(),
		DurationMinutes:  int(g.Duration / time.Minute),
		Location:         g.Location,
		Venue:            g.Venue,
		BaseFee:          g.BaseFee,
		Status:           g.Status,
		FailedOffers:     g.FailedOffers,
		ExcludedReferees: g.ExcludedReferees,
		CreatedAt:        g.CreatedAt,
		Version:          g.Version,
	}
}

type submitResponse struct {
	Game  gameView             `json:"game"`
	Match service.MatchOutcome `json:"match"`
}

type responseRequest struct {
	Accept *bool `json:"accept"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type forceAssignRequest struct {
	RefereeID string `json:"referee_id"`
}
