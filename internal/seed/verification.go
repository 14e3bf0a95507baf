package seed

import (
	"context"
	"fmt"
	"slices"

	service "github.com/okian/refmatch/internal/app"
	"github.com/okian/refmatch/internal/domain/geo"
	"github.com/okian/refmatch/internal/domain/model"
	"github.com/okian/refmatch/pkg/logger"
)

// distanceSlackKm absorbs float noise between this check and the server's.
const distanceSlackKm = 1e-6

// verifyOffers checks every offer against the plan: the referee must be
// cleared, certified for the sport at or above the game level, and within
// their own travel radius.
func verifyOffers(ctx context.Context, plan Plan, outcomes []service.MatchOutcome, stats *Stats) error {
	log := logger.Get().Named("verify")

	refs := make(map[string]model.Referee, len(plan.Referees))
	for _, r := range plan.Referees {
		refs[r.ID] = r
	}
	games := make(map[string]GameRequest, len(plan.Games))
	for _, g := range plan.Games {
		games[g.ID] = g
	}

	var first error
	for _, out := range outcomes {
		if out.Assignment == nil {
			continue
		}
		a := out.Assignment
		r, okRef := refs[a.RefereeID]
		g, okGame := games[a.GameID]
		if !okRef || !okGame {
			continue
		}
		stats.OffersChecked++
		if err := checkOffer(r, g); err != nil {
			stats.Violations++
			log.Warn(ctx, "offer breaks a matching rule",
				logger.String("assignment_id", a.ID),
				logger.String("game_id", g.ID),
				logger.String("referee_id", r.ID),
				logger.Error(err))
			if first == nil {
				first = err
			}
		}
	}

	log.Info(ctx, "offers verified",
		logger.Int("checked", stats.OffersChecked),
		logger.Int("violations", stats.Violations))
	return first
}

func checkOffer(r model.Referee, g GameRequest) error {
	if !r.BackgroundCleared {
		return fmt.Errorf("%w: referee %s is not cleared", ErrVerification, r.ID)
	}

	required := slices.Index(levels, model.Level(g.Level))
	certified := slices.ContainsFunc(r.Certifications, func(c model.Certification) bool {
		return string(c.Sport) == g.Sport && c.Active && slices.Index(levels, c.Level) >= required
	})
	if !certified {
		return fmt.Errorf("%w: referee %s lacks %s/%s", ErrVerification, r.ID, g.Sport, g.Level)
	}

	km, err := geo.Distance(r.Home, g.Location)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVerification, err)
	}
	if r.MaxTravelKm > 0 && km > r.MaxTravelKm+distanceSlackKm {
		return fmt.Errorf("%w: referee %s is %.1f km away, travels %.1f km", ErrVerification, r.ID, km, r.MaxTravelKm)
	}
	return nil
}
