package seed

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	service "github.com/okian/refmatch/internal/app"
	"github.com/okian/refmatch/internal/domain/model"
	"github.com/okian/refmatch/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const progressInterval = time.Second

// progress counts submissions and logs at most once per progressInterval.
type progress struct {
	what      string
	total     int
	submitted atomic.Int64
	failed    atomic.Int64

	mu   sync.Mutex
	last time.Time
}

func (p *progress) record(ctx context.Context, err error) {
	n := p.submitted.Add(1)
	if err != nil {
		p.failed.Add(1)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if time.Since(p.last) < progressInterval && int(n) != p.total {
		return
	}
	p.last = time.Now()
	logger.Get().Info(ctx, "submission progress",
		logger.String("kind", p.what),
		logger.Int64("submitted", n),
		logger.Int("total", p.total),
		logger.Int64("failed", p.failed.Load()))
}

// submitReferees registers every referee of the plan concurrently.
// Individual failures are counted, not fatal.
func submitReferees(ctx context.Context, cfg *Config, c *client, refs []model.Referee, stats *Stats) error {
	log := logger.Get().Named("referees")
	p := &progress{what: "referees", total: len(refs)}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(cfg.Workers)
	for _, r := range refs {
		eg.Go(func() error {
			err := c.post(ctx, "/referees/", r, nil, http.StatusCreated, http.StatusOK)
			if err != nil && cfg.Verbose {
				log.Warn(ctx, "referee rejected", logger.String("referee_id", r.ID), logger.Error(err))
			}
			p.record(ctx, err)
			return ctx.Err()
		})
	}
	err := eg.Wait()

	stats.RefereesSubmitted = int(p.submitted.Load())
	stats.RefereesFailed = int(p.failed.Load())
	return err
}

// submitGames submits every game of the plan concurrently and tallies the
// immediate match results. The returned outcomes are keyed by game id.
func submitGames(ctx context.Context, cfg *Config, c *client, games []GameRequest, stats *Stats) (map[string]service.MatchOutcome, error) {
	log := logger.Get().Named("games")
	p := &progress{what: "games", total: len(games)}

	var mu sync.Mutex
	outcomes := make(map[string]service.MatchOutcome, len(games))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(cfg.Workers)
	for _, g := range games {
		eg.Go(func() error {
			var resp SubmitResponse
			err := c.post(ctx, "/games/", g, &resp, http.StatusCreated)
			switch {
			case err != nil:
				if cfg.Verbose {
					log.Warn(ctx, "game rejected", logger.String("game_id", g.ID), logger.Error(err))
				}
			default:
				mu.Lock()
				outcomes[g.ID] = resp.Match
				mu.Unlock()
				if cfg.Verbose {
					log.Debug(ctx, "game submitted",
						logger.String("game_id", g.ID),
						logger.String("result", resp.Match.Result))
				}
			}
			p.record(ctx, err)
			return ctx.Err()
		})
	}
	err := eg.Wait()

	stats.GamesSubmitted = int(p.submitted.Load())
	stats.GamesFailed = int(p.failed.Load())
	for _, out := range outcomes {
		switch out.Result {
		case service.ResultOffered:
			stats.GamesOffered++
		case service.ResultEscalated:
			stats.GamesEscalated++
		}
	}
	return outcomes, err
}
