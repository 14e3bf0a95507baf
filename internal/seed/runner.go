package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	service "github.com/okian/refmatch/internal/app"
	"github.com/okian/refmatch/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

// Run seeds the service at cfg.BaseURL: it registers a generated referee
// pool, submits games, runs one matching pass and verifies every offer.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	}
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()

	log.Info(ctx, "starting refmatch seed",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("referees", cfg.Referees),
		logger.Int("games", cfg.Games),
		logger.Float64("radiusKm", cfg.RadiusKm),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout),
		logger.Any("seed", cfg.Seed))

	c := newClient(cfg.BaseURL, cfg.Timeout)

	// Step 1: check service health
	if err := checkServiceHealth(ctx, c); err != nil {
		return stats, err
	}

	// Step 2: generate the population
	plan, err := Generate(cfg, stats.StartTime)
	if err != nil {
		return stats, err
	}
	stats.RefereesGenerated = len(plan.Referees)
	stats.GamesGenerated = len(plan.Games)

	// Step 3: register referees before any game can be matched
	if err := submitReferees(ctx, cfg, c, plan.Referees, stats); err != nil {
		return stats, fmt.Errorf("referee submission failed: %w", err)
	}

	// Step 4: submit games, each matched on arrival
	outcomes, err := submitGames(ctx, cfg, c, plan.Games, stats)
	if err != nil {
		return stats, fmt.Errorf("game submission failed: %w", err)
	}

	// Step 5: one pass picks up anything left pending
	var report service.PassReport
	if err := c.post(ctx, "/matching/run", nil, &report, http.StatusOK); err != nil {
		return stats, fmt.Errorf("matching pass failed: %w", err)
	}
	stats.PassOffered = report.Offered
	stats.PassEscalated = report.Escalated

	// Step 6: verify offers from submission and from the pass
	all := make([]service.MatchOutcome, 0, len(outcomes)+len(report.Outcomes))
	for _, out := range outcomes {
		all = append(all, out)
	}
	all = append(all, report.Outcomes...)
	verifyErr := verifyOffers(ctx, plan, all, stats)

	// Step 7: service-side view
	var serverStats map[string]any
	if err := c.get(ctx, "/stats", &serverStats); err != nil {
		log.Warn(ctx, "failed to read service stats", logger.Error(err))
	} else {
		log.Info(ctx, "service stats",
			logger.Any("games", serverStats["games"]),
			logger.Any("referees", serverStats["referees"]),
			logger.Any("activeAssignments", serverStats["activeAssignments"]))
	}

	// Step 8: keep the plan for replay
	if cfg.OutputFile != "" {
		if err := savePlan(ctx, cfg.OutputFile, plan); err != nil {
			log.Warn(ctx, "failed to save plan", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	if verifyErr != nil {
		return stats, verifyErr
	}
	log.Info(ctx, "seed completed successfully")
	return stats, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, c *client) error {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/livez", &body); err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	if body.Status != "ok" {
		return fmt.Errorf("%w: status %q", ErrUnhealthy, body.Status)
	}
	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// savePlan writes the generated plan as indented JSON.
func savePlan(ctx context.Context, filename string, plan Plan) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	raw, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	if err := os.WriteFile(filename, raw, filePermission); err != nil {
		return fmt.Errorf("write plan: %w", err)
	}
	logger.Get().Info(ctx, "plan saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var offerRate float64
	if stats.GamesSubmitted > 0 {
		offerRate = float64(stats.GamesOffered+stats.PassOffered) / float64(stats.GamesSubmitted)
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("refereesGenerated", stats.RefereesGenerated),
		logger.Int("refereesSubmitted", stats.RefereesSubmitted),
		logger.Int("refereesFailed", stats.RefereesFailed),
		logger.Int("gamesGenerated", stats.GamesGenerated),
		logger.Int("gamesSubmitted", stats.GamesSubmitted),
		logger.Int("gamesFailed", stats.GamesFailed),
		logger.Int("gamesOffered", stats.GamesOffered),
		logger.Int("gamesEscalated", stats.GamesEscalated),
		logger.Int("passOffered", stats.PassOffered),
		logger.Int("passEscalated", stats.PassEscalated),
		logger.Int("offersChecked", stats.OffersChecked),
		logger.Int("violations", stats.Violations),
		logger.Duration("duration", stats.Duration),
		logger.Float64("offerRate", offerRate))
}
