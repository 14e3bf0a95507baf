package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/refmatch/internal/adapters/repository"
	"github.com/okian/refmatch/internal/domain/assignment"
	"github.com/okian/refmatch/internal/domain/eligibility"
	"github.com/okian/refmatch/internal/domain/model"
	"github.com/okian/refmatch/internal/domain/scoring"
	"github.com/okian/refmatch/pkg/logger"
	"github.com/okian/refmatch/pkg/metrics"
)

// Match results.
const (
	ResultOffered   = "offered"
	ResultEscalated = "escalated"
	ResultSkipped   = "skipped"
	ResultFailed    = "failed"
)

// MatchOutcome reports what matching did for one game.
type MatchOutcome struct {
	GameID     string                     `json:"game_id"`
	Result     string                     `json:"result"`
	Mode       model.ScoringMode          `json:"mode,omitempty"`
	Assignment *model.Assignment          `json:"assignment,omitempty"`
	Candidates int                        `json:"candidates"`
	Rejected   map[eligibility.Reason]int `json:"rejected,omitempty"`
	Detail     string                     `json:"detail,omitempty"`
}

// PassReport summarizes one matching pass.
type PassReport struct {
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	Expired   int            `json:"expired"`
	Reminded  int            `json:"reminded"`
	Games     int            `json:"games"`
	Offered   int            `json:"offered"`
	Escalated int            `json:"escalated"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
	Outcomes  []MatchOutcome `json:"outcomes"`
}

type matchOptions struct {
	emergency bool
}

// OnGameSubmitted stores a new game and tries to match it right away. A
// missing fee is filled in from the base rate table. Matching problems are
// reported in the outcome; the error covers the submission only.
func (s *Service) OnGameSubmitted(ctx context.Context, g model.Game) (model.Game, MatchOutcome, error) {
	if g.BaseFee.IsZero() {
		fee, ok := s.baseRates[g.Sport][g.Level]
		if !ok {
			return model.Game{}, MatchOutcome{}, fmt.Errorf("game %s (%s/%s): %w", g.ID, g.Sport, g.Level, ErrNoBaseRate)
		}
		g.BaseFee = fee
	}
	if err := g.Validate(); err != nil {
		return model.Game{}, MatchOutcome{}, err
	}

	now := s.clock.Now()
	if g.Started(now) {
		return model.Game{}, MatchOutcome{}, fmt.Errorf("%w: game %s starts in the past", model.ErrValidation, g.ID)
	}
	g.Status = model.GamePending
	g.FailedOffers = 0
	g.ExcludedReferees = nil
	g.CreatedAt = now
	g.Version = 0

	res, err := s.store.Commit(ctx, repository.Change{Game: &g})
	if err != nil {
		return model.Game{}, MatchOutcome{}, fmt.Errorf("submit game %s: %w", g.ID, err)
	}
	s.logger.Info(ctx, "game submitted",
		logger.String("game_id", g.ID),
		logger.String("sport", string(g.Sport)),
		logger.String("level", string(g.Level)),
		logger.Time("starts_at", g.StartsAt),
	)

	outcome := s.safeMatch(ctx, g.ID, matchOptions{})
	stored, err := s.store.GetGame(ctx, g.ID)
	if err != nil {
		return *res.Game, outcome, nil
	}
	return stored, outcome, nil
}

// RunMatchingPass expires overdue offers, sends due reminders and then
// matches every pending future game without an active assignment. Games
// are matched in parallel up to the pass concurrency; a failure or panic
// in one game never aborts the pass.
func (s *Service) RunMatchingPass(ctx context.Context) (PassReport, error) {
	start := time.Now()
	report := PassReport{StartedAt: s.clock.Now()}

	expired, err := s.expireOverdue(ctx)
	report.Expired = len(expired)
	if err != nil {
		s.logger.Error(ctx, "expiring offers failed", logger.Error(err))
		metrics.RecordErrorByComponent("matching", "expire")
	}

	reminded, err := s.sendReminders(ctx)
	report.Reminded = reminded
	if err != nil {
		s.logger.Error(ctx, "sending reminders failed", logger.Error(err))
		metrics.RecordErrorByComponent("matching", "remind")
	}

	games, err := s.store.ListGames(ctx, model.GamePending)
	if err != nil {
		return report, fmt.Errorf("list pending games: %w", err)
	}
	now := s.clock.Now()
	pending := games[:0]
	for _, g := range games {
		if !g.Started(now) {
			pending = append(pending, g)
		}
	}
	report.Games = len(pending)
	report.Outcomes = make([]MatchOutcome, len(pending))

	sem := make(chan struct{}, s.passConcurrency)
	var wg sync.WaitGroup
	for i, g := range pending {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			report.Outcomes[i] = MatchOutcome{GameID: g.ID, Result: ResultSkipped, Detail: ctx.Err().Error()}
			continue
		}
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			defer func() { <-sem }()
			report.Outcomes[i] = s.safeMatch(ctx, id, matchOptions{})
		}(i, g.ID)
	}
	wg.Wait()

	for _, o := range report.Outcomes {
		switch o.Result {
		case ResultOffered:
			report.Offered++
		case ResultEscalated:
			report.Escalated++
		case ResultFailed:
			report.Failed++
		default:
			report.Skipped++
		}
	}
	report.Duration = time.Since(start)
	metrics.RecordMatchingPass(float64(report.Duration.Microseconds()) / 1000)

	s.mu.Lock()
	s.passes++
	s.lastPass = &report
	s.mu.Unlock()

	s.logger.Info(ctx, "matching pass finished",
		logger.Int("games", report.Games),
		logger.Int("offered", report.Offered),
		logger.Int("escalated", report.Escalated),
		logger.Int("failed", report.Failed),
		logger.Int("expired", report.Expired),
		logger.Int("reminded", report.Reminded),
		logger.Duration("duration", report.Duration),
	)
	return report, nil
}

// MatchGame runs matching for a single game.
func (s *Service) MatchGame(ctx context.Context, gameID string) MatchOutcome {
	return s.safeMatch(ctx, gameID, matchOptions{})
}

// safeMatch isolates one game's matching from the rest of the pass.
func (s *Service) safeMatch(ctx context.Context, gameID string, opts matchOptions) (out MatchOutcome) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordMatchFailure()
			metrics.RecordErrorByComponent("matching", "panic")
			s.logger.Error(ctx, "matching panicked",
				logger.String("game_id", gameID),
				logger.Any("panic", r),
				logger.String("stack", string(debug.Stack())),
			)
			out = MatchOutcome{GameID: gameID, Result: ResultFailed, Detail: fmt.Sprintf("panic: %v", r)}
		}
	}()

	out, err := s.matchGame(ctx, gameID, opts)
	if err != nil {
		metrics.RecordMatchFailure()
		metrics.RecordErrorByComponent("matching", "match")
		s.logger.Error(ctx, "matching failed", logger.String("game_id", gameID), logger.Error(err))
		out.GameID = gameID
		out.Result = ResultFailed
		out.Detail = err.Error()
	}
	return out
}

func (s *Service) matchGame(ctx context.Context, gameID string, opts matchOptions) (MatchOutcome, error) {
	out := MatchOutcome{GameID: gameID}
	var intents []model.Intent

	err := s.withGameLock(ctx, gameID, func() error {
		return s.retry(ctx, "offer", func() error {
			intents = nil
			now := s.clock.Now()

			// Re-read under the lock so a cancelled or matched game is never offered.
			g, err := s.store.GetGame(ctx, gameID)
			if err != nil {
				return err
			}
			if g.Status != model.GamePending || g.Started(now) {
				out.Result, out.Detail = ResultSkipped, "game is "+string(g.Status)
				return nil
			}
			existing, err := s.store.ListAssignmentsByGame(ctx, gameID)
			if err != nil {
				return err
			}
			for _, a := range existing {
				if a.Status.Active() {
					out.Result, out.Detail = ResultSkipped, "assignment "+a.ID+" is "+string(a.Status)
					return nil
				}
			}

			mode := s.scorer.Mode(g, now)
			if opts.emergency {
				mode = model.ModeEmergency
			}
			out.Mode = mode

			ranked, res, err := s.rank(ctx, g, nil, mode, now)
			out.Rejected = res.Rejected
			out.Candidates = len(res.Candidates)
			metrics.RecordEligibleCandidates(len(res.Candidates))
			if errors.Is(err, eligibility.ErrNoEligibleReferees) {
				out.Result = ResultEscalated
				intents = []model.Intent{escalation(g, mode, res.Rejected)}
				metrics.RecordEscalation("no_eligible_referees")
				return nil
			}
			if err != nil {
				return err
			}

			best := ranked[0]
			mult, fee := s.scorer.Surge(g, mode, now)
			a, offerIntents, err := s.machine.Offer(assignment.OfferRequest{
				ID:         uuid.NewString(),
				Game:       g,
				RefereeID:  best.Candidate.Referee.ID,
				Existing:   existing,
				Breakdown:  best.Breakdown,
				Fee:        fee,
				Multiplier: mult,
				Emergency:  mode == model.ModeEmergency,
				Fallback:   best.Candidate.Fallback,
			}, now)
			if err != nil {
				return err
			}
			g.Status = model.GameAssigned

			committed, err := s.store.Commit(ctx, repository.Change{Game: &g, Assignment: &a})
			if errors.Is(err, repository.ErrActiveAssignment) {
				// Another instance offered first; the next read skips the game.
				return fmt.Errorf("%w: %w", repository.ErrStaleWrite, err)
			}
			if err != nil {
				return err
			}
			out.Result = ResultOffered
			out.Assignment = committed.Assignment
			intents = offerIntents
			return nil
		})
	})
	if err != nil {
		return out, err
	}

	s.publish(ctx, intents)
	if out.Result == ResultOffered {
		a := out.Assignment
		recordTransition("", a.Status)
		metrics.RecordOffer(string(out.Mode))
		s.logger.Info(ctx, "offer sent",
			logger.String("game_id", gameID),
			logger.String("assignment_id", a.ID),
			logger.String("referee_id", a.RefereeID),
			logger.String("mode", string(out.Mode)),
			logger.Float64("score", a.Breakdown.Final),
			logger.Bool("fallback", a.Fallback),
			logger.Time("deadline", a.Deadline),
		)
	}
	if out.Result == ResultEscalated {
		s.logger.Warn(ctx, "no eligible referees, escalated",
			logger.String("game_id", gameID),
			logger.Any("rejected", out.Rejected),
		)
	}
	return out, nil
}

// rank filters and scores the pool for g. When only is non-nil the pool
// is restricted to that referee.
func (s *Service) rank(ctx context.Context, g model.Game, only *model.Referee, mode model.ScoringMode, now time.Time) ([]scoring.Ranked, eligibility.Result, error) {
	var pool []model.Referee
	if only != nil {
		pool = []model.Referee{*only}
	} else {
		refs, err := s.store.ListReferees(ctx)
		if err != nil {
			return nil, eligibility.Result{}, err
		}
		pool = refs
	}
	busy, err := s.store.Commitments(ctx, g.ID)
	if err != nil {
		return nil, eligibility.Result{}, err
	}

	res, err := s.filter.Apply(eligibility.Input{
		Game:      g,
		Pool:      pool,
		Busy:      busy,
		Emergency: mode == model.ModeEmergency && only == nil,
	})
	if err != nil {
		return nil, res, err
	}

	load, err := s.store.LoadByReferee(ctx, s.balancer.Period(g.StartsAt))
	if err != nil {
		return nil, res, err
	}

	ranked := make([]scoring.Ranked, 0, len(res.Candidates))
	for _, c := range res.Candidates {
		b := s.scorer.Score(scoring.Input{
			Game:        g,
			Candidate:   c,
			Reliability: s.tracker.Current(c.Referee, now),
			Busy:        busy[c.Referee.ID],
		}, mode, now)
		ranked = append(ranked, scoring.Ranked{
			Candidate: c,
			Breakdown: s.balancer.Adjust(b, load[c.Referee.ID]),
		})
	}
	scoring.Rank(ranked)
	return ranked, res, nil
}

// OnAdminForceAssign offers g to refereeID regardless of ranking and
// exclusions. An outstanding offer is cancelled as superseded; a confirmed
// referee is never replaced. The referee must still pass the hard
// eligibility rules.
func (s *Service) OnAdminForceAssign(ctx context.Context, gameID, refereeID string) (model.Assignment, error) {
	var (
		out        model.Assignment
		offered    bool
		superseded []model.Intent
		offer      []model.Intent
	)
	err := s.withGameLock(ctx, gameID, func() error {
		return s.retry(ctx, "force_assign", func() error {
			offer, offered = nil, false
			now := s.clock.Now()

			g, err := s.store.GetGame(ctx, gameID)
			if err != nil {
				return err
			}
			if g.Status.Terminal() || g.Started(now) {
				return fmt.Errorf("force assign %s: %w", gameID, ErrGameClosed)
			}
			r, err := s.store.GetReferee(ctx, refereeID)
			if err != nil {
				return err
			}
			existing, err := s.store.ListAssignmentsByGame(ctx, gameID)
			if err != nil {
				return err
			}
			var current *model.Assignment
			for i := range existing {
				if existing[i].Status.Active() {
					current = &existing[i]
				}
			}
			if current != nil && current.Status == model.AssignmentConfirmed {
				return fmt.Errorf("force assign %s over %s: %w", gameID, current.ID, ErrConfirmedAssignment)
			}
			if current != nil && current.RefereeID == refereeID {
				out = *current
				return nil
			}

			mode := s.scorer.Mode(g, now)
			check := g
			check.ExcludedReferees = nil
			ranked, res, err := s.rank(ctx, check, &r, mode, now)
			if err != nil {
				if errors.Is(err, eligibility.ErrNoEligibleReferees) {
					return fmt.Errorf("referee %s: %w (rejected: %v)", refereeID, err, res.Rejected)
				}
				return err
			}

			if current != nil {
				cancelled, intents, err := s.machine.Cancel(*current, g, assignment.ReasonSuperseded, now)
				if err != nil {
					return err
				}
				g.Status = model.GamePending
				res, err := s.store.Commit(ctx, repository.Change{Game: &g, Assignment: &cancelled})
				if err != nil {
					return err
				}
				g = *res.Game
				*current = *res.Assignment
				superseded = append(superseded, intents...)
				recordTransition(model.AssignmentOffered, cancelled.Status)
			}

			mult, fee := s.scorer.Surge(g, mode, now)
			a, intents, err := s.machine.Offer(assignment.OfferRequest{
				ID:         uuid.NewString(),
				Game:       g,
				RefereeID:  refereeID,
				Existing:   existing,
				Breakdown:  ranked[0].Breakdown,
				Fee:        fee,
				Multiplier: mult,
				Emergency:  mode == model.ModeEmergency,
				Forced:     true,
			}, now)
			if err != nil {
				return err
			}
			g.Status = model.GameAssigned
			committed, err := s.store.Commit(ctx, repository.Change{Game: &g, Assignment: &a})
			if err != nil {
				return err
			}
			out = *committed.Assignment
			offer = intents
			offered = true
			return nil
		})
	})
	// A committed supersede is announced even when the new offer failed.
	s.publish(ctx, superseded)
	if err != nil {
		return model.Assignment{}, err
	}
	if !offered {
		return out, nil
	}

	s.publish(ctx, offer)
	recordTransition("", out.Status)
	metrics.RecordOffer("forced")
	s.logger.Info(ctx, "referee force-assigned",
		logger.String("game_id", gameID),
		logger.String("referee_id", refereeID),
		logger.String("assignment_id", out.ID),
	)
	return out, nil
}

func escalation(g model.Game, mode model.ScoringMode, rejected map[eligibility.Reason]int) model.Intent {
	payload := map[string]string{
		"sport":         string(g.Sport),
		"level":         string(g.Level),
		"starts_at":     g.StartsAt.UTC().Format(time.RFC3339),
		"venue":         g.Venue,
		"mode":          string(mode),
		"failed_offers": strconv.Itoa(g.FailedOffers),
	}
	for reason, n := range rejected {
		payload["rejected."+string(reason)] = strconv.Itoa(n)
	}
	return model.Intent{
		Kind:      model.IntentNotify,
		Message:   model.MessageEscalation,
		Recipient: model.Recipient{Role: model.RoleAdmin},
		GameID:    g.ID,
		Amount:    g.BaseFee,
		Payload:   payload,
	}
}
