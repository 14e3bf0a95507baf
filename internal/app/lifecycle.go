package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/refmatch/internal/adapters/repository"
	"github.com/okian/refmatch/internal/domain/assignment"
	"github.com/okian/refmatch/internal/domain/model"
	"github.com/okian/refmatch/internal/domain/reliability"
	"github.com/okian/refmatch/pkg/logger"
	"github.com/okian/refmatch/pkg/metrics"
)

// transitionFunc computes the next assignment state, the game and referee
// changes that go with it, and the intents to publish.
type transitionFunc func(a model.Assignment, g model.Game, r model.Referee, now time.Time) (step, error)

type step struct {
	assignment model.Assignment
	game       *model.Game
	referee    *model.Referee
	intents    []model.Intent
	// revert undoes side effects recorded outside the store when the
	// commit fails.
	revert func()
}

// transition loads an assignment with its game and referee under the game
// lock, applies fn and commits the result.
func (s *Service) transition(ctx context.Context, op, assignmentID string, fn transitionFunc) (model.Assignment, model.Game, error) {
	a, err := s.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return model.Assignment{}, model.Game{}, err
	}

	var (
		out     model.Assignment
		game    model.Game
		from    model.AssignmentStatus
		intents []model.Intent
	)
	err = s.withGameLock(ctx, a.GameID, func() error {
		return s.retry(ctx, op, func() error {
			now := s.clock.Now()
			cur, err := s.store.GetAssignment(ctx, assignmentID)
			if err != nil {
				return err
			}
			g, err := s.store.GetGame(ctx, cur.GameID)
			if err != nil {
				return err
			}
			r, err := s.store.GetReferee(ctx, cur.RefereeID)
			if err != nil {
				return err
			}

			st, err := fn(cur, g, r, now)
			if err != nil {
				return err
			}
			res, err := s.store.Commit(ctx, repository.Change{
				Game:       st.game,
				Assignment: &st.assignment,
				Referee:    st.referee,
			})
			if err != nil {
				if st.revert != nil {
					st.revert()
				}
				return err
			}

			from = cur.Status
			out = *res.Assignment
			game = g
			if res.Game != nil {
				game = *res.Game
			}
			intents = st.intents
			return nil
		})
	})
	if err != nil {
		return model.Assignment{}, model.Game{}, fmt.Errorf("%s assignment %s: %w", op, assignmentID, err)
	}

	s.publish(ctx, intents)
	if from != out.Status {
		recordTransition(from, out.Status)
	}
	s.logger.Info(ctx, "assignment transition",
		logger.String("operation", op),
		logger.String("assignment_id", out.ID),
		logger.String("game_id", out.GameID),
		logger.String("referee_id", out.RefereeID),
		logger.String("from", string(from)),
		logger.String("to", string(out.Status)),
	)
	return out, game, nil
}

// OnAssignmentResponse records a referee accepting or declining an offer.
// A decline excludes the referee from the game and re-runs matching.
// Accepting at or after the deadline is an invalid transition; the next
// pass expires the offer.
func (s *Service) OnAssignmentResponse(ctx context.Context, assignmentID string, accept bool) (model.Assignment, error) {
	op := "reject"
	if accept {
		op = "confirm"
	}
	out, _, err := s.transition(ctx, op, assignmentID, func(a model.Assignment, g model.Game, r model.Referee, now time.Time) (step, error) {
		var (
			next    model.Assignment
			intents []model.Intent
			err     error
		)
		if accept {
			next, intents, err = s.machine.Confirm(a, g, now)
			g.Status = model.GameConfirmed
		} else {
			next, intents, err = s.machine.Reject(a, g, now)
			g = reopen(g, a.RefereeID)
		}
		if err != nil {
			return step{}, err
		}
		st := step{assignment: next, game: &g, intents: intents}
		if a.Emergency {
			ref := reliability.RecordEmergencyResponse(r, accept)
			st.referee = &ref
		}
		return st, nil
	})
	if err != nil {
		return model.Assignment{}, err
	}

	if !accept {
		s.safeMatch(ctx, out.GameID, matchOptions{})
	}
	return out, nil
}

// MarkCompleted closes a confirmed assignment after the game ended,
// records the outcome in the referee's reliability and captures payment.
func (s *Service) MarkCompleted(ctx context.Context, assignmentID string) (model.Assignment, error) {
	out, _, err := s.transition(ctx, "complete", assignmentID, func(a model.Assignment, g model.Game, r model.Referee, now time.Time) (step, error) {
		next, intents, err := s.machine.MarkCompleted(a, g, now)
		if err != nil {
			return step{}, err
		}
		g.Status = model.GameCompleted
		return s.withOutcome(ctx, step{assignment: next, game: &g, intents: intents}, r, g.Sport, now)
	})
	return out, err
}

// MarkNoShow closes a confirmed assignment whose referee did not appear.
// Reliability drops and payment is voided. A game that has not started
// yet reopens and matching re-runs in emergency mode; one already under
// way is cancelled.
func (s *Service) MarkNoShow(ctx context.Context, assignmentID string) (model.Assignment, error) {
	var rematch bool
	out, game, err := s.transition(ctx, "no_show", assignmentID, func(a model.Assignment, g model.Game, r model.Referee, now time.Time) (step, error) {
		next, intents, err := s.machine.MarkNoShow(a, g, now)
		if err != nil {
			return step{}, err
		}
		rematch = !g.Started(now)
		if rematch {
			g = reopen(g, a.RefereeID)
		} else {
			g = g.WithExcluded(a.RefereeID)
			g.Status = model.GameCancelled
		}
		return s.withOutcome(ctx, step{assignment: next, game: &g, intents: intents}, r, g.Sport, now)
	})
	if err != nil {
		return model.Assignment{}, err
	}

	if rematch {
		s.safeMatch(ctx, game.ID, matchOptions{emergency: true})
	}
	return out, nil
}

// withOutcome folds a terminal outcome into the referee. A replayed outcome
// leaves the referee untouched.
func (s *Service) withOutcome(ctx context.Context, st step, r model.Referee, sport model.Sport, now time.Time) (step, error) {
	ref, applied, err := s.tracker.Apply(ctx, r, sport, st.assignment, now)
	if err != nil {
		return step{}, err
	}
	if applied {
		st.referee = &ref
		a := st.assignment
		st.revert = func() {
			if err := s.tracker.Revert(context.WithoutCancel(ctx), a); err != nil {
				s.logger.Warn(ctx, "failed to revert outcome", logger.String("assignment_id", a.ID), logger.Error(err))
			}
		}
	}
	return st, nil
}

// CancelGame cancels a game and releases its referee. Cancelling a
// completed or cancelled game is an invalid transition.
func (s *Service) CancelGame(ctx context.Context, gameID, reason string) (model.Game, error) {
	var (
		out      model.Game
		released *model.Assignment
		from     model.AssignmentStatus
		intents  []model.Intent
	)
	err := s.withGameLock(ctx, gameID, func() error {
		return s.retry(ctx, "cancel", func() error {
			released, intents = nil, nil
			now := s.clock.Now()

			g, err := s.store.GetGame(ctx, gameID)
			if err != nil {
				return err
			}
			if g.Status.Terminal() {
				return fmt.Errorf("cancel game %s: %w", gameID, ErrGameClosed)
			}
			existing, err := s.store.ListAssignmentsByGame(ctx, gameID)
			if err != nil {
				return err
			}

			change := repository.Change{Game: &g}
			for _, a := range existing {
				if !a.Status.Active() {
					continue
				}
				if reason == "" {
					reason = assignment.ReasonGameCancelled
				}
				next, in, err := s.machine.Cancel(a, g, reason, now)
				if err != nil {
					return err
				}
				from = a.Status
				change.Assignment = &next
				intents = in
			}
			g.Status = model.GameCancelled

			res, err := s.store.Commit(ctx, change)
			if err != nil {
				return err
			}
			out = *res.Game
			released = res.Assignment
			return nil
		})
	})
	if err != nil {
		return model.Game{}, err
	}

	s.publish(ctx, intents)
	if released != nil {
		recordTransition(from, released.Status)
	}
	s.logger.Info(ctx, "game cancelled", logger.String("game_id", gameID), logger.Bool("released_referee", released != nil))
	return out, nil
}

// ExpireOverdue closes every offer past its deadline and re-runs matching
// for the affected games. It returns the number of expired offers.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	games, err := s.expireOverdue(ctx)
	for _, id := range games {
		s.safeMatch(ctx, id, matchOptions{})
	}
	return len(games), err
}

// expireOverdue expires overdue offers and returns the affected game ids.
func (s *Service) expireOverdue(ctx context.Context) ([]string, error) {
	overdue, err := s.store.ListOverdueOffers(ctx, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("list overdue offers: %w", err)
	}

	var (
		games []string
		errs  []error
	)
	for _, a := range overdue {
		_, _, err := s.transition(ctx, "expire", a.ID, func(a model.Assignment, g model.Game, r model.Referee, now time.Time) (step, error) {
			next, intents, err := s.machine.Expire(a, g, now)
			if err != nil {
				return step{}, err
			}
			g = reopen(g, a.RefereeID)
			st := step{assignment: next, game: &g, intents: intents}
			if a.Emergency {
				ref := reliability.RecordEmergencyResponse(r, false)
				st.referee = &ref
			}
			return st, nil
		})
		if errors.Is(err, assignment.ErrInvalidTransition) {
			// Answered between listing and locking.
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		metrics.RecordExpiredOffer()
		games = append(games, a.GameID)
	}
	return games, errors.Join(errs...)
}

// sendReminders reminds referees of offers approaching their deadline.
// The lead is capped at half the offer's window so short emergency offers
// are not reminded immediately.
func (s *Service) sendReminders(ctx context.Context) (int, error) {
	active, err := s.store.ListActiveAssignments(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active assignments: %w", err)
	}

	now := s.clock.Now()
	var (
		sent int
		errs []error
	)
	for _, a := range active {
		if a.Status != model.AssignmentOffered || a.Reminded || !now.Before(a.Deadline) {
			continue
		}
		lead := min(s.reminderLead, a.Deadline.Sub(a.OfferedAt)/2)
		if now.Before(a.Deadline.Add(-lead)) {
			continue
		}
		_, _, err := s.transition(ctx, "remind", a.ID, func(a model.Assignment, g model.Game, _ model.Referee, now time.Time) (step, error) {
			next, intents, err := s.machine.Remind(a, g, now)
			if err != nil {
				return step{}, err
			}
			return step{assignment: next, intents: intents}, nil
		})
		if errors.Is(err, assignment.ErrInvalidTransition) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		metrics.RecordReminder()
		sent++
	}
	return sent, errors.Join(errs...)
}

// reopen returns g to pending after its referee dropped out, excluding
// them from further offers.
func reopen(g model.Game, refereeID string) model.Game {
	g = g.WithExcluded(refereeID)
	g.Status = model.GamePending
	g.FailedOffers++
	return g
}
