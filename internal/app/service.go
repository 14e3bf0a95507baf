// Package service is the matching orchestrator. It reads state from the
// store, runs the domain components, commits transitions under a per-game
// lock and hands the resulting intents to the outbox.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/refmatch/internal/adapters/lock"
	"github.com/okian/refmatch/internal/adapters/mq/queue"
	"github.com/okian/refmatch/internal/adapters/mq/worker"
	"github.com/okian/refmatch/internal/adapters/notify"
	"github.com/okian/refmatch/internal/adapters/payment"
	"github.com/okian/refmatch/internal/adapters/repository"
	"github.com/okian/refmatch/internal/domain/assignment"
	"github.com/okian/refmatch/internal/domain/eligibility"
	"github.com/okian/refmatch/internal/domain/loadbalance"
	"github.com/okian/refmatch/internal/domain/model"
	"github.com/okian/refmatch/internal/domain/reliability"
	"github.com/okian/refmatch/internal/domain/scoring"
	"github.com/okian/refmatch/pkg/logger"
	"github.com/okian/refmatch/pkg/metrics"
	"github.com/shopspring/decimal"
)

// Outbox accepts intents after their transition committed. Enqueue must
// not block.
type Outbox interface {
	Enqueue(ctx context.Context, in model.Intent) bool
}

// Service implements the matching operations used by the HTTP API and the
// pass ticker.
type Service struct {
	mu sync.RWMutex

	store    repository.Store
	locker   lock.Locker
	outbox   Outbox
	clock    model.Clock
	filter   *eligibility.Filter
	scorer   *scoring.Engine
	balancer *loadbalance.Balancer
	machine  *assignment.Machine
	tracker  *reliability.Tracker

	handler     worker.Handler
	workerCount int
	workerOpts  []worker.Option
	pool        *worker.Pool

	baseRates       map[model.Sport]map[model.Level]decimal.Decimal
	passConcurrency int
	staleRetries    int
	reminderLead    time.Duration

	started  bool
	passes   int64
	lastPass *PassReport

	logger logger.Logger
}

// New constructs a Service over store. Every collaborator not supplied by
// an option gets its default.
func New(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:           store,
		clock:           model.SystemClock,
		passConcurrency: 4,
		staleRetries:    3,
		reminderLead:    12 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.locker == nil {
		s.locker = lock.NewKeyedLocker()
	}
	if s.outbox == nil {
		s.outbox = queue.NewInMemoryQueue()
	}
	if s.filter == nil {
		s.filter = eligibility.New()
	}
	if s.scorer == nil {
		s.scorer = scoring.New()
	}
	if s.balancer == nil {
		s.balancer = loadbalance.New()
	}
	if s.machine == nil {
		s.machine = assignment.New()
	}
	if s.tracker == nil {
		s.tracker = reliability.New()
	}
	return s
}

// Start launches the dispatcher pool when the outbox can be drained.
// Without a configured handler, notifications are logged and payments go
// to an in-memory ledger.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	q, ok := s.outbox.(worker.Queue)
	if !ok {
		s.started = true
		s.logger.Info(ctx, "service started without dispatcher")
		return nil
	}

	if s.handler == nil {
		s.handler = worker.Router{
			Sink:     notify.NewLogSink(s.logger.Named("notify")),
			Payments: payment.NewLedger(s.clock),
		}
	}
	s.pool = worker.NewPool(s.workerCount, q, s.handler, s.workerOpts...)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "service started", logger.Int("dispatchers", s.pool.Size()))
	return nil
}

// Stop drains the outbox and closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	var errs []error
	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if closer, ok := s.store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}

	s.started = false
	s.logger.Info(ctx, "service stopped")
	return errors.Join(errs...)
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time { return s.clock.Now() }

// UpsertReferee registers a referee or updates their profile. Outcome
// history, reliability and registration time are owned by the service and
// kept from the stored record.
func (s *Service) UpsertReferee(ctx context.Context, r model.Referee) (model.Referee, error) {
	if err := r.Validate(); err != nil {
		return model.Referee{}, err
	}

	var out model.Referee
	err := s.retry(ctx, "upsert_referee", func() error {
		now := s.clock.Now()
		next := r.Clone()

		cur, err := s.store.GetReferee(ctx, r.ID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			next.Stats = model.Stats{}
			next.Reliability = s.tracker.Initial()
			next.RegisteredAt = now
			next.Version = 0
		case err != nil:
			return err
		default:
			next.Stats = cur.Stats.Clone()
			next.Reliability = cur.Reliability
			next.RegisteredAt = cur.RegisteredAt
			next.Version = cur.Version
		}

		res, err := s.store.Commit(ctx, repository.Change{Referee: &next})
		if err != nil {
			return err
		}
		out = *res.Referee
		return nil
	})
	if err != nil {
		return model.Referee{}, fmt.Errorf("upsert referee %s: %w", r.ID, err)
	}
	return out, nil
}

// GetGame returns a game.
func (s *Service) GetGame(ctx context.Context, id string) (model.Game, error) {
	return s.store.GetGame(ctx, id)
}

// ListGames returns games in any of statuses, or all of them.
func (s *Service) ListGames(ctx context.Context, statuses ...model.GameStatus) ([]model.Game, error) {
	return s.store.ListGames(ctx, statuses...)
}

// GetReferee returns a referee with reliability as of now.
func (s *Service) GetReferee(ctx context.Context, id string) (model.Referee, error) {
	r, err := s.store.GetReferee(ctx, id)
	if err != nil {
		return model.Referee{}, err
	}
	r.Reliability = s.tracker.Current(r, s.clock.Now())
	return r, nil
}

// GetAssignment returns an assignment.
func (s *Service) GetAssignment(ctx context.Context, id string) (model.Assignment, error) {
	return s.store.GetAssignment(ctx, id)
}

// ListGameAssignments returns the offer history of a game.
func (s *Service) ListGameAssignments(ctx context.Context, gameID string) ([]model.Assignment, error) {
	if _, err := s.store.GetGame(ctx, gameID); err != nil {
		return nil, err
	}
	return s.store.ListAssignmentsByGame(ctx, gameID)
}

// LastPass returns the report of the most recent matching pass.
func (s *Service) LastPass() (PassReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastPass == nil {
		return PassReport{}, false
	}
	return *s.lastPass, true
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) (map[string]interface{}, error) {
	games, err := s.store.ListGames(ctx)
	if err != nil {
		return nil, err
	}
	active, err := s.store.ListActiveAssignments(ctx)
	if err != nil {
		return nil, err
	}
	refs, err := s.store.ListReferees(ctx)
	if err != nil {
		return nil, err
	}

	byStatus := map[model.GameStatus]int{}
	for _, g := range games {
		byStatus[g.Status]++
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := map[string]interface{}{
		"started":            s.started,
		"games":              len(games),
		"gamesByStatus":      byStatus,
		"referees":           len(refs),
		"activeAssignments":  len(active),
		"passes":             s.passes,
		"passConcurrency":    s.passConcurrency,
		"staleWriteRetries":  s.staleRetries,
		"emergencyWindowSec": int64(s.scorer.EmergencyWindow().Seconds()),
	}
	if l, ok := s.outbox.(interface{ Len(context.Context) int }); ok {
		stats["outboxLength"] = l.Len(ctx)
	}
	if s.pool != nil {
		stats["dispatchers"] = s.pool.Size()
	}
	if s.lastPass != nil {
		stats["lastPass"] = *s.lastPass
	}
	metrics.UpdatePendingGames(byStatus[model.GamePending])
	metrics.UpdateActiveAssignments(len(active))
	return stats, nil
}

// withGameLock runs fn while holding the game's lock.
func (s *Service) withGameLock(ctx context.Context, gameID string, fn func() error) error {
	unlock, err := s.locker.Lock(ctx, "game:"+gameID)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// retry re-runs fn from fresh state while it loses version races.
func (s *Service) retry(ctx context.Context, op string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !errors.Is(err, repository.ErrStaleWrite) || attempt >= s.staleRetries {
			if errors.Is(err, assignment.ErrInvalidTransition) {
				metrics.RecordRejectedTransition(op)
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.RecordStaleWriteRetry()
		s.logger.Debug(ctx, "stale write, retrying",
			logger.String("operation", op),
			logger.Int("attempt", attempt+1),
		)
	}
}

// publish stamps and enqueues intents after their transition committed.
func (s *Service) publish(ctx context.Context, intents []model.Intent) {
	now := s.clock.Now()
	for _, in := range intents {
		if in.ID == "" {
			in.ID = uuid.NewString()
		}
		in.CreatedAt = now
		if !s.outbox.Enqueue(ctx, in) {
			s.logger.Warn(ctx, "outbox rejected intent",
				logger.String("intent_id", in.ID),
				logger.String("kind", string(in.Kind)),
				logger.String("dedupe_key", in.DedupeKey()),
			)
		}
	}
}

func recordTransition(from, to model.AssignmentStatus) {
	if from == "" {
		from = "none"
	}
	metrics.RecordTransition(string(from), string(to))
}
