package service

import (
	"time"

	"github.com/okian/refmatch/internal/adapters/lock"
	"github.com/okian/refmatch/internal/adapters/mq/worker"
	"github.com/okian/refmatch/internal/domain/assignment"
	"github.com/okian/refmatch/internal/domain/eligibility"
	"github.com/okian/refmatch/internal/domain/loadbalance"
	"github.com/okian/refmatch/internal/domain/model"
	"github.com/okian/refmatch/internal/domain/reliability"
	"github.com/okian/refmatch/internal/domain/scoring"
	"github.com/okian/refmatch/pkg/logger"
	"github.com/shopspring/decimal"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(c model.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLocker sets the per-game lock.
func WithLocker(l lock.Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithOutbox sets where committed intents are enqueued. When the outbox
// also implements worker.Queue, Start drains it with the dispatcher pool.
func WithOutbox(o Outbox) Option {
	return func(s *Service) {
		if o != nil {
			s.outbox = o
		}
	}
}

// WithDispatcher sets the intent handler and pool size used by Start.
func WithDispatcher(h worker.Handler, workers int, opts ...worker.Option) Option {
	return func(s *Service) {
		s.handler = h
		s.workerCount = workers
		s.workerOpts = opts
	}
}

// WithEligibility sets the eligibility filter.
func WithEligibility(f *eligibility.Filter) Option {
	return func(s *Service) {
		if f != nil {
			s.filter = f
		}
	}
}

// WithScoring sets the scoring engine.
func WithScoring(e *scoring.Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.scorer = e
		}
	}
}

// WithLoadBalancer sets the load balancer.
func WithLoadBalancer(b *loadbalance.Balancer) Option {
	return func(s *Service) {
		if b != nil {
			s.balancer = b
		}
	}
}

// WithMachine sets the assignment state machine.
func WithMachine(m *assignment.Machine) Option {
	return func(s *Service) {
		if m != nil {
			s.machine = m
		}
	}
}

// WithReliability sets the reliability tracker.
func WithReliability(t *reliability.Tracker) Option {
	return func(s *Service) {
		if t != nil {
			s.tracker = t
		}
	}
}

// WithBaseRates sets the fee table used for games submitted without a fee.
func WithBaseRates(rates map[model.Sport]map[model.Level]decimal.Decimal) Option {
	return func(s *Service) {
		s.baseRates = rates
	}
}

// WithPassConcurrency bounds how many games a pass matches at once.
func WithPassConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.passConcurrency = n
		}
	}
}

// WithStaleWriteRetries bounds how often a transition is retried from
// fresh state after losing a version race.
func WithStaleWriteRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.staleRetries = n
		}
	}
}

// WithReminderLead sets how long before the deadline an offer is reminded.
func WithReminderLead(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.reminderLead = d
		}
	}
}
