package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/refmatch/internal/adapters/lock"
	"github.com/okian/refmatch/internal/adapters/mq/queue"
	"github.com/okian/refmatch/internal/adapters/mq/worker"
	"github.com/okian/refmatch/internal/adapters/notify"
	"github.com/okian/refmatch/internal/adapters/payment"
	"github.com/okian/refmatch/internal/adapters/repository"
	app "github.com/okian/refmatch/internal/app"
	"github.com/okian/refmatch/internal/config"
	"github.com/okian/refmatch/internal/domain/assignment"
	"github.com/okian/refmatch/internal/domain/dedupe"
	"github.com/okian/refmatch/internal/domain/eligibility"
	"github.com/okian/refmatch/internal/domain/loadbalance"
	"github.com/okian/refmatch/internal/domain/model"
	"github.com/okian/refmatch/internal/domain/reliability"
	"github.com/okian/refmatch/internal/domain/scoring"
	"github.com/okian/refmatch/pkg/logger"
	"github.com/okian/refmatch/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

// dispatchBackoffLimit caps the dispatcher's exponential retry delay.
const dispatchBackoffLimit = 30

// components holds everything built from config, plus the closers that
// release external connections on shutdown.
type components struct {
	store   repository.Store
	service *app.Service
	closers []func() error
}

// Close releases external connections in reverse order of creation.
func (c *components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// build wires the configured backends into a Service. On error every
// connection opened so far is closed.
func build(ctx context.Context, cfg *config.Config, log logger.Logger) (_ *components, err error) {
	c := &components{}
	defer func() {
		if err == nil {
			return
		}
		if closer, ok := c.store.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
		_ = c.Close()
	}()

	var rdb *redis.Client
	redisClient := func() (*redis.Client, error) {
		if rdb != nil {
			return rdb, nil
		}
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("%w: redis_url: %w", config.ErrInvalidConfig, err)
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			rdb = nil
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		c.closers = append(c.closers, rdb.Close)
		return rdb, nil
	}

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pg, err := repository.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
		c.store = pg
	default:
		c.store = repository.NewMemoryStore(ctx)
	}

	var locker lock.Locker = lock.NewKeyedLocker()
	if cfg.LockBackend == config.BackendRedis {
		client, err := redisClient()
		if err != nil {
			return nil, err
		}
		locker = lock.NewRedisLocker(client,
			lock.WithTTL(cfg.LockTTL()),
			lock.WithLogger(log.Named("lock")),
		)
	}

	seen := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize))
	if cfg.DedupeBackend == config.BackendRedis {
		client, err := redisClient()
		if err != nil {
			return nil, err
		}
		seen = dedupe.NewRedisDeduper(client, dedupe.WithTTL(cfg.DedupeTTL()))
	}

	var sink notify.Sink = notify.NewLogSink(log.Named("notify"))
	switch cfg.NotifyBackend {
	case config.BackendRedis:
		client, err := redisClient()
		if err != nil {
			return nil, err
		}
		sink = notify.Fanout{sink, notify.NewRedisStreamSink(client, notify.WithStreamPrefix(cfg.NotifyStream))}
	case config.BackendAMQP:
		publisher, err := notify.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, publisher.Close)
		sink = notify.Fanout{sink, publisher}
	}

	outbox := queue.NewInMemoryQueue(queue.WithCapacity(cfg.OutboxSize))
	router := worker.Router{Sink: sink, Payments: payment.NewLedger(model.SystemClock)}
	deadLetters := log.Named("dead_letter")

	tracker := reliability.New(append(cfg.ReliabilityOptions(), reliability.WithDeduper(seen))...)
	c.service = app.New(c.store,
		app.WithLogger(log.Named("service")),
		app.WithLocker(locker),
		app.WithOutbox(outbox),
		app.WithDispatcher(router, cfg.DispatcherWorkers,
			worker.WithLogger(log.Named("dispatcher")),
			worker.WithMaxAttempts(cfg.DispatchMaxAttempts),
			worker.WithBackoff(cfg.DispatchBackoff(), cfg.DispatchBackoff()*dispatchBackoffLimit),
			worker.WithDeadLetter(func(ctx context.Context, in model.Intent, err error) {
				metrics.RecordErrorByComponent("dispatcher", string(in.Kind))
				deadLetters.Error(ctx, "intent dropped",
					logger.String("intent_id", in.ID),
					logger.String("dedupe_key", in.DedupeKey()),
					logger.Int("attempts", in.Attempt),
					logger.Error(err),
				)
			}),
		),
		app.WithEligibility(eligibility.New(cfg.EligibilityOptions()...)),
		app.WithScoring(scoring.New(cfg.ScoringOptions()...)),
		app.WithLoadBalancer(loadbalance.New(cfg.LoadBalanceOptions()...)),
		app.WithMachine(assignment.New(cfg.AssignmentOptions()...)),
		app.WithReliability(tracker),
		app.WithBaseRates(cfg.Rates()),
		app.WithPassConcurrency(cfg.PassConcurrency),
		app.WithStaleWriteRetries(cfg.StaleWriteRetries),
		app.WithReminderLead(cfg.ReminderLead()),
	)
	return c, nil
}
