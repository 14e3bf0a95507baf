// Package worker drains the outbox and executes intents against the
// notification and payment collaborators.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/okian/refmatch/internal/adapters/notify"
	"github.com/okian/refmatch/internal/adapters/payment"
	"github.com/okian/refmatch/internal/domain/model"
	"github.com/okian/refmatch/pkg/logger"
	"github.com/okian/refmatch/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	defaultMaxAttempts      = 5
	defaultBaseBackoff      = 200 * time.Millisecond
	defaultMaxBackoff       = 10 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Intent is what workers read off the queue.
type Intent = model.Intent

// Queue defines how workers receive intents.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Intent
}

// Handler executes one intent.
type Handler interface {
	Handle(ctx context.Context, in Intent) error
}

// DeadLetter receives intents that exhausted their attempts.
type DeadLetter func(ctx context.Context, in Intent, err error)

// Router sends notify intents to the sink and payment intents to the gateway.
type Router struct {
	Sink     notify.Sink
	Payments payment.Gateway
}

// Handle implements Handler.
func (r Router) Handle(ctx context.Context, in Intent) error { //nolint:gocritic // hugeParam: Intent is a value type
	switch in.Kind {
	case model.IntentNotify:
		return r.Sink.Notify(ctx, in)
	case model.IntentAuthorize:
		return r.Payments.Authorize(ctx, in.AssignmentID, in.Amount)
	case model.IntentCapture:
		return r.Payments.Capture(ctx, in.AssignmentID)
	case model.IntentVoid:
		return r.Payments.Void(ctx, in.AssignmentID)
	default:
		return fmt.Errorf("%w: unknown intent kind %q", model.ErrValidation, in.Kind)
	}
}

// Worker executes intents until its queue closes.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after the intent in flight.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker retries each intent with exponential backoff before
// giving it to the dead letter.
type InMemoryWorker struct {
	queue   Queue
	handler Handler
	name    string

	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	deadLetter  DeadLetter

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, handler Handler, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:       queue,
		handler:     handler,
		name:        "dispatcher",
		maxAttempts: defaultMaxAttempts,
		baseBackoff: defaultBaseBackoff,
		maxBackoff:  defaultMaxBackoff,
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	intents := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case in, ok := <-intents:
			if !ok {
				return
			}
			w.process(ctx, in)
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Backoff returns the delay before retry number attempt (1-based).
func (w *InMemoryWorker) Backoff(attempt int) time.Duration {
	d := w.baseBackoff
	for i := 1; i < attempt && d < w.maxBackoff; i++ {
		d *= 2
	}
	return min(d, w.maxBackoff)
}

func (w *InMemoryWorker) process(ctx context.Context, in Intent) { //nolint:gocritic // hugeParam: Intent is a value type
	start := time.Now()
	defer func() {
		metrics.RecordDispatchLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	kind := string(in.Kind)
	var err error
	for {
		in.Attempt++
		if err = w.handler.Handle(ctx, in); err == nil {
			metrics.RecordDispatch(kind, "success")
			return
		}

		metrics.RecordDispatch(kind, "failure")
		metrics.RecordErrorByComponent("dispatcher", kind)
		if in.Attempt >= w.maxAttempts {
			break
		}

		wait := w.Backoff(in.Attempt)
		w.logger.Warn(ctx, "intent delivery failed, retrying",
			logger.String("intent_id", in.ID),
			logger.String("kind", kind),
			logger.Int("attempt", in.Attempt),
			logger.Duration("backoff", wait),
			logger.Error(err),
		)
		metrics.RecordDispatchRetry(kind)

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			w.drop(ctx, in, ctx.Err())
			return
		case <-w.shutdown:
			timer.Stop()
			w.drop(ctx, in, err)
			return
		}
	}
	w.drop(ctx, in, err)
}

func (w *InMemoryWorker) drop(ctx context.Context, in Intent, err error) { //nolint:gocritic // hugeParam: Intent is a value type
	metrics.RecordDispatch(string(in.Kind), "dead_letter")
	w.logger.Error(ctx, "intent dead-lettered",
		logger.String("intent_id", in.ID),
		logger.String("kind", string(in.Kind)),
		logger.String("dedupe_key", in.DedupeKey()),
		logger.Int("attempts", in.Attempt),
		logger.Error(err),
	)
	if w.deadLetter != nil {
		w.deadLetter(ctx, in, err)
	}
}

// Pool manages multiple workers reading one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a new worker pool. Options apply to every worker.
func NewPool(workerCount int, queue Queue, handler Handler, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.Get().Named("dispatcher-pool"),
	}
	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("dispatcher-" + strconv.Itoa(i))}, opts...)
		pool.workers[i] = NewInMemoryWorker(queue, handler, wopts...)
	}
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	metrics.UpdateDispatchWorkers(len(p.workers))
}

// Shutdown closes the queue, lets the workers drain it and waits for them.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateDispatchWorkers(0)
	if timedOut {
		return fmt.Errorf("dispatcher shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
