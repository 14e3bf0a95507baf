// Package queue is the outbox between committed transitions and the
// dispatcher that delivers their intents.
//
// Enqueue never blocks: a transition has already been committed when its
// intents arrive here, so a full outbox drops and counts instead of
// stalling the caller.
package queue

import (
	"context"
	"sync"

	"github.com/okian/refmatch/internal/domain/model"
	"github.com/okian/refmatch/pkg/metrics"
)

const defaultQueueCapacity = 10000

// Intent is the payload type flowing through the queue.
type Intent = model.Intent

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an intent to the queue.
	// Returns false if the queue is full or closed and the intent was dropped.
	Enqueue(ctx context.Context, in Intent) bool

	// Dequeue returns a channel that will receive intents as they become available.
	// The channel will be closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan Intent

	// Len returns the current number of queued intents.
	Len(ctx context.Context) int

	// Close gracefully shuts down the queue.
	// After closing, no new intents can be enqueued and the dequeue channel will be closed.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	intents  chan Intent
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}

	q.intents = make(chan Intent, q.capacity)

	metrics.UpdateOutboxCapacity(q.capacity)
	metrics.UpdateOutboxSize(0)
	return q
}

// Enqueue adds an intent to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, in Intent) bool { //nolint:gocritic // hugeParam: Intent is passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordOutboxDrop("closed")
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}

	select {
	case q.intents <- in:
		metrics.RecordOutboxEnqueue()
		metrics.UpdateOutboxSize(len(q.intents))
		return true
	case <-ctx.Done():
		metrics.RecordOutboxDrop("context_cancelled")
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	default:
		metrics.RecordOutboxDrop("full")
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Dequeue returns a channel that will receive intents as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Intent {
	out := make(chan Intent)
	go func() {
		defer close(out)
		for in := range q.intents {
			select {
			case out <- in:
				metrics.UpdateOutboxSize(len(q.intents))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued intents.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.intents)
	metrics.UpdateOutboxSize(size)
	return size
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.intents)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
