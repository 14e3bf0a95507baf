package worker

import (
	"time"

	"github.com/okian/refmatch/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMaxAttempts bounds how often one intent is tried.
func WithMaxAttempts(n int) Option {
	return func(w *InMemoryWorker) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

// WithBackoff sets the first retry delay and the cap it doubles up to.
func WithBackoff(base, limit time.Duration) Option {
	return func(w *InMemoryWorker) {
		if base > 0 {
			w.baseBackoff = base
		}
		if limit >= w.baseBackoff {
			w.maxBackoff = limit
		}
	}
}

// WithDeadLetter sets the callback for intents that exhausted their attempts.
func WithDeadLetter(fn DeadLetter) Option {
	return func(w *InMemoryWorker) {
		w.deadLetter = fn
	}
}
