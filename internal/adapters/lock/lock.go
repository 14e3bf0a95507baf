// Package lock serializes work on a single game. Holders of the lock for a
// key are the only writers of that game's state.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/refmatch/pkg/metrics"
)

// ErrNotAcquired is returned when the lock could not be taken before the
// context ended.
var ErrNotAcquired = errors.New("lock not acquired")

// Unlock releases a held lock. Calling it more than once is a no-op.
type Unlock func()

// Locker hands out exclusive per-key locks.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// KeyedLocker is an in-process Locker. Entries are dropped once no caller
// holds or waits on them.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewKeyedLocker creates an in-process locker.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyLock)}
}

// Lock blocks until key is free or ctx ends.
func (l *KeyedLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	l.mu.Lock()
	k, ok := l.locks[key]
	if !ok {
		k = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = k
	}
	k.refs++
	l.mu.Unlock()

	start := time.Now()
	select {
	case k.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, k)
		metrics.RecordLockFailure()
		return nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctx.Err())
	}
	metrics.RecordLockWait(float64(time.Since(start).Microseconds()) / 1000)

	var once sync.Once
	return func() {
		once.Do(func() {
			<-k.ch
			l.release(key, k)
		})
	}, nil
}

// Len returns the number of keys currently held or awaited.
func (l *KeyedLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *KeyedLocker) release(key string, k *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k.refs--
	if k.refs == 0 {
		delete(l.locks, key)
	}
}
