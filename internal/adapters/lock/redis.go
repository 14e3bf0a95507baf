package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/refmatch/pkg/logger"
	"github.com/okian/refmatch/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker shares per-game locks between service instances using
// SET NX PX. The TTL bounds how long a crashed holder blocks a game.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
	log    logger.Logger
}

// RedisOption configures a RedisLocker.
type RedisOption func(*RedisLocker)

// WithTTL sets the lock expiry.
func WithTTL(ttl time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithRetryInterval sets the delay between acquisition attempts.
func WithRetryInterval(d time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if d > 0 {
			l.retry = d
		}
	}
}

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) RedisOption {
	return func(l *RedisLocker) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

// WithLogger sets the logger used for release failures.
func WithLogger(log logger.Logger) RedisOption {
	return func(l *RedisLocker) {
		l.log = log
	}
}

// NewRedisLocker creates a distributed locker.
func NewRedisLocker(client *redis.Client, opts ...RedisOption) *RedisLocker {
	l := &RedisLocker{
		client: client,
		prefix: "refmatch:lock:",
		ttl:    10 * time.Second,
		retry:  25 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.log == nil {
		l.log = logger.Get().Named("lock")
	}
	return l
}

// Lock polls until the key is acquired or ctx ends.
func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	k := l.prefix + key
	token := uuid.NewString()
	start := time.Now()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil && ctx.Err() == nil {
			metrics.RecordLockFailure()
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			metrics.RecordLockWait(float64(time.Since(start).Microseconds()) / 1000)
			return l.unlocker(k, token), nil
		}

		select {
		case <-ctx.Done():
			metrics.RecordLockFailure()
			return nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) unlocker(key, token string) Unlock {
	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be done; release on a fresh one.
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
				l.log.Warn(ctx, "failed to release lock", logger.String("key", key), logger.Error(err))
			}
		})
	}
}
