package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "refmatch:outcome:"

// RedisDeduper shares seen ids between service instances with SET NX.
type RedisDeduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisDeduper.
type RedisOption func(*RedisDeduper)

// WithKeyPrefix overrides the key namespace.
func WithKeyPrefix(prefix string) RedisOption {
	return func(d *RedisDeduper) {
		if prefix != "" {
			d.prefix = prefix
		}
	}
}

// WithTTL bounds how long an id is remembered. Zero keeps ids forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(d *RedisDeduper) {
		if ttl >= 0 {
			d.ttl = ttl
		}
	}
}

// NewRedisDeduper creates a deduper backed by client.
func NewRedisDeduper(client *redis.Client, opts ...RedisOption) *RedisDeduper {
	d := &RedisDeduper{
		client: client,
		prefix: defaultRedisPrefix,
		ttl:    90 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SeenAndRecord implements Deduper.
func (d *RedisDeduper) SeenAndRecord(ctx context.Context, id string) (bool, error) {
	created, err := d.client.SetNX(ctx, d.prefix+id, time.Now().UTC().Unix(), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe record %s: %w", id, err)
	}
	return !created, nil
}

// Unrecord implements Deduper.
func (d *RedisDeduper) Unrecord(ctx context.Context, id string) error {
	if err := d.client.Del(ctx, d.prefix+id).Err(); err != nil {
		return fmt.Errorf("dedupe unrecord %s: %w", id, err)
	}
	return nil
}

// Size implements Deduper by counting keys under the prefix. It walks the
// keyspace and is meant for diagnostics only.
func (d *RedisDeduper) Size(ctx context.Context) int64 {
	var (
		n      int64
		cursor uint64
	)
	for {
		keys, next, err := d.client.Scan(ctx, cursor, d.prefix+"*", 500).Result()
		if err != nil {
			return n
		}
		n += int64(len(keys))
		if next == 0 {
			return n
		}
		cursor = next
	}
}
