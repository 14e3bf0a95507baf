package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/okian/refmatch/internal/domain/model"
	"github.com/redis/go-redis/v9"
)

// RedisStreamSink appends notifications to a Redis stream, one stream per
// recipient role: <prefix>.<role>.
type RedisStreamSink struct {
	client *redis.Client
	prefix string
	maxLen int64
}

// RedisOption configures a RedisStreamSink.
type RedisOption func(*RedisStreamSink)

// WithStreamPrefix sets the stream key prefix.
func WithStreamPrefix(prefix string) RedisOption {
	return func(s *RedisStreamSink) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithMaxLen caps each stream approximately. Zero keeps every entry.
func WithMaxLen(n int64) RedisOption {
	return func(s *RedisStreamSink) {
		if n >= 0 {
			s.maxLen = n
		}
	}
}

// NewRedisStreamSink creates a stream-backed sink.
func NewRedisStreamSink(client *redis.Client, opts ...RedisOption) *RedisStreamSink {
	s := &RedisStreamSink{
		client: client,
		prefix: "refmatch.notify",
		maxLen: 100_000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stream returns the stream key used for role.
func (s *RedisStreamSink) Stream(role model.Role) string {
	return fmt.Sprintf("%s.%s", s.prefix, role)
}

// Notify implements Sink.
func (s *RedisStreamSink) Notify(ctx context.Context, in model.Intent) error { //nolint:gocritic // hugeParam: Intent is a value type
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal intent %s: %w", in.ID, err)
	}

	stream := s.Stream(in.Recipient.Role)
	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"dedupe_key": in.DedupeKey(),
			"recipient":  in.Recipient.ID,
			"message":    string(in.Message),
			"data":       string(data),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("%w: publish to stream %s: %w", model.ErrExternalServiceUnavailable, stream, err)
	}
	return nil
}
