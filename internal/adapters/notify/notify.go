// Package notify delivers notification intents to referees, organizers and
// admins. Sinks hand intents to the channel that reaches people; they never
// decide what to send.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/refmatch/internal/domain/model"
	"github.com/okian/refmatch/pkg/logger"
)

// Sink delivers one notification. The recipient, message and payload are
// the intent's fields; DedupeKey lets the far side drop redeliveries.
type Sink interface {
	Notify(ctx context.Context, in model.Intent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, in model.Intent) error

// Notify implements Sink.
func (f SinkFunc) Notify(ctx context.Context, in model.Intent) error { return f(ctx, in) }

// LogSink writes notifications to the structured log. It is the default
// sink when no broker is configured.
type LogSink struct {
	log logger.Logger
}

// NewLogSink creates a log-backed sink.
func NewLogSink(log logger.Logger) *LogSink {
	if log == nil {
		log = logger.Get().Named("notify")
	}
	return &LogSink{log: log}
}

// Notify implements Sink.
func (s *LogSink) Notify(ctx context.Context, in model.Intent) error { //nolint:gocritic // hugeParam: Intent is a value type
	s.log.Info(ctx, "notification",
		logger.String("intent_id", in.ID),
		logger.String("message", string(in.Message)),
		logger.String("role", string(in.Recipient.Role)),
		logger.String("recipient", in.Recipient.ID),
		logger.String("game_id", in.GameID),
		logger.String("assignment_id", in.AssignmentID),
		logger.String("dedupe_key", in.DedupeKey()),
		logger.Any("payload", in.Payload),
	)
	return nil
}

// Fanout delivers to every sink and joins their errors. One failing sink
// does not stop the others.
type Fanout []Sink

// Notify implements Sink.
func (f Fanout) Notify(ctx context.Context, in model.Intent) error { //nolint:gocritic // hugeParam: Intent is a value type
	var errs []error
	for _, s := range f {
		if err := s.Notify(ctx, in); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", model.ErrExternalServiceUnavailable, errors.Join(errs...))
	}
	return nil
}
