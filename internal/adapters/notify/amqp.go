package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/okian/refmatch/internal/domain/model"
	"github.com/streadway/amqp"
)

// Publisher is the part of *amqp.Channel the sink needs.
type Publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes notifications to a topic exchange with routing key
// notify.<role>.<message>. Downstream consumers (email, SMS, push) bind to
// the keys they serve.
type AMQPSink struct {
	mu       sync.Mutex
	pub      Publisher
	exchange string
	conn     *amqp.Connection
}

// NewAMQPSink creates a sink over an existing publisher.
func NewAMQPSink(pub Publisher, exchange string) *AMQPSink {
	return &AMQPSink{pub: pub, exchange: exchange}
}

// DialAMQP connects to url, declares a durable topic exchange and returns a
// sink publishing to it.
func DialAMQP(url, exchange string) (*AMQPSink, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 30 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: dial amqp: %w", model.ErrExternalServiceUnavailable, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	s := NewAMQPSink(ch, exchange)
	s.conn = conn
	return s, nil
}

// RoutingKey returns the key an intent is published with.
func RoutingKey(in model.Intent) string { //nolint:gocritic // hugeParam: Intent is a value type
	return fmt.Sprintf("notify.%s.%s", in.Recipient.Role, in.Message)
}

// Notify implements Sink.
func (s *AMQPSink) Notify(_ context.Context, in model.Intent) error { //nolint:gocritic // hugeParam: Intent is a value type
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal intent %s: %w", in.ID, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    in.DedupeKey(),
		Timestamp:    in.CreatedAt,
		Type:         string(in.Message),
		Body:         body,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.pub.Publish(s.exchange, RoutingKey(in), false, false, msg); err != nil {
		return fmt.Errorf("%w: publish %s: %w", model.ErrExternalServiceUnavailable, in.ID, err)
	}
	return nil
}

// Close closes the connection opened by DialAMQP.
func (s *AMQPSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
