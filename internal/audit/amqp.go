package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPSink publishes audit entries to a RabbitMQ topic exchange, routing key
// "audit.<action>". Delivery failures are logged and dropped.
type AMQPSink struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	logger   *slog.Logger
}

// NewAMQPSink dials the broker and declares the exchange.
func NewAMQPSink(url, exchange string, logger *slog.Logger) (*AMQPSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPSink{conn: conn, ch: ch, exchange: exchange, logger: logger}, nil
}

// Record publishes the entry. Failures are logged, never returned.
func (s *AMQPSink) Record(ctx context.Context, entry Entry) {
	if s == nil || s.ch == nil {
		return
	}

	body, err := json.Marshal(entry)
	if err != nil {
		s.logger.ErrorContext(ctx, "audit entry marshal failed", "error", err, "action", entry.Action)
		return
	}

	err = s.ch.PublishWithContext(ctx, s.exchange, "audit."+entry.Action, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "audit publish failed", "error", err, "action", entry.Action)
	}
}

// Close releases the channel and connection.
func (s *AMQPSink) Close() error {
	if s == nil {
		return nil
	}
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
