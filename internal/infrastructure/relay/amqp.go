package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/multierr"
)

// Channel is the subset of *amqp.Channel the sink uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSink publishes envelopes to a topic exchange, routed by event name.
type AMQPSink struct {
	ch       Channel
	conn     io.Closer
	exchange string
}

func NewAMQPSink(ch Channel, exchange string) *AMQPSink {
	return &AMQPSink{ch: ch, exchange: exchange}
}

// DialAMQP connects to url and declares a durable topic exchange.
func DialAMQP(url, exchange string) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("relay: amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("relay: amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("relay: declare exchange %s: %w", exchange, err)
	}
	return &AMQPSink{ch: ch, conn: conn, exchange: exchange}, nil
}

func (s *AMQPSink) Name() string { return "amqp" }

func (s *AMQPSink) Send(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.ch.PublishWithContext(ctx, s.exchange, env.Name, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.ID,
		CorrelationId: env.Key,
		Type:          env.Name,
		Timestamp:     env.OccurredAt,
		Body:          body,
	})
}

func (s *AMQPSink) Close() error {
	err := s.ch.Close()
	if s.conn != nil {
		err = multierr.Append(err, s.conn.Close())
	}
	return err
}
