package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// publishTimeout bounds a single broker publish.
const publishTimeout = 5 * time.Second

// AMQPPublisher publishes events to a durable direct exchange, routed by kind.
type AMQPPublisher struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	logger       *slog.Logger
	exchangeName string
}

// NewAMQPPublisher dials the broker and declares the exchange.
func NewAMQPPublisher(url, exchangeName string, logger *slog.Logger) (*AMQPPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	p := &AMQPPublisher{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		logger:       logger.With("component", "events"),
	}

	err = channel.ExchangeDeclare(
		exchangeName, // name
		"direct",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return p, nil
}

// Publish sends one persistent JSON message.
func (p *AMQPPublisher) Publish(ctx context.Context, event Event) error {
	body, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.channel.PublishWithContext(
		ctx,
		p.exchangeName,     // exchange
		string(event.Kind), // routing key
		false,              // mandatory
		false,              // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    event.ID,
			Timestamp:    event.OccurredAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	p.logger.DebugContext(ctx, "published event",
		"kind", event.Kind,
		"entity_id", event.EntityID,
		"exchange", p.exchangeName)
	return nil
}

// Consume binds queue to the given kinds and hands each event to handler until ctx ends.
// Malformed messages are dropped; handler failures are requeued.
func (p *AMQPPublisher) Consume(ctx context.Context, queue string, kinds []Kind, handler func(Event) error) error {
	q, err := p.channel.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	for _, kind := range kinds {
		if err := p.channel.QueueBind(q.Name, string(kind), p.exchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue to %s: %w", kind, err)
		}
	}

	msgs, err := p.channel.Consume(
		q.Name, // queue
		"",     // consumer
		false,  // auto-ack
		false,  // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	p.logger.InfoContext(ctx, "consuming events", "queue", q.Name, "kinds", kinds)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			event, err := FromJSON(delivery.Body)
			if err != nil {
				p.logger.ErrorContext(ctx, "failed to unmarshal event", "error", err)
				_ = delivery.Nack(false, false)
				continue
			}

			if err := handler(event); err != nil {
				p.logger.ErrorContext(ctx, "failed to handle event", "error", err, "kind", event.Kind, "id", event.ID)
				_ = delivery.Nack(false, true)
				continue
			}

			_ = delivery.Ack(false)
		}
	}
}

// Close shuts the channel and connection.
func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
