// Package events publishes customer write events to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/warp/rewards-engine/rewards"
)

// Message is the JSON body of a published event.
type Message struct {
	Type          string `json:"type"`
	CustomerID    int64  `json:"customerId"`
	TransactionID int64  `json:"transactionId,omitempty"`
	Points        int    `json:"points"`
	OccurredAt    string `json:"occurredAt"`
}

// NewMessage converts an engine event to its wire form.
func NewMessage(ev rewards.Event) Message {
	return Message{
		Type:          string(ev.Type),
		CustomerID:    int64(ev.CustomerID),
		TransactionID: int64(ev.TransactionID),
		Points:        ev.Points,
		OccurredAt:    ev.OccurredAt.UTC().Format(time.RFC3339),
	}
}

// Publisher sends events to a topic exchange, routed by event type.
type Publisher struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	timeout  time.Duration
}

// NewPublisher dials url and declares a durable topic exchange.
func NewPublisher(url, exchange string) (*Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &Publisher{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		timeout:  5 * time.Second,
	}, nil
}

// Publish implements rewards.EventPublisher.
func (p *Publisher) Publish(ctx context.Context, ev rewards.Event) error {
	body, err := json.Marshal(NewMessage(ev))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,      // exchange
		string(ev.Type), // routing key
		false,           // mandatory
		false,           // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    ev.OccurredAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	slog.DebugContext(ctx, "published event",
		"type", string(ev.Type),
		"customer_id", int64(ev.CustomerID),
		"exchange", p.exchange)
	return nil
}

// Close closes the channel and connection.
func (p *Publisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

var _ rewards.EventPublisher = (*Publisher)(nil)
