// Package rabbitmq publishes order notifications to a RabbitMQ topic
// exchange for the delivery workers to pick up.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the part of *amqp.Channel the dispatcher uses.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Dispatcher implements ports.Notifier on top of an AMQP channel.
type Dispatcher struct {
	publisher Publisher
	exchange  string
	logger    *slog.Logger
	now       func() time.Time
}

func NewDispatcher(publisher Publisher, exchange string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		exchange:  exchange,
		logger:    logger,
		now:       time.Now,
	}
}

// RoutingKey is the key a notification is published under.
func RoutingKey(template string) string {
	return "notification." + template
}

func (d *Dispatcher) Dispatch(ctx context.Context, n ports.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    d.now().UTC(),
		Type:         n.Template,
		Body:         body,
	}
	if err := d.publisher.PublishWithContext(ctx, d.exchange, RoutingKey(n.Template), false, false, msg); err != nil {
		return fmt.Errorf("publish %s notification: %w", n.Template, err)
	}

	d.logger.DebugContext(ctx, "notification published",
		"template", n.Template,
		"order_id", n.OrderID,
		"message_id", msg.MessageId,
	)
	return nil
}

// Connection owns the AMQP connection and channel behind a Dispatcher.
type Connection struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// Dial connects to the broker and declares the durable topic exchange.
func Dial(url, exchange string) (*Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Connection{conn: conn, channel: ch}, nil
}

func (c *Connection) Channel() *amqp.Channel {
	return c.channel
}

func (c *Connection) Close() error {
	if err := c.channel.Close(); err != nil {
		_ = c.conn.Close()
		return fmt.Errorf("close rabbitmq channel: %w", err)
	}
	return c.conn.Close()
}
