package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rabbitmq/amqp091-go"

	"jobmail/pkg/otel"
	"jobmail/pkg/trace"
)

type Publisher struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	// amqp091 channels are not safe for concurrent publishing
	mu sync.Mutex
}

func NewPublisher(url string) (*Publisher, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := DeclareExchange(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	if err := DeclareDLQExchange(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare DLQ exchange: %w", err)
	}

	return &Publisher{
		conn:    conn,
		channel: ch,
	}, nil
}

func (p *Publisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// IsConnected checks if the publisher connection is still alive
func (p *Publisher) IsConnected() bool {
	if p.conn == nil || p.channel == nil {
		return false
	}
	return !p.conn.IsClosed()
}

// Publish publishes an event to the exchange with the given routing key.
func (p *Publisher) Publish(routingKey string, payload any) error {
	return p.PublishWithContext(context.Background(), routingKey, payload)
}

// PublishWithContext publishes payload and propagates the trace id from ctx
// as a message header.
func (p *Publisher) PublishWithContext(ctx context.Context, routingKey string, payload any) (err error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	headers := amqp091.Table{}
	ctx, span := otel.MQPublishSpan(ctx, ExchangeName, routingKey, headers)
	defer func() { otel.EndSpan(span, err) }()

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		Headers:      headers,
	}
	if traceID := trace.FromContext(ctx); traceID != "" {
		msg.Headers[trace.HeaderName] = traceID
		msg.CorrelationId = traceID
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel.PublishWithContext(ctx, ExchangeName, routingKey, false, false, msg)
}
