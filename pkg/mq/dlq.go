package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"jobmail/pkg/trace"
)

const DLQExchangeName = "jobmail.dlq"

// Dead letter headers. The body is the original message, untouched.
const (
	HeaderErrorType     = "x-error-type"
	HeaderOriginalError = "x-original-error"
	HeaderFailedAt      = "x-failed-at"
	HeaderFailedBy      = "x-failed-by"
)

// maxErrorHeader caps the error text stored in a header.
const maxErrorHeader = 1024

// DLQQueueName is the parking queue for messages dead-lettered under routingKey.
func DLQQueueName(routingKey string) string {
	return routingKey + ".dlq"
}

// DeclareDLQExchange declares the dead letter exchange.
func DeclareDLQExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(DLQExchangeName, "topic", true, false, false, false, nil)
}

// DeclareDLQQueue declares and binds the parking queue for routingKey.
func DeclareDLQQueue(ch *amqp091.Channel, routingKey string) (amqp091.Queue, error) {
	q, err := ch.QueueDeclare(DLQQueueName(routingKey), true, false, false, false, nil)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to declare DLQ queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, routingKey, DLQExchangeName, false, nil); err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to bind DLQ queue: %w", err)
	}
	return q, nil
}

// PublishToDLQ parks payload on the dead letter exchange with the failure
// classification and the trace id from ctx in its headers.
func (p *Publisher) PublishToDLQ(ctx context.Context, routingKey string, payload []byte, errorType, originalError string) error {
	if len(originalError) > maxErrorHeader {
		originalError = originalError[:maxErrorHeader]
	}
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         payload,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now().UTC(),
		Headers: amqp091.Table{
			HeaderErrorType:     errorType,
			HeaderOriginalError: originalError,
			HeaderFailedAt:      time.Now().UTC().Format(time.RFC3339),
			HeaderFailedBy:      "jobmail-worker",
		},
	}
	if traceID := trace.FromContext(ctx); traceID != "" {
		msg.Headers[trace.HeaderName] = traceID
		msg.CorrelationId = traceID
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel.PublishWithContext(ctx, DLQExchangeName, routingKey, false, false, msg)
}
