package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"jobmail/pkg/metrics"
	"jobmail/pkg/otel"
	"jobmail/pkg/trace"
)

type MessageHandler func(ctx context.Context, data json.RawMessage) error

type Consumer struct {
	channel    *amqp091.Channel
	queue      amqp091.Queue
	routingKey string
	handler    MessageHandler
	conn       *amqp091.Connection
	logger     *zap.Logger
}

// NewConsumer creates a consumer for a specific routing key. prefetch bounds
// the number of unacked deliveries; 0 leaves the broker default.
func NewConsumer(url, queueName, routingKey string, prefetch int, logger *zap.Logger) (*Consumer, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	fail := func(format string, err error) (*Consumer, error) {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf(format, err)
	}

	if err := DeclareExchange(ch); err != nil {
		return fail("failed to declare exchange: %w", err)
	}
	if err := DeclareDLQExchange(ch); err != nil {
		return fail("failed to declare DLQ exchange: %w", err)
	}
	if _, err := DeclareDLQQueue(ch, routingKey); err != nil {
		return fail("failed to declare DLQ queue: %w", err)
	}

	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			return fail("failed to set qos: %w", err)
		}
	}

	q, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fail("failed to declare queue: %w", err)
	}

	err = ch.QueueBind(
		q.Name,
		routingKey,
		ExchangeName,
		false,
		nil,
	)
	if err != nil {
		return fail("failed to bind queue: %w", err)
	}

	logger.Info("Consumer initialized",
		zap.String("routing_key", routingKey),
		zap.String("queue", queueName),
		zap.String("exchange", ExchangeName),
	)

	return &Consumer{
		conn:       conn,
		channel:    ch,
		queue:      q,
		routingKey: routingKey,
		logger:     logger,
	}, nil
}

func (c *Consumer) SetHandler(h MessageHandler) {
	c.handler = h
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// StartConsuming starts consuming messages until ctx is done or the channel
// closes. It blocks and should be called in a goroutine.
func (c *Consumer) StartConsuming(ctx context.Context) error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}

	deliveries, err := c.channel.Consume(
		c.queue.Name,
		"jobmail-worker",
		false, // 手动ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started consuming messages",
		zap.String("routing_key", c.routingKey),
		zap.String("queue", c.queue.Name),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Consumer stopped", zap.String("queue", c.queue.Name))
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed for queue %s", c.queue.Name)
			}
			c.handle(ctx, msg)
		}
	}
}

// handle 保证每条消息都会被 ack 或 nack
func (c *Consumer) handle(ctx context.Context, msg amqp091.Delivery) {
	start := time.Now()
	defer func() {
		metrics.RecordMQConsumeLatency(c.routingKey, c.queue.Name, time.Since(start))
	}()

	if traceID, ok := msg.Headers[trace.HeaderName].(string); ok {
		ctx = trace.WithContext(ctx, traceID)
	} else if msg.CorrelationId != "" {
		ctx = trace.WithContext(ctx, msg.CorrelationId)
	}

	ctx, span := otel.MQConsumeSpan(ctx, c.queue.Name, c.routingKey, msg.Headers)
	defer span.End()

	c.logger.Debug("Received message",
		zap.String("routing_key", c.routingKey),
		zap.String("queue", c.queue.Name),
		zap.Int("message_size", len(msg.Body)),
	)

	// Panic 恢复：确保即使 handler panic 也能正确处理消息
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Handler panic recovered",
				zap.String("routing_key", c.routingKey),
				zap.String("queue", c.queue.Name),
				zap.Any("panic", r),
			)
			// panic 大概率是确定性的，不再重新入队
			if err := msg.Nack(false, false); err != nil {
				c.logger.Error("Failed to nack message after panic",
					zap.String("routing_key", c.routingKey),
					zap.Error(err),
				)
			}
		}
	}()

	if err := c.handler(ctx, msg.Body); err != nil {
		c.logger.Error("Handler error",
			zap.String("routing_key", c.routingKey),
			zap.String("queue", c.queue.Name),
			zap.Error(err),
		)
		// 业务失败 → 拒绝消息并重新入队，让 MQ 重试
		if err := msg.Nack(false, true); err != nil {
			c.logger.Error("Failed to nack message",
				zap.String("routing_key", c.routingKey),
				zap.Error(err),
			)
		}
		return
	}

	if err := msg.Ack(false); err != nil {
		c.logger.Error("Failed to ack message",
			zap.String("routing_key", c.routingKey),
			zap.Error(err),
		)
		return
	}
	c.logger.Debug("Message processed successfully",
		zap.String("routing_key", c.routingKey),
		zap.String("queue", c.queue.Name),
	)
}
