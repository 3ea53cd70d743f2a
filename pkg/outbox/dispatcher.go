package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"jobmail/pkg/trace"
)

// Publisher is the subset of mq.Publisher the dispatcher needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, routingKey string, payload any) error
}

// Store is the subset of Repository the dispatcher needs.
type Store interface {
	GetPendingEvents(ctx context.Context, limit int) ([]*Event, error)
	MarkAsSent(ctx context.Context, eventID int64) error
	MarkAsFailed(ctx context.Context, eventID int64, maxRetries int) error
}

// Dispatcher 负责从 outbox 中读取事件并发布到 MQ
type Dispatcher struct {
	repo       Store
	publisher  Publisher
	logger     *zap.Logger
	maxRetries int
	interval   time.Duration
	batchSize  int
}

// NewDispatcher 创建新的 Dispatcher
func NewDispatcher(repo Store, publisher Publisher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		repo:       repo,
		publisher:  publisher,
		logger:     logger,
		maxRetries: 5,               // 默认最大重试5次
		interval:   1 * time.Second, // 默认每秒扫描一次
		batchSize:  100,             // 默认每次处理100个事件
	}
}

// WithMaxRetries 设置最大重试次数
func (d *Dispatcher) WithMaxRetries(maxRetries int) *Dispatcher {
	d.maxRetries = maxRetries
	return d
}

// WithInterval 设置扫描间隔
func (d *Dispatcher) WithInterval(interval time.Duration) *Dispatcher {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// WithBatchSize 设置批次大小
func (d *Dispatcher) WithBatchSize(batchSize int) *Dispatcher {
	d.batchSize = batchSize
	return d
}

// Start 启动 Dispatcher（在 goroutine 中运行）
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("Starting Outbox Dispatcher",
		zap.Int("max_retries", d.maxRetries),
		zap.Duration("interval", d.interval),
		zap.Int("batch_size", d.batchSize),
	)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Outbox Dispatcher stopped")
			return
		case <-ticker.C:
			d.ProcessPendingEvents(ctx)
		}
	}
}

// ProcessPendingEvents publishes one batch and returns how many were sent.
func (d *Dispatcher) ProcessPendingEvents(ctx context.Context) int {
	events, err := d.repo.GetPendingEvents(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("Failed to get pending events", zap.Error(err))
		return 0
	}

	if len(events) == 0 {
		return 0
	}

	d.logger.Debug("Processing pending events", zap.Int("count", len(events)))

	sent := 0
	for _, event := range events {
		if err := d.publishEvent(ctx, event); err != nil {
			d.logger.Error("Failed to publish event",
				zap.Int64("event_id", event.ID),
				zap.String("routing_key", event.RoutingKey),
				zap.Error(err),
			)

			// 标记为失败或增加重试次数
			if err := d.repo.MarkAsFailed(ctx, event.ID, d.maxRetries); err != nil {
				d.logger.Error("Failed to mark event as failed",
					zap.Int64("event_id", event.ID),
					zap.Error(err),
				)
			}
			continue
		}

		// 发布成功，标记为已发送
		if err := d.repo.MarkAsSent(ctx, event.ID); err != nil {
			d.logger.Error("Failed to mark event as sent",
				zap.Int64("event_id", event.ID),
				zap.Error(err),
			)
			continue
		}
		sent++
		d.logger.Debug("Event published successfully",
			zap.Int64("event_id", event.ID),
			zap.String("routing_key", event.RoutingKey),
		)
	}
	return sent
}

// publishEvent 发布单个事件到 MQ，payload 中的 trace_id 会传播到消息头
func (d *Dispatcher) publishEvent(ctx context.Context, event *Event) error {
	return publish(ctx, d.publisher, event)
}

func publish(ctx context.Context, p Publisher, event *Event) error {
	if !json.Valid(event.Payload) {
		return fmt.Errorf("event %d: invalid payload", event.ID)
	}
	ctx = trace.WithContext(ctx, traceIDOf(event.Payload))
	if err := p.PublishWithContext(ctx, event.RoutingKey, event.Payload); err != nil {
		return fmt.Errorf("failed to publish to MQ: %w", err)
	}
	return nil
}
