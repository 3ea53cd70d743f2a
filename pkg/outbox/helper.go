package outbox

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
)

// InsertEventInTx 在事务中插入事件到 outbox（辅助函数）
func InsertEventInTx(
	ctx context.Context,
	tx pgx.Tx,
	repo *Repository,
	aggregateType string,
	aggregateID *int64,
	routingKey string,
	payload any,
) error {
	event, err := NewEvent(aggregateType, aggregateID, routingKey, payload)
	if err != nil {
		return err
	}
	return repo.InsertEvent(ctx, tx, event)
}

// NewEvent builds a pending event with payload encoded as JSON.
func NewEvent(aggregateType string, aggregateID *int64, routingKey string, payload any) (*Event, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		RoutingKey:    routingKey,
		Payload:       payloadJSON,
		Status:        StatusPending,
	}, nil
}

// traceIDOf 从 payload 中提取 trace_id（如果存在）
func traceIDOf(payload json.RawMessage) string {
	var p struct {
		TraceID string `json:"trace_id"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return ""
	}
	return p.TraceID
}
