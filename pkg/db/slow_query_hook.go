package db

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"jobmail/pkg/metrics"
)

type queryStartKey struct{}

type queryStart struct {
	at  time.Time
	sql string
}

// SlowQueryTracer 慢查询监控 Tracer
type SlowQueryTracer struct {
	logger        *zap.Logger
	slowThreshold time.Duration // 慢查询阈值，默认 100ms
}

// NewSlowQueryTracer 创建慢查询 Tracer
func NewSlowQueryTracer(logger *zap.Logger, slowThreshold time.Duration) *SlowQueryTracer {
	if slowThreshold == 0 {
		slowThreshold = 100 * time.Millisecond
	}
	return &SlowQueryTracer{
		logger:        logger,
		slowThreshold: slowThreshold,
	}
}

// TraceQueryStart 查询开始时的钩子
func (t *SlowQueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, queryStart{at: time.Now(), sql: data.SQL})
}

// TraceQueryEnd 查询结束时的钩子
func (t *SlowQueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}

	duration := time.Since(start.at)
	op, table := classifySQL(start.sql)
	metrics.RecordDBQueryDuration(op, table, duration)

	if duration <= t.slowThreshold {
		return
	}

	// 截断 SQL 语句（避免日志过长）
	sql := strings.Join(strings.Fields(start.sql), " ")
	if len(sql) > 200 {
		sql = sql[:200] + "..."
	}

	t.logger.Warn("slow-query",
		zap.String("sql", sql),
		zap.Duration("took", duration),
		zap.String("command_tag", data.CommandTag.String()),
		zap.Error(data.Err),
	)
}

// classifySQL returns the statement verb and the first table it touches.
func classifySQL(sql string) (op, table string) {
	fields := strings.Fields(strings.ToLower(sql))
	if len(fields) == 0 {
		return "unknown", "unknown"
	}
	op = fields[0]
	table = "unknown"
	for i, f := range fields[:len(fields)-1] {
		if f == "from" || f == "into" || f == "update" {
			table = strings.Trim(fields[i+1], "(),;")
			break
		}
	}
	return op, table
}
