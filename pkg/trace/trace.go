package trace

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey struct{}

// HeaderName is the AMQP/HTTP header carrying the trace id.
const HeaderName = "X-Trace-ID"

// GenerateTraceID 生成一个新的 trace ID
func GenerateTraceID() string {
	return uuid.NewString()
}

// FromContext 从 context 中获取 trace_id
func FromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(ctxKey{}).(string); ok {
		return traceID
	}
	return ""
}

// WithContext 将 trace_id 添加到 context 中
func WithContext(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, traceID)
}

// Ensure returns ctx carrying a trace id, generating one when absent.
func Ensure(ctx context.Context, traceID string) (context.Context, string) {
	if traceID == "" {
		traceID = FromContext(ctx)
	}
	if traceID == "" {
		traceID = GenerateTraceID()
	}
	return WithContext(ctx, traceID), traceID
}
