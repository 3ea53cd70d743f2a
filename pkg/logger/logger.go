package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"jobmail/pkg/trace"
)

var Log *zap.Logger

// NewLogger builds a production logger at level ("debug", "info", ...).
// An unknown level falls back to info.
func NewLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	Log = l
	return l
}

// WithTrace 从 context 中提取 trace_id 并添加到 logger
func WithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	traceID := trace.FromContext(ctx)
	if traceID != "" {
		return logger.With(zap.String("trace_id", traceID))
	}
	return logger
}
