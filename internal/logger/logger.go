// Package logger provides structured logging on top of zap.
// It builds a JSON logger with service-level context and carries a
// trace ID through context.Context so request-scoped lines can be joined.
package logger

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

// Init creates and returns a structured logger for the given service.
// level is one of debug, info, warn, error; unknown values fall back to info.
// The logger is also installed as the zap global.
func Init(service, level string) *zap.Logger {
	return InitTo(service, level, "stdout")
}

// InitTo is Init writing to output (a zap sink path such as "stderr").
func InitTo(service, level, output string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{output}

	log, err := cfg.Build(zap.Fields(zap.String("service", service)))
	if err != nil {
		log = zap.NewNop()
	}
	zap.ReplaceGlobals(log)
	return log
}

// WithTraceID stores a trace ID in the context for downstream propagation.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID extracts the trace ID from context. Returns "" if not set.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// NewTraceID returns a fresh random trace ID.
func NewTraceID() string {
	return uuid.NewString()
}

// EnsureTraceID returns ctx unchanged when it already carries a trace ID,
// otherwise a child context with a new one.
func EnsureTraceID(ctx context.Context) context.Context {
	if TraceID(ctx) != "" {
		return ctx
	}
	return WithTraceID(ctx, NewTraceID())
}

// Fields returns zap fields including the trace ID from context.
// Usage: log.Info("msg", logger.Fields(ctx)...)
func Fields(ctx context.Context, extra ...zap.Field) []zap.Field {
	tid := TraceID(ctx)
	if tid == "" {
		return extra
	}
	return append([]zap.Field{zap.String("trace_id", tid)}, extra...)
}
