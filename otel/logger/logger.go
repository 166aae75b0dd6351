package logger

import (
	"context"

	ctxutil "github.com/octabyte/mmm-dashboard/utils/context"
	"github.com/octabyte/mmm-dashboard/utils/logger"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// InfoCtx logs an info message with the trace context of ctx attached.
func InfoCtx(ctx context.Context, msg string, fields ...zap.Field) {
	logger.LogInfo(msg, append(fields, TraceFields(ctx)...)...)
}

// WarnCtx logs a warning with the trace context of ctx attached.
func WarnCtx(ctx context.Context, msg string, fields ...zap.Field) {
	logger.LogWarn(msg, append(fields, TraceFields(ctx)...)...)
}

// ErrorCtx logs err with the trace context of ctx attached.
func ErrorCtx(ctx context.Context, msg string, err error, fields ...zap.Field) {
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	logger.LogError(msg, append(fields, TraceFields(ctx)...)...)
}

// DebugCtx logs a debug message with the trace context of ctx attached.
func DebugCtx(ctx context.Context, msg string, fields ...zap.Field) {
	logger.LogDebug(msg, append(fields, TraceFields(ctx)...)...)
}

// TraceFields returns the request_id field when ctx carries one, plus
// trace_id/span_id when a span is active.
func TraceFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if id := ctxutil.GetRequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	spanContext := trace.SpanContextFromContext(ctx)
	if !spanContext.IsValid() {
		return fields
	}
	return append(fields,
		zap.String("trace_id", spanContext.TraceID().String()),
		zap.String("span_id", spanContext.SpanID().String()),
	)
}
