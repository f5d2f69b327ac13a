package logger

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"
)

func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// Log with Trace ID and Span ID attached when a span is active
func Info(ctx context.Context, logger *slog.Logger, msg string, args ...any) {
	logger.Info(msg, withTrace(ctx, args)...)
}

func Error(ctx context.Context, logger *slog.Logger, msg string, args ...any) {
	logger.Error(msg, withTrace(ctx, args)...)
}

func withTrace(ctx context.Context, args []any) []any {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		args = append(args,
			"trace_id", spanCtx.TraceID().String(),
			"span_id", spanCtx.SpanID().String(),
		)
	}
	return args
}
