package logging

import (
	"context"
	"log/slog"

	"voicepipe/internal/services"
)

// WithContext derives a logger carrying the run, stage, and request
// identifiers present in ctx. The base logger is returned unchanged when ctx
// carries nothing.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if ctx == nil {
		return logger
	}
	attrs := make([]Attr, 0, 3)
	if runID, ok := services.RunIDFromContext(ctx); ok {
		attrs = append(attrs, String(FieldRunID, runID))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		attrs = append(attrs, String(FieldStage, stage))
	}
	if requestID, ok := services.RequestIDFromContext(ctx); ok {
		attrs = append(attrs, String(FieldRequestID, requestID))
	}
	if len(attrs) == 0 {
		return logger
	}
	return logger.With(Args(attrs...)...)
}

// WithStage annotates ctx with the stage name for downstream loggers.
func WithStage(ctx context.Context, stage string) context.Context {
	return services.WithStage(ctx, stage)
}

// WithRunID annotates ctx with the run identifier for downstream loggers.
func WithRunID(ctx context.Context, id string) context.Context {
	return services.WithRunID(ctx, id)
}
