package common

import (
	"context"
	"log/slog"
)

// RequestLogger is the logging seam the orchestrator and its middleware
// write through; concrete implementations range from a no-op (tests) to a
// slog-backed adapter (production).
type RequestLogger interface {
	Log(level, message string, metadata map[string]interface{})
}

// Context keys for passing logger through context
type contextKey int

const (
	loggerKey contextKey = iota
)

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger RequestLogger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext extracts the logger from context, or returns a no-op logger if not found
func LoggerFromContext(ctx context.Context) RequestLogger {
	if logger, ok := ctx.Value(loggerKey).(RequestLogger); ok {
		return logger
	}
	return &noOpLogger{}
}

// noOpLogger is a logger that does nothing (fallback when no logger in context)
type noOpLogger struct{}

func (l *noOpLogger) Log(level, message string, metadata map[string]interface{}) {}

// SlogLogger adapts RequestLogger onto the standard structured logger, the
// production wiring used by cmd/shuttle-router.
type SlogLogger struct {
	base *slog.Logger
}

func NewSlogLogger(base *slog.Logger) *SlogLogger {
	return &SlogLogger{base: base}
}

func (l *SlogLogger) Log(level, message string, metadata map[string]interface{}) {
	args := make([]any, 0, len(metadata)*2)
	for k, v := range metadata {
		args = append(args, k, v)
	}
	switch level {
	case "ERROR":
		l.base.Error(message, args...)
	case "WARN":
		l.base.Warn(message, args...)
	case "DEBUG":
		l.base.Debug(message, args...)
	default:
		l.base.Info(message, args...)
	}
}
