package arraystore

import (
	"context"
	"log/slog"
	"os"

	"github.com/hupe1980/arraystore/query"
)

// Logger wraps slog.Logger with arraystore-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithArray adds the array URI to the logger.
func (l *Logger) WithArray(uri string) *Logger {
	return &Logger{
		Logger: l.Logger.With("array", uri),
	}
}

// LogSubmit logs one Submit of a query.
func (l *Logger) LogSubmit(ctx context.Context, q *query.Query, err error) {
	if err != nil {
		l.ErrorContext(ctx, "submit failed",
			"type", q.Type().String(),
			"layout", q.Layout().String(),
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "submit completed",
		"type", q.Type().String(),
		"layout", q.Layout().String(),
		"status", q.Status().String(),
	)
}

// LogFinalize logs the finalization of a query.
func (l *Logger) LogFinalize(ctx context.Context, q *query.Query, err error) {
	if err != nil {
		l.ErrorContext(ctx, "finalize failed",
			"type", q.Type().String(),
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "finalize completed",
		"type", q.Type().String(),
	)
}

// LogServe logs a query executed on behalf of a remote client.
func (l *Logger) LogServe(ctx context.Context, codec string, requestBytes, responseBytes int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "serve failed",
			"codec", codec,
			"request_bytes", requestBytes,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "serve completed",
		"codec", codec,
		"request_bytes", requestBytes,
		"response_bytes", responseBytes,
	)
}

// LogOpen logs opening an array.
func (l *Logger) LogOpen(ctx context.Context, fragments int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed",
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "array opened",
		"fragments", fragments,
	)
}
