package vramcache

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with vramcache-specific context.
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
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithRegistry adds a registry field to the logger.
func (l *Logger) WithRegistry(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("registry", name),
	}
}

// WithKey adds a key field to the logger.
func (l *Logger) WithKey(key string) *Logger {
	return &Logger{
		Logger: l.Logger.With("key", key),
	}
}

// LogAdmission logs a budget admission decision.
func (l *Logger) LogAdmission(ctx context.Context, requested int64, swept bool, err error) {
	if err != nil {
		l.WarnContext(ctx, "admission rejected",
			"requested", requested,
			"swept", swept,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "admission granted",
		"requested", requested,
		"swept", swept,
	)
}

// LogSweep logs an eviction sweep across registries.
func (l *Logger) LogSweep(ctx context.Context, freed int64, registries int) {
	l.InfoContext(ctx, "swept unpinned entries",
		"freed", freed,
		"registries", registries,
	)
}

// LogLoad logs the resolution of a cache miss.
func (l *Logger) LogLoad(ctx context.Context, registry, key string, bytes int64, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "load failed",
			"registry", registry,
			"key", key,
			"duration", duration,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "load completed",
		"registry", registry,
		"key", key,
		"bytes", bytes,
		"duration", duration,
	)
}

// LogOutOfBudget logs a request that did not fit the shared budget.
func (l *Logger) LogOutOfBudget(ctx context.Context, registry, key string, err error) {
	l.WarnContext(ctx, "out of device budget",
		"registry", registry,
		"key", key,
		"error", err,
	)
}

// LogBudget logs a budget change.
func (l *Logger) LogBudget(ctx context.Context, old, current int64) {
	l.InfoContext(ctx, "budget changed",
		"old", old,
		"new", current,
	)
}
