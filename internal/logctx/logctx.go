package logctx

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	loggerKey   contextKey = "logger"
	runIDKey    contextKey = "run_id"
	workerIDKey contextKey = "worker_id"
)

// WithLogger returns a new context with the provided slog.Logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext retrieves the slog.Logger from the context, or returns slog.Default() if not found.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
		return l
	}

	return slog.Default()
}

// WithRunID tags the context with the id of the current archive run.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunID returns the run id stored in ctx, or "".
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey).(string)

	return id
}

// WithWorkerID tags the context with the identity of this process in a fleet.
func WithWorkerID(ctx context.Context, workerID string) context.Context {
	return context.WithValue(ctx, workerIDKey, workerID)
}

// WorkerID returns the worker id stored in ctx, or "".
func WorkerID(ctx context.Context) string {
	id, _ := ctx.Value(workerIDKey).(string)

	return id
}
