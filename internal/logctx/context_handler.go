package logctx

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// ContextHandler is an slog.Handler wrapper that adds correlation fields found
// in the record's context: trace_id and span_id of the active span, and the
// run_id/worker_id set with WithRunID and WithWorkerID.
type ContextHandler struct {
	inner slog.Handler
}

// NewContextHandler wraps h. Panics if h is nil.
func NewContextHandler(h slog.Handler) *ContextHandler {
	if h == nil {
		panic("logctx: NewContextHandler called with nil handler")
	}

	return &ContextHandler{inner: h}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx == nil {
		return h.inner.Handle(ctx, r)
	}

	if spanCtx := trace.SpanFromContext(ctx).SpanContext(); spanCtx.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}

	if id := RunID(ctx); id != "" {
		r.AddAttrs(slog.String("run_id", id))
	}

	if id := WorkerID(ctx); id != "" {
		r.AddAttrs(slog.String("worker_id", id))
	}

	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name)}
}
