package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	return entry
}

func TestContextHandler_NoCorrelationFields(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil)))
	logger.InfoContext(context.Background(), "test message", "key", "value")

	entry := decodeLine(t, &buf)

	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "span_id")
	assert.NotContains(t, entry, "run_id")
	assert.NotContains(t, entry, "worker_id")
	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "value", entry["key"])
}

func TestContextHandler_RunAndWorker(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := WithWorkerID(WithRunID(context.Background(), "run-1"), "host-42")
	logger.InfoContext(ctx, "channel done")

	entry := decodeLine(t, &buf)

	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, "host-42", entry["worker_id"])
}

func TestContextHandler_ValidSpan(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)

	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	logger.InfoContext(ctx, "with span")

	entry := decodeLine(t, &buf)

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
}

func TestContextHandler_Enabled(t *testing.T) {
	h := NewContextHandler(slog.NewJSONHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx := context.Background()

	assert.False(t, h.Enabled(ctx, slog.LevelInfo))
	assert.True(t, h.Enabled(ctx, slog.LevelWarn))
	assert.True(t, h.Enabled(ctx, slog.LevelError))
}

func TestContextHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer

	h := NewContextHandler(slog.NewJSONHandler(&buf, nil))

	withAttrs := h.WithAttrs([]slog.Attr{slog.String("component", "pipeline")})
	assert.IsType(t, &ContextHandler{}, withAttrs)

	withGroup := withAttrs.WithGroup("item")
	assert.IsType(t, &ContextHandler{}, withGroup)

	slog.New(withGroup).InfoContext(context.Background(), "grouped", "status", "ok")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "pipeline", entry["component"])
	assert.Contains(t, entry, "item")
}

func TestNewContextHandler_NilPanics(t *testing.T) {
	assert.Panics(t, func() { NewContextHandler(nil) })
}

func TestLoggerFromContext_Default(t *testing.T) {
	assert.Equal(t, slog.Default(), LoggerFromContext(context.Background()))

	custom := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	assert.Equal(t, custom, LoggerFromContext(WithLogger(context.Background(), custom)))
}
