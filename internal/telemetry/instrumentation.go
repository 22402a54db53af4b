package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Span attributes stay bounded: operation, backend and status names only.
// Item URLs, titles and object keys go to logs, never to attributes.

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// InstrumentOperation wraps fn in a span named operationName.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operationName)

	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)

	status := "success"
	if err != nil {
		status = "error"

		span.SetAttributes(attribute.Bool("error", true))
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.String("status", status),
		attribute.Float64("duration_seconds", time.Since(start).Seconds()),
	)

	return err
}

// InstrumentDBOperation instruments database operations.
func (t *Telemetry) InstrumentDBOperation(ctx context.Context, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "db_"+operation, "database", fn)

	status := "success"
	if err != nil {
		status = "error"
	}

	t.RecordDBOperation(operation, status, time.Since(start))

	return err
}

// InstrumentBackendOperation instruments calls to the extractor or the object store.
func (t *Telemetry) InstrumentBackendOperation(ctx context.Context, backend, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, backend+"_"+operation, backend, fn)

	status := "success"
	if err != nil {
		status = "error"
	}

	t.RecordBackendOperation(ctx, backend, operation, status, time.Since(start))

	return err
}

// InstrumentItem wraps the processing of one item. fn returns the terminal
// status which is recorded as the metric label.
func (t *Telemetry) InstrumentItem(ctx context.Context, fn func(ctx context.Context) string) string {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()

	t.IncrementActiveItems()
	defer t.DecrementActiveItems()

	var status string

	_ = t.InstrumentOperation(ctx, "process_item", "pipeline", func(ctx context.Context) error {
		status = fn(ctx)

		return nil
	})

	t.RecordItem(ctx, status, time.Since(start))

	return status
}
