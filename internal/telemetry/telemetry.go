package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry holds all telemetry instruments and providers.
type Telemetry struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	meter          metric.Meter
	exporter       *prometheus.Exporter

	// RED Metrics (Rate, Errors, Duration)
	httpRequestsTotal    metric.Int64Counter
	httpRequestDuration  metric.Float64Histogram
	httpRequestsInFlight metric.Int64UpDownCounter

	// Pipeline Metrics
	itemsTotal          metric.Int64Counter
	itemsActive         metric.Int64UpDownCounter
	itemDuration        metric.Float64Histogram
	uploadsTotal        metric.Int64Counter
	refreshesTotal      metric.Int64Counter
	backendOpsTotal     metric.Int64Counter
	backendOpDuration   metric.Float64Histogram
	backendErrors       metric.Int64Counter
	ledgerAppendsTotal  metric.Int64Counter
	dbOperationsTotal   metric.Int64Counter
	dbOperationDuration metric.Float64Histogram
}

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	// OTLPEndpoint, when set, additionally pushes metrics over OTLP/gRPC.
	OTLPEndpoint string
}

// New creates a new telemetry instance.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{}, nil
	}

	// Create Prometheus exporter
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	opts := []sdkmetric.Option{sdkmetric.WithReader(exporter)}

	if cfg.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
		}

		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(otlpExporter)))
	}

	meterProvider := sdkmetric.NewMeterProvider(opts...)
	tracerProvider := sdktrace.NewTracerProvider()

	otel.SetMeterProvider(meterProvider)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	t := &Telemetry{
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		tracer:         tracerProvider.Tracer(cfg.ServiceName, trace.WithInstrumentationVersion(cfg.ServiceVersion)),
		meter:          meterProvider.Meter(cfg.ServiceName),
		exporter:       exporter,
	}

	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	// Go runtime metrics (memory, goroutines, GC) replace hand-rolled gauges.
	if err := runtime.Start(runtime.WithMeterProvider(meterProvider)); err != nil {
		return nil, fmt.Errorf("failed to start runtime instrumentation: %w", err)
	}

	return t, nil
}

// Tracer returns the OpenTelemetry tracer.
func (t *Telemetry) Tracer() trace.Tracer {
	if t == nil || t.tracer == nil {
		return otel.Tracer("noop")
	}

	return t.tracer
}

// RecordHTTPRequest records HTTP request metrics.
func (t *Telemetry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if t == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.String("status", status),
	)

	if t.httpRequestsTotal != nil {
		t.httpRequestsTotal.Add(context.Background(), 1, attrs)
	}

	if t.httpRequestDuration != nil {
		t.httpRequestDuration.Record(context.Background(), duration.Seconds(), attrs)
	}
}

// IncrementHTTPInFlight increments in-flight HTTP requests.
func (t *Telemetry) IncrementHTTPInFlight() {
	if t != nil && t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(context.Background(), 1)
	}
}

// DecrementHTTPInFlight decrements in-flight HTTP requests.
func (t *Telemetry) DecrementHTTPInFlight() {
	if t != nil && t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(context.Background(), -1)
	}
}

// RecordItem records the terminal status of one item and how long it took.
func (t *Telemetry) RecordItem(ctx context.Context, status string, duration time.Duration) {
	if t == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("status", status))

	if t.itemsTotal != nil {
		t.itemsTotal.Add(ctx, 1, attrs)
	}

	if t.itemDuration != nil {
		t.itemDuration.Record(ctx, duration.Seconds(), attrs)
	}
}

// IncrementActiveItems increments the number of items being processed.
func (t *Telemetry) IncrementActiveItems() {
	if t != nil && t.itemsActive != nil {
		t.itemsActive.Add(context.Background(), 1)
	}
}

// DecrementActiveItems decrements the number of items being processed.
func (t *Telemetry) DecrementActiveItems() {
	if t != nil && t.itemsActive != nil {
		t.itemsActive.Add(context.Background(), -1)
	}
}

// RecordUpload records an upload attempt result ("success", "error", "skipped").
func (t *Telemetry) RecordUpload(ctx context.Context, status string) {
	if t != nil && t.uploadsTotal != nil {
		t.uploadsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
}

// RecordCredentialRefresh records a cookie jar refresh attempt.
func (t *Telemetry) RecordCredentialRefresh(ctx context.Context, status string) {
	if t != nil && t.refreshesTotal != nil {
		t.refreshesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
}

// RecordBackendOperation records extractor and object store call metrics.
func (t *Telemetry) RecordBackendOperation(ctx context.Context, backend, operation, status string, duration time.Duration) {
	if t == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("operation", operation),
		attribute.String("status", status),
	)

	if t.backendOpsTotal != nil {
		t.backendOpsTotal.Add(ctx, 1, attrs)
	}

	if t.backendOpDuration != nil {
		t.backendOpDuration.Record(ctx, duration.Seconds(), attrs)
	}

	if status == "error" && t.backendErrors != nil {
		t.backendErrors.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("backend", backend),
				attribute.String("operation", operation),
			),
		)
	}
}

// RecordLedgerAppend records a ledger write.
func (t *Telemetry) RecordLedgerAppend(ctx context.Context, status string) {
	if t != nil && t.ledgerAppendsTotal != nil {
		t.ledgerAppendsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
}

// RecordDBOperation records database operation metrics.
func (t *Telemetry) RecordDBOperation(operation, status string, duration time.Duration) {
	if t == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)

	if t.dbOperationsTotal != nil {
		t.dbOperationsTotal.Add(context.Background(), 1, attrs)
	}

	if t.dbOperationDuration != nil {
		t.dbOperationDuration.Record(context.Background(), duration.Seconds(), attrs)
	}
}

// Handler returns the HTTP handler for metrics endpoint.
func (t *Telemetry) Handler() http.Handler {
	if t == nil || t.exporter == nil {
		return http.NotFoundHandler()
	}

	return promhttp.Handler()
}

// Shutdown flushes and stops the metric and trace providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}

	var errs []error

	if t.meterProvider != nil {
		errs = append(errs, t.meterProvider.Shutdown(ctx))
	}

	if t.tracerProvider != nil {
		errs = append(errs, t.tracerProvider.Shutdown(ctx))
	}

	return errors.Join(errs...)
}

// initializeMetrics creates all metric instruments.
func (t *Telemetry) initializeMetrics() error {
	if err := t.initializeREDMetrics(); err != nil {
		return err
	}

	if err := t.initializePipelineMetrics(); err != nil {
		return err
	}

	return t.initializeStorageMetrics()
}

func (t *Telemetry) initializeREDMetrics() error {
	var err error

	t.httpRequestsTotal, err = t.meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	t.httpRequestDuration, err = t.meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_request_duration histogram: %w", err)
	}

	t.httpRequestsInFlight, err = t.meter.Int64UpDownCounter(
		"http_requests_in_flight",
		metric.WithDescription("Number of HTTP requests currently being processed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_in_flight counter: %w", err)
	}

	return nil
}

func (t *Telemetry) initializePipelineMetrics() error {
	var err error

	t.itemsTotal, err = t.meter.Int64Counter(
		"items_total",
		metric.WithDescription("Total number of processed items by terminal status"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create items_total counter: %w", err)
	}

	t.itemsActive, err = t.meter.Int64UpDownCounter(
		"items_active",
		metric.WithDescription("Number of items currently being processed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create items_active counter: %w", err)
	}

	t.itemDuration, err = t.meter.Float64Histogram(
		"item_duration_seconds",
		metric.WithDescription("Item processing duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create item_duration histogram: %w", err)
	}

	t.uploadsTotal, err = t.meter.Int64Counter(
		"uploads_total",
		metric.WithDescription("Total number of upload attempts"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create uploads_total counter: %w", err)
	}

	t.refreshesTotal, err = t.meter.Int64Counter(
		"credential_refreshes_total",
		metric.WithDescription("Total number of cookie jar refreshes"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create credential_refreshes_total counter: %w", err)
	}

	t.backendOpsTotal, err = t.meter.Int64Counter(
		"backend_operations_total",
		metric.WithDescription("Total number of extractor and object store operations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create backend_operations_total counter: %w", err)
	}

	t.backendOpDuration, err = t.meter.Float64Histogram(
		"backend_operation_duration_seconds",
		metric.WithDescription("Extractor and object store operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create backend_operation_duration histogram: %w", err)
	}

	t.backendErrors, err = t.meter.Int64Counter(
		"backend_errors_total",
		metric.WithDescription("Total number of extractor and object store errors"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create backend_errors counter: %w", err)
	}

	t.ledgerAppendsTotal, err = t.meter.Int64Counter(
		"ledger_appends_total",
		metric.WithDescription("Total number of ledger rows written"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create ledger_appends_total counter: %w", err)
	}

	return nil
}

func (t *Telemetry) initializeStorageMetrics() error {
	var err error

	t.dbOperationsTotal, err = t.meter.Int64Counter(
		"db_operations_total",
		metric.WithDescription("Total number of database operations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create db_operations_total counter: %w", err)
	}

	t.dbOperationDuration, err = t.meter.Float64Histogram(
		"db_operation_duration_seconds",
		metric.WithDescription("Database operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create db_operation_duration histogram: %w", err)
	}

	return nil
}
