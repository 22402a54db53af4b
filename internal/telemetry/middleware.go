package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// HTTPMiddleware records RED metrics and a span for every request served by the
// status API.
type HTTPMiddleware struct {
	telemetry *Telemetry
}

// NewHTTPMiddleware creates a new HTTP middleware for telemetry.
func NewHTTPMiddleware(telemetry *Telemetry) *HTTPMiddleware {
	return &HTTPMiddleware{
		telemetry: telemetry,
	}
}

// Middleware returns the HTTP middleware function.
func (m *HTTPMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.telemetry == nil {
			next.ServeHTTP(w, r)

			return
		}

		start := time.Now()

		m.telemetry.IncrementHTTPInFlight()
		defer m.telemetry.DecrementHTTPInFlight()

		ctx, span := m.telemetry.Tracer().Start(r.Context(), "http_request")
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.user_agent", r.UserAgent()),
		)

		rec := newStatusRecorder(w)

		next.ServeHTTP(rec, r.WithContext(ctx))

		// The route pattern is only known after chi has matched the request.
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.status_code", rec.status),
			attribute.Int64("http.response_size", rec.written),
		)

		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(rec.status))
		}

		m.telemetry.RecordHTTPRequest(r.Method, route, statusClass(rec.status), time.Since(start))
	})
}

// statusClass buckets a status code as "2xx", "4xx" and so on.
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}

	return strconv.Itoa(code/100) + "xx"
}
