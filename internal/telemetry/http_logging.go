package telemetry

import (
	"net/http"
	"time"

	"github.com/italolelis/ytaudio_archiver/internal/logctx"
)

// statusRecorder captures the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter

	status      int
	wroteHeader bool
	written     int64
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

// WriteHeader captures the status code and delegates to the underlying ResponseWriter.
func (rw *statusRecorder) WriteHeader(code int) {
	if rw.wroteHeader {
		return // Prevent multiple WriteHeader calls
	}

	rw.status = code
	rw.wroteHeader = true

	rw.ResponseWriter.WriteHeader(code)
}

// Write captures implicit 200 OK if WriteHeader was not called.
func (rw *statusRecorder) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}

	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)

	return n, err
}

// HTTPLogging logs each request at a level chosen by its status code.
func HTTPLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logctx.LoggerFromContext(ctx)
		start := time.Now()

		wrapped := newStatusRecorder(w)

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		status := wrapped.status

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", duration.Milliseconds(),
		}

		switch {
		case status >= 500:
			logger.ErrorContext(ctx, "http request completed", attrs...)
		case status >= 400:
			logger.WarnContext(ctx, "http request completed", attrs...)
		default:
			logger.InfoContext(ctx, "http request completed", attrs...)
		}
	})
}
