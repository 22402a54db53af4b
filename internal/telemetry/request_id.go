package telemetry

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/italolelis/ytaudio_archiver/internal/logctx"
)

type ctxKey string

const (
	requestIDKey    ctxKey = "request_id"
	RequestIDHeader        = "X-Request-ID"
)

// RequestID assigns every request an id, reusing an upstream X-Request-ID when
// present, echoes it in the response and scopes the request logger with it.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, requestID)

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		ctx = logctx.WithLogger(ctx, logctx.LoggerFromContext(ctx).With("request_id", requestID))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request_id from context.
// Returns empty string if not found.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}

	return ""
}
