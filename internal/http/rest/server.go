package rest

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/italolelis/ytaudio_archiver/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ServerConfig holds the listener settings of the status server.
type ServerConfig struct {
	BindAddress  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewRouter mounts the status routes, the health probe and the metrics
// endpoint behind the shared middleware chain.
func NewRouter(h *StatusHandler, tel *telemetry.Telemetry) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", tel.Handler())
	r.Mount("/", h.Routes())

	return r
}

// NewServer builds the http.Server for the status API. Every request context
// derives from ctx so handlers inherit the process logger.
func NewServer(ctx context.Context, cfg ServerConfig, h *StatusHandler, tel *telemetry.Telemetry) *http.Server {
	return &http.Server{
		Addr:         cfg.BindAddress,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		Handler:      otelhttp.NewHandler(NewRouter(h, tel), "status-api"),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
