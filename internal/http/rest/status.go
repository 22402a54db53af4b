package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/ytaudio_archiver/internal/downloader"
	"github.com/italolelis/ytaudio_archiver/internal/logctx"
	"github.com/italolelis/ytaudio_archiver/internal/storage"
	"github.com/italolelis/ytaudio_archiver/internal/transfer"
)

const (
	defaultFailureLimit = 20
	maxFailureLimit     = 500
)

// RunSnapshotter reports the progress of the current run.
type RunSnapshotter interface {
	Snapshot() downloader.RunStatus
}

// OutcomesResponse is the body served by GET /outcomes.
type OutcomesResponse struct {
	RunID          string                `json:"run_id,omitempty"`
	Counts         []storage.StatusCount `json:"counts"`
	RecentFailures []transfer.Outcome    `json:"recent_failures"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// StatusHandler serves read-only views of the archiver's progress.
type StatusHandler struct {
	tracker  RunSnapshotter
	outcomes storage.OutcomeReadRepository
}

// NewStatusHandler creates a StatusHandler. outcomes may be nil when no
// database is configured, in which case /outcomes answers 404.
func NewStatusHandler(tracker RunSnapshotter, outcomes storage.OutcomeReadRepository) *StatusHandler {
	return &StatusHandler{tracker: tracker, outcomes: outcomes}
}

func (h *StatusHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/status", h.HandleStatus)
	r.Get("/outcomes", h.HandleOutcomes)

	return r
}

// HandleStatus returns the live view of the current or last run.
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, h.tracker.Snapshot())
}

// HandleOutcomes returns per-status counts and the most recent failures.
// The optional run_id query narrows the counts to a single run.
func (h *StatusHandler) HandleOutcomes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	if h.outcomes == nil {
		writeJSON(ctx, w, http.StatusNotFound, errorResponse{Error: "outcome database not configured"})

		return
	}

	limit := defaultFailureLimit

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})

			return
		}

		limit = min(n, maxFailureLimit)
	}

	runID := r.URL.Query().Get("run_id")

	counts, err := h.outcomes.CountByStatus(ctx, runID)
	if err != nil {
		logger.Error("failed to count outcomes", "err", err)
		writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "failed to count outcomes"})

		return
	}

	failures, err := h.outcomes.RecentFailures(ctx, limit)
	if err != nil {
		logger.Error("failed to list recent failures", "err", err)
		writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "failed to list recent failures"})

		return
	}

	if counts == nil {
		counts = []storage.StatusCount{}
	}

	if failures == nil {
		failures = []transfer.Outcome{}
	}

	writeJSON(ctx, w, http.StatusOK, OutcomesResponse{RunID: runID, Counts: counts, RecentFailures: failures})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to encode response", "err", err)
	}
}
