package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/italolelis/ytaudio_archiver/internal/downloader"
	"github.com/italolelis/ytaudio_archiver/internal/storage"
	"github.com/italolelis/ytaudio_archiver/internal/telemetry"
	"github.com/italolelis/ytaudio_archiver/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTracker struct {
	status downloader.RunStatus
}

func (s stubTracker) Snapshot() downloader.RunStatus { return s.status }

type stubOutcomes struct {
	counts    []storage.StatusCount
	failures  []transfer.Outcome
	err       error
	lastRunID string
	lastLimit int
}

func (s *stubOutcomes) CountByStatus(_ context.Context, runID string) ([]storage.StatusCount, error) {
	s.lastRunID = runID

	return s.counts, s.err
}

func (s *stubOutcomes) RecentFailures(_ context.Context, limit int) ([]transfer.Outcome, error) {
	s.lastLimit = limit

	return s.failures, s.err
}

func serve(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	return rec
}

func TestHandleStatus(t *testing.T) {
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	tracker := stubTracker{status: downloader.RunStatus{
		RunID:          "run-1",
		StartedAt:      started,
		CurrentChannel: "https://www.youtube.com/@show",
		Totals:         downloader.Counters{Downloaded: 3, Uploaded: 2, Skipped: 1},
	}}

	router := NewRouter(NewStatusHandler(tracker, nil), nil)
	rec := serve(t, router, "/status")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(telemetry.RequestIDHeader))

	var got downloader.RunStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, transfer.ChannelRef("https://www.youtube.com/@show"), got.CurrentChannel)
	assert.Equal(t, 3, got.Totals.Downloaded)
	assert.True(t, started.Equal(got.StartedAt))
}

func TestHandleOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		repo       *stubOutcomes
		wantStatus int
		wantLimit  int
		wantRunID  string
	}{
		{
			name:   "default limit",
			target: "/outcomes",
			repo: &stubOutcomes{
				counts:   []storage.StatusCount{{Status: transfer.StatusDownloadSuccess, Count: 4}},
				failures: []transfer.Outcome{{Item: "x", Status: transfer.StatusDownloadFailed}},
			},
			wantStatus: http.StatusOK,
			wantLimit:  defaultFailureLimit,
		},
		{
			name:       "run and limit",
			target:     "/outcomes?run_id=run-9&limit=5",
			repo:       &stubOutcomes{},
			wantStatus: http.StatusOK,
			wantLimit:  5,
			wantRunID:  "run-9",
		},
		{
			name:       "limit is capped",
			target:     "/outcomes?limit=100000",
			repo:       &stubOutcomes{},
			wantStatus: http.StatusOK,
			wantLimit:  maxFailureLimit,
		},
		{
			name:       "invalid limit",
			target:     "/outcomes?limit=abc",
			repo:       &stubOutcomes{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "repository error",
			target:     "/outcomes",
			repo:       &stubOutcomes{err: errors.New("disk I/O error")},
			wantStatus: http.StatusInternalServerError,
			wantLimit:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(NewStatusHandler(stubTracker{}, tt.repo), nil)
			rec := serve(t, router, tt.target)

			require.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus != http.StatusOK {
				return
			}

			assert.Equal(t, tt.wantLimit, tt.repo.lastLimit)
			assert.Equal(t, tt.wantRunID, tt.repo.lastRunID)

			var got OutcomesResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Len(t, got.Counts, len(tt.repo.counts))
			assert.Len(t, got.RecentFailures, len(tt.repo.failures))
			assert.NotNil(t, got.Counts)
		})
	}
}

func TestHandleOutcomes_NoDatabase(t *testing.T) {
	router := NewRouter(NewStatusHandler(stubTracker{}, nil), nil)

	rec := serve(t, router, "/outcomes")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	router := NewRouter(NewStatusHandler(stubTracker{}, nil), nil)

	rec := serve(t, router, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	// Without telemetry there is no exporter to serve.
	rec = serve(t, router, "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	router := NewRouter(NewStatusHandler(stubTracker{}, nil), nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(telemetry.RequestIDHeader, "abc-123")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(telemetry.RequestIDHeader))
}
