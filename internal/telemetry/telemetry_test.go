package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilTelemetryIsSafe(t *testing.T) {
	var tel *Telemetry

	ctx := context.Background()
	boom := errors.New("boom")

	assert.NotPanics(t, func() {
		tel.RecordItem(ctx, "DOWNLOAD_SUCCESS", time.Second)
		tel.RecordUpload(ctx, "success")
		tel.RecordCredentialRefresh(ctx, "error")
		tel.RecordLedgerAppend(ctx, "success")
		tel.RecordDBOperation("record_outcome", "success", time.Millisecond)
		tel.RecordHTTPRequest(http.MethodGet, "/status", "2xx", time.Millisecond)
		tel.IncrementActiveItems()
		tel.DecrementActiveItems()
	})

	assert.ErrorIs(t, tel.InstrumentDBOperation(ctx, "op", func(context.Context) error { return boom }), boom)
	assert.ErrorIs(t, tel.InstrumentBackendOperation(ctx, "ytdlp", "resolve", func(context.Context) error { return boom }), boom)
	assert.Equal(t, "ALREADY_EXISTS", tel.InstrumentItem(ctx, func(context.Context) string { return "ALREADY_EXISTS" }))
	assert.NotNil(t, tel.Tracer())
	assert.NoError(t, tel.Shutdown(ctx))
}

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)

	called := false
	require.NoError(t, tel.InstrumentOperation(context.Background(), "noop", "test", func(context.Context) error {
		called = true

		return nil
	}))
	assert.True(t, called)
}

func TestNew_EnabledExposesPipelineMetrics(t *testing.T) {
	ctx := context.Background()

	tel, err := New(ctx, Config{Enabled: true, ServiceName: "ytaudio_archiver_test", ServiceVersion: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	status := tel.InstrumentItem(ctx, func(context.Context) string { return "DOWNLOAD_SUCCESS" })
	assert.Equal(t, "DOWNLOAD_SUCCESS", status)

	srv := httptest.NewServer(tel.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "items_total")
}

func TestStatusClass(t *testing.T) {
	tests := map[int]string{
		http.StatusOK:                 "2xx",
		http.StatusFound:              "3xx",
		http.StatusNotFound:           "4xx",
		http.StatusServiceUnavailable: "5xx",
		http.StatusContinue:           "1xx",
		42:                            "unknown",
	}

	for code, want := range tests {
		assert.Equal(t, want, statusClass(code), "code %d", code)
	}
}
