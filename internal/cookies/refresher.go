package cookies

import (
	"context"
	"errors"
	"math"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/ytaudio_archiver/internal/logctx"
	"github.com/italolelis/ytaudio_archiver/internal/telemetry"
	"golang.org/x/sync/singleflight"
)

// Refresher re-exports the cookie jar on demand. Concurrent callers share a
// single export. It satisfies transfer.CredentialSource.
type Refresher struct {
	exporter  Exporter
	path      string
	telemetry *telemetry.Telemetry
	group     singleflight.Group
}

// NewRefresher creates a Refresher for the jar at path.
func NewRefresher(exporter Exporter, path string, tel *telemetry.Telemetry) *Refresher {
	return &Refresher{exporter: exporter, path: path, telemetry: tel}
}

// Path returns the location of the cookie jar.
func (r *Refresher) Path() string {
	return r.path
}

// Refresh exports a fresh jar. Callers arriving while an export is running
// wait for it and get its result.
func (r *Refresher) Refresh(ctx context.Context) error {
	_, err, shared := r.group.Do(r.path, func() (any, error) {
		return nil, r.refresh(ctx)
	})

	if shared {
		logctx.LoggerFromContext(ctx).Debug("joined in-progress cookie refresh")
	}

	return err
}

func (r *Refresher) refresh(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)
	start := time.Now()

	logger.Info("refreshing cookies", "path", r.path)

	if err := r.exporter.Export(ctx, r.path); err != nil {
		r.telemetry.RecordCredentialRefresh(ctx, "error")

		return err
	}

	r.telemetry.RecordCredentialRefresh(ctx, "success")

	var size uint64
	if info, err := os.Stat(r.path); err == nil {
		size = uint64(info.Size())
	}

	logger.Info("cookies refreshed", "path", r.path, "size", humanize.Bytes(size), "elapsed", time.Since(start).String())

	return nil
}

// Age returns how old the jar is at now. A missing jar is infinitely old.
func (r *Refresher) Age(now time.Time) (time.Duration, error) {
	info, err := os.Stat(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return time.Duration(math.MaxInt64), nil
		}

		return 0, err
	}

	return now.Sub(info.ModTime()), nil
}
