package downloader

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/italolelis/ytaudio_archiver/internal/cleanup"
	"github.com/italolelis/ytaudio_archiver/internal/logctx"
	"github.com/italolelis/ytaudio_archiver/internal/notifier"
	"github.com/italolelis/ytaudio_archiver/internal/telemetry"
	"github.com/italolelis/ytaudio_archiver/internal/transfer"
)

const dirPerm = 0755

// StoreOpener connects to the object store. It is called once per run.
type StoreOpener func(ctx context.Context) (transfer.Store, error)

// Options configures a Coordinator.
type Options struct {
	WorkDir     string
	MaxParallel int
	WorkerID    string
}

// Coordinator runs the configured channels one after the other and owns the
// object store connection and the working directory for the run.
type Coordinator struct {
	extractor transfer.Extractor
	ledger    transfer.Ledger
	openStore StoreOpener
	retrier   *Retrier
	opts      Options
	tracker   *Tracker
	notifier  notifier.Notifier
	telemetry *telemetry.Telemetry
}

// NewCoordinator creates a Coordinator. openStore, tracker and notif may be
// nil; a nil openStore runs in download-only mode.
func NewCoordinator(
	extractor transfer.Extractor,
	ledger transfer.Ledger,
	openStore StoreOpener,
	retrier *Retrier,
	opts Options,
	tracker *Tracker,
	notif notifier.Notifier,
	tel *telemetry.Telemetry,
) *Coordinator {
	return &Coordinator{
		extractor: extractor,
		ledger:    ledger,
		openStore: openStore,
		retrier:   retrier,
		opts:      opts,
		tracker:   tracker,
		notifier:  notif,
		telemetry: tel,
	}
}

// Run processes every channel in order and returns the summed counters. One
// channel failing never stops the run; cancelling ctx stops it before the
// next channel starts.
func (c *Coordinator) Run(ctx context.Context, channels []transfer.ChannelRef) (Counters, error) {
	if len(channels) == 0 {
		return Counters{}, transfer.ErrNoChannels
	}

	runID := logctx.RunID(ctx)
	if runID == "" {
		runID = uuid.New().String()
		ctx = logctx.WithRunID(ctx, runID)
	}

	if c.opts.WorkerID != "" && logctx.WorkerID(ctx) == "" {
		ctx = logctx.WithWorkerID(ctx, c.opts.WorkerID)
	}

	logger := logctx.LoggerFromContext(ctx)
	started := time.Now()

	if err := os.MkdirAll(c.opts.WorkDir, dirPerm); err != nil {
		return Counters{}, fmt.Errorf("failed to create work directory: %w", err)
	}

	store := c.connectStore(ctx)
	if closer, ok := store.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logger.Error("failed to close object store", "err", err)
			}
		}()
	}

	pipeline := NewPipeline(c.extractor, store, c.ledger, c.retrier, c.telemetry)
	dl := NewDownloader(c.extractor, pipeline, c.retrier, c.opts.MaxParallel, c.tracker)

	c.tracker.runStarted(runID, logctx.WorkerID(ctx), started)

	logger.InfoContext(ctx, "starting run", "channels", len(channels), "work_dir", c.opts.WorkDir, "upload", store != nil)

	var totals Counters

	for i, channel := range channels {
		if ctx.Err() != nil {
			logger.Warn("run cancelled, skipping remaining channels", "remaining", len(channels)-i)

			break
		}

		logger.Info("processing channel", "channel", channel, "position", i+1, "of", len(channels))

		counters := c.downloadChannel(ctx, dl, channel)
		totals = totals.Add(counters)

		c.tracker.channelFinished(channel, counters)

		if err := cleanup.PruneEmptyDirs(ctx, c.opts.WorkDir); err != nil {
			logger.Warn("failed to prune empty directories", "err", err)
		}
	}

	c.tracker.runFinished(time.Now())
	c.report(ctx, totals, time.Since(started))

	return totals, nil
}

// connectStore returns nil when the store is disabled or unreachable.
func (c *Coordinator) connectStore(ctx context.Context) transfer.Store {
	logger := logctx.LoggerFromContext(ctx)

	if c.openStore == nil {
		logger.Warn("object storage disabled, files will only be downloaded locally")

		return nil
	}

	store, err := c.openStore(ctx)
	if err != nil {
		logger.Warn("object storage unavailable, files will only be downloaded locally", "err", err)

		return nil
	}

	return store
}

func (c *Coordinator) downloadChannel(ctx context.Context, dl *Downloader, channel transfer.ChannelRef) (counters Counters) {
	defer func() {
		if r := recover(); r != nil {
			logctx.LoggerFromContext(ctx).Error("channel aborted by unexpected fault",
				"channel", channel, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	return dl.DownloadChannel(ctx, channel)
}

func (c *Coordinator) report(ctx context.Context, totals Counters, elapsed time.Duration) {
	logger := logctx.LoggerFromContext(ctx)

	logger.InfoContext(ctx, "run completed",
		"downloaded", totals.Downloaded,
		"uploaded", totals.Uploaded,
		"skipped", totals.Skipped,
		"failed", totals.Failed,
		"elapsed", elapsed.Round(time.Second).String(),
	)

	if c.notifier == nil {
		return
	}

	msg := fmt.Sprintf("🏁 Run %s finished in %s: %d downloaded, %d uploaded (%d already stored), %d failed",
		logctx.RunID(ctx), elapsed.Round(time.Second), totals.Downloaded, totals.Uploaded, totals.Skipped, totals.Failed)

	if err := c.notifier.Notify(context.WithoutCancel(ctx), msg); err != nil {
		logger.Error("failed to send run summary", "err", err)
	}
}
