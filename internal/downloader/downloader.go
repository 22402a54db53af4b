package downloader

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/italolelis/ytaudio_archiver/internal/logctx"
	"github.com/italolelis/ytaudio_archiver/internal/transfer"
	"golang.org/x/sync/errgroup"
)

// Downloader sweeps one channel at a time through a bounded pool of workers
// running the item pipeline.
type Downloader struct {
	extractor   transfer.Extractor
	pipeline    *Pipeline
	retrier     *Retrier
	maxParallel int
	tracker     *Tracker
}

// NewDownloader creates a Downloader. tracker may be nil.
func NewDownloader(
	extractor transfer.Extractor,
	pipeline *Pipeline,
	retrier *Retrier,
	maxParallel int,
	tracker *Tracker,
) *Downloader {
	if maxParallel < 1 {
		maxParallel = 1
	}

	return &Downloader{
		extractor:   extractor,
		pipeline:    pipeline,
		retrier:     retrier,
		maxParallel: maxParallel,
		tracker:     tracker,
	}
}

// DownloadChannel lists the channel's items and processes each of them once.
// A channel that cannot be listed, or lists nothing, yields zero counters.
//
// Cancelling ctx stops handing out items; items already picked up by a worker
// run to completion and are recorded.
func (d *Downloader) DownloadChannel(ctx context.Context, channel transfer.ChannelRef) Counters {
	logger := logctx.LoggerFromContext(ctx).With("channel", channel)
	ctx = logctx.WithLogger(ctx, logger)

	items, err := d.listItems(ctx, channel)
	if err != nil {
		logger.Error("failed to list channel items", "err", err)

		return Counters{}
	}

	if len(items) == 0 {
		logger.Warn("no items found for channel")

		return Counters{}
	}

	logger.Info("found items for channel", "count", len(items), "max_parallel", d.maxParallel)

	var counters SharedCounters

	d.tracker.channelStarted(channel, len(items), &counters)

	queue := make(chan transfer.ItemRef)
	workCtx := context.WithoutCancel(ctx)

	var wg errgroup.Group

	for range min(d.maxParallel, len(items)) {
		wg.Go(func() error {
			for item := range queue {
				counters.Record(d.processItem(workCtx, channel, item))
			}

			return nil
		})
	}

	dispatched := 0

dispatch:
	for _, item := range items {
		// Checked first so a cancelled run never races a ready worker.
		if ctx.Err() != nil {
			logger.Warn("run cancelled, not dispatching remaining items", "pending", len(items)-dispatched)

			break
		}

		select {
		case <-ctx.Done():
			logger.Warn("run cancelled, not dispatching remaining items", "pending", len(items)-dispatched)

			break dispatch
		case queue <- item:
			dispatched++
		}
	}

	close(queue)

	_ = wg.Wait()

	result := counters.Snapshot()

	logger.InfoContext(ctx, "channel download completed",
		"downloaded", result.Downloaded,
		"uploaded", result.Uploaded,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)

	return result
}

func (d *Downloader) listItems(ctx context.Context, channel transfer.ChannelRef) ([]transfer.ItemRef, error) {
	var items []transfer.ItemRef

	err := d.retrier.Do(ctx, "list_items", func(ctx context.Context) error {
		found, err := d.extractor.ListItems(ctx, channel)
		if err != nil {
			return err
		}

		items = found

		return nil
	})

	return items, err
}

// processItem keeps a fault in one item from taking down its siblings.
func (d *Downloader) processItem(ctx context.Context, channel transfer.ChannelRef, item transfer.ItemRef) (outcome transfer.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logctx.LoggerFromContext(ctx).Error("unexpected fault processing item",
				"item", item, "panic", r, "stack", string(debug.Stack()))

			outcome = transfer.Outcome{
				Channel: channel,
				Item:    item,
				Status:  transfer.StatusDownloadFailed,
				Error:   fmt.Sprintf("panic: %v", r),
			}
		}
	}()

	return d.pipeline.Process(ctx, channel, item)
}
