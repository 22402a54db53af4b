package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/italolelis/ytaudio_archiver/internal/logctx"
	"github.com/italolelis/ytaudio_archiver/internal/telemetry"
	"github.com/italolelis/ytaudio_archiver/internal/transfer"
)

// unknownFilename is written to the ledger when an item never resolved.
const unknownFilename = "unknown"

const alreadyStoredMessage = "object already present in storage"

// Pipeline drives a single item from resolution to a terminal outcome.
type Pipeline struct {
	extractor transfer.Extractor
	store     transfer.Store
	ledger    transfer.Ledger
	retrier   *Retrier
	telemetry *telemetry.Telemetry
	now       func() time.Time
}

// NewPipeline creates a Pipeline. A nil store runs it in download-only mode:
// artifacts are fetched and kept on local disk.
func NewPipeline(
	extractor transfer.Extractor,
	store transfer.Store,
	ledger transfer.Ledger,
	retrier *Retrier,
	tel *telemetry.Telemetry,
) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		store:     store,
		ledger:    ledger,
		retrier:   retrier,
		telemetry: tel,
		now:       time.Now,
	}
}

// Process runs resolve, pre-check, fetch, post-check and upload for item and
// appends exactly one ledger row. It never panics and never returns an error:
// every failure is folded into the outcome.
func (p *Pipeline) Process(ctx context.Context, channel transfer.ChannelRef, item transfer.ItemRef) transfer.Outcome {
	var outcome transfer.Outcome

	p.telemetry.InstrumentItem(ctx, func(ctx context.Context) string {
		outcome = p.process(ctx, channel, item)

		return string(outcome.Status)
	})

	return outcome
}

func (p *Pipeline) process(ctx context.Context, channel transfer.ChannelRef, item transfer.ItemRef) (outcome transfer.Outcome) {
	logger := logctx.LoggerFromContext(ctx).With("item", item)
	ctx = logctx.WithLogger(ctx, logger)

	start := p.now()
	timed := true

	outcome = transfer.Outcome{
		Channel:  channel,
		Item:     item,
		Filename: unknownFilename,
		RunID:    logctx.RunID(ctx),
		WorkerID: logctx.WorkerID(ctx),
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while processing item", "panic", r, "stack", string(debug.Stack()))

			outcome.Status = transfer.StatusDownloadFailed
			outcome.Error = fmt.Sprintf("panic: %v", r)
			outcome.Uploaded = false
			timed = true
		}

		outcome.Timestamp = p.now()
		if timed {
			outcome.Elapsed = outcome.Timestamp.Sub(start)
		}

		p.logOutcome(ctx, outcome)

		if err := p.ledger.Append(ctx, outcome); err != nil {
			logger.Error("failed to append outcome to ledger", "status", outcome.Status, "err", err)
		}
	}()

	var media *transfer.Media

	err := p.retrier.Do(ctx, "resolve", func(ctx context.Context) error {
		m, err := p.extractor.Resolve(ctx, item)
		if err != nil {
			return err
		}

		media = m

		return nil
	})
	if err != nil {
		return failed(outcome, err)
	}

	outcome.Filename = media.LocalPath
	outcome.Key = media.Key
	logger = logger.With("key", media.Key)
	ctx = logctx.WithLogger(ctx, logger)

	if p.store != nil && p.exists(ctx, media.Key) {
		timed = false
		outcome.Status = transfer.StatusAlreadyExists
		outcome.Error = alreadyStoredMessage

		return outcome
	}

	if err := p.retrier.Do(ctx, "fetch", func(ctx context.Context) error {
		return p.extractor.Fetch(ctx, media)
	}); err != nil {
		return failed(outcome, err)
	}

	// The extractor can exit cleanly without producing a file.
	if _, err := os.Stat(media.LocalPath); err != nil {
		return failed(outcome, fmt.Errorf("%w: %s", transfer.ErrArtifactMissing, media.LocalPath))
	}

	outcome.Status = transfer.StatusDownloadSuccess

	if p.store == nil {
		logger.Warn("storage unavailable, keeping local copy", "path", media.LocalPath)

		return outcome
	}

	if p.exists(ctx, media.Key) {
		outcome.Status = transfer.StatusAlreadyExists
		outcome.Error = alreadyStoredMessage
		p.removeLocal(ctx, media.LocalPath)

		return outcome
	}

	if err := p.store.Put(ctx, media.Key, media.LocalPath); err != nil {
		if errors.Is(err, transfer.ErrAlreadyExists) {
			logger.Info("object was uploaded concurrently by another worker")

			outcome.Status = transfer.StatusAlreadyExists
			outcome.Error = alreadyStoredMessage
			p.removeLocal(ctx, media.LocalPath)

			return outcome
		}

		logger.Error("upload failed, keeping local copy", "path", media.LocalPath, "err", err)

		return outcome
	}

	outcome.Uploaded = true
	p.removeLocal(ctx, media.LocalPath)

	return outcome
}

// exists treats a failed check as absent, so the item is fetched rather than
// silently skipped.
func (p *Pipeline) exists(ctx context.Context, key string) bool {
	found, err := p.store.Exists(ctx, key)
	if err != nil {
		logctx.LoggerFromContext(ctx).Warn("failed to check object existence", "err", err)

		return false
	}

	return found
}

func (p *Pipeline) removeLocal(ctx context.Context, path string) {
	logger := logctx.LoggerFromContext(ctx)

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Error("failed to delete local copy", "path", path, "err", err)

		return
	}

	logger.Debug("deleted local copy", "path", path)
}

func (p *Pipeline) logOutcome(ctx context.Context, o transfer.Outcome) {
	logger := logctx.LoggerFromContext(ctx)
	attrs := []any{"status", o.Status, "elapsed", o.Elapsed.String()}

	switch {
	case o.Status.IsFailure():
		logger.ErrorContext(ctx, "item failed", append(attrs, "err", o.Error)...)
	case o.Status == transfer.StatusAlreadyExists:
		logger.InfoContext(ctx, "item already stored", attrs...)
	case o.Uploaded:
		logger.InfoContext(ctx, "item downloaded and uploaded", attrs...)
	default:
		logger.WarnContext(ctx, "item downloaded, upload pending", append(attrs, "path", o.Filename)...)
	}
}

func failed(o transfer.Outcome, err error) transfer.Outcome {
	o.Status = transfer.StatusDownloadFailed
	if IsAuthFailure(err) {
		o.Status = transfer.StatusAuthFailed
	}

	o.Error = err.Error()

	return o
}
