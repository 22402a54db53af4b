package downloader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/italolelis/ytaudio_archiver/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const otherChannel = transfer.ChannelRef("https://www.youtube.com/@other")

type coordinatorFixture struct {
	workDir   string
	extractor *fakeExtractor
	store     *fakeStore
	ledger    *memLedger
	tracker   *Tracker
	notifier  *fakeNotifier
	opens     int
	openErr   error
}

func newCoordinatorFixture(t *testing.T) *coordinatorFixture {
	t.Helper()

	workDir := filepath.Join(t.TempDir(), "podcasts")

	return &coordinatorFixture{
		workDir:   workDir,
		extractor: newFakeExtractor(workDir),
		store:     newFakeStore(),
		ledger:    &memLedger{},
		tracker:   NewTracker(),
		notifier:  &fakeNotifier{},
	}
}

func (f *coordinatorFixture) coordinator() *Coordinator {
	opener := func(context.Context) (transfer.Store, error) {
		f.opens++
		if f.openErr != nil {
			return nil, f.openErr
		}

		return f.store, nil
	}

	retrier := NewRetrier(3, transfer.NewClassifier(nil, nil), &fakeCredentials{})

	return NewCoordinator(f.extractor, f.ledger, opener, retrier,
		Options{WorkDir: f.workDir, MaxParallel: 4, WorkerID: "w-1"},
		f.tracker, f.notifier, nil)
}

func TestCoordinator_NoChannels(t *testing.T) {
	f := newCoordinatorFixture(t)

	_, err := f.coordinator().Run(context.Background(), nil)
	assert.ErrorIs(t, err, transfer.ErrNoChannels)
}

func TestCoordinator_FailedChannelDoesNotStopRun(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.extractor.listErr[testChannel] = errors.New("ERROR: channel does not exist")
	f.extractor.channels[otherChannel] = items(5)

	totals, err := f.coordinator().Run(context.Background(), []transfer.ChannelRef{testChannel, otherChannel})
	require.NoError(t, err)

	assert.Equal(t, Counters{Downloaded: 5, Uploaded: 5}, totals)
	assert.Equal(t, 1, f.opens, "storage is connected once per run")

	status := f.tracker.Snapshot()
	require.Len(t, status.Channels, 2)
	assert.Equal(t, testChannel, status.Channels[0].Channel)
	assert.Equal(t, Counters{}, status.Channels[0].Counters)
	assert.True(t, status.Channels[0].Done)
	assert.Equal(t, totals, status.Channels[1].Counters)
	assert.Equal(t, totals, status.Totals)
	assert.NotNil(t, status.FinishedAt)
	assert.NotEmpty(t, status.RunID)
	assert.Equal(t, "w-1", status.WorkerID)

	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "5 downloaded, 5 uploaded")
}

func TestCoordinator_StorageUnavailableDegradesToLocalOnly(t *testing.T) {
	f := newCoordinatorFixture(t)
	all := items(4)
	f.extractor.channels[testChannel] = all
	f.openErr = errors.New("dial tcp: lookup storage.googleapis.com: no such host")

	totals, err := f.coordinator().Run(context.Background(), []transfer.ChannelRef{testChannel})
	require.NoError(t, err)

	assert.Equal(t, Counters{Downloaded: 4}, totals)
	assert.Zero(t, f.store.existsCalls)

	for _, item := range all {
		assert.FileExists(t, f.extractor.localPath(item))
	}

	for _, o := range f.ledger.outcomes() {
		assert.Equal(t, transfer.StatusDownloadSuccess, o.Status)
		assert.False(t, o.Uploaded)
	}
}

func TestCoordinator_SecondRunIsIdempotent(t *testing.T) {
	f := newCoordinatorFixture(t)
	all := items(6)
	f.extractor.channels[testChannel] = all

	first, err := f.coordinator().Run(context.Background(), []transfer.ChannelRef{testChannel})
	require.NoError(t, err)
	assert.Equal(t, Counters{Downloaded: 6, Uploaded: 6}, first)

	putsAfterFirst := f.store.totalPuts()
	fetchesAfterFirst := f.extractor.totalFetches()

	second, err := f.coordinator().Run(context.Background(), []transfer.ChannelRef{testChannel})
	require.NoError(t, err)

	assert.Equal(t, Counters{Downloaded: 6, Uploaded: 6, Skipped: 6}, second)
	assert.Equal(t, putsAfterFirst, f.store.totalPuts())
	assert.Equal(t, fetchesAfterFirst, f.extractor.totalFetches())

	rows := f.ledger.outcomes()
	require.Len(t, rows, 12)

	for _, o := range rows[6:] {
		assert.Equal(t, transfer.StatusAlreadyExists, o.Status)
	}
}

func TestCoordinator_PrunesUploadedDirectories(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.extractor.channels[testChannel] = items(2)

	_, err := f.coordinator().Run(context.Background(), []transfer.ChannelRef{testChannel})
	require.NoError(t, err)

	assert.DirExists(t, f.workDir)

	entries, err := os.ReadDir(f.workDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCoordinator_CancelledBeforeStart(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.extractor.channels[testChannel] = items(2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	totals, err := f.coordinator().Run(ctx, []transfer.ChannelRef{testChannel, otherChannel})
	require.NoError(t, err)

	assert.Equal(t, Counters{}, totals)
	assert.Zero(t, f.extractor.listCalls[testChannel])
	assert.Len(t, f.notifier.messages, 1, "summary is still reported")
}

func TestCoordinator_ChannelsRunSequentially(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.extractor.channels[testChannel] = items(3)
	f.extractor.channels[otherChannel] = []transfer.ItemRef{"https://www.youtube.com/watch?v=other"}

	var order []transfer.ChannelRef

	f.extractor.onFetch = func(_ context.Context, media *transfer.Media) {
		f.extractor.mu.Lock()
		defer f.extractor.mu.Unlock()

		if media.Item == "https://www.youtube.com/watch?v=other" {
			order = append(order, otherChannel)
		} else {
			order = append(order, testChannel)
		}
	}

	_, err := f.coordinator().Run(context.Background(), []transfer.ChannelRef{testChannel, otherChannel})
	require.NoError(t, err)

	assert.Equal(t, []transfer.ChannelRef{testChannel, testChannel, testChannel, otherChannel}, order)
}
