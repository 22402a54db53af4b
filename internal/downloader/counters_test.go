package downloader

import (
	"sync"
	"testing"

	"github.com/italolelis/ytaudio_archiver/internal/transfer"
	"github.com/stretchr/testify/assert"
)

func TestSharedCounters_Record(t *testing.T) {
	var c SharedCounters

	c.Record(transfer.Outcome{Status: transfer.StatusDownloadSuccess, Uploaded: true})
	c.Record(transfer.Outcome{Status: transfer.StatusDownloadSuccess})
	c.Record(transfer.Outcome{Status: transfer.StatusAlreadyExists})
	c.Record(transfer.Outcome{Status: transfer.StatusDownloadFailed})
	c.Record(transfer.Outcome{Status: transfer.StatusAuthFailed})

	assert.Equal(t, Counters{Downloaded: 3, Uploaded: 2, Skipped: 1, Failed: 2}, c.Snapshot())
	assert.Equal(t, 5, c.Snapshot().Total())
}

func TestSharedCounters_ConcurrentRecordsAreNotLost(t *testing.T) {
	statuses := []transfer.Status{
		transfer.StatusDownloadSuccess,
		transfer.StatusAlreadyExists,
		transfer.StatusDownloadFailed,
		transfer.StatusAuthFailed,
	}

	const n = 1000

	var (
		c  SharedCounters
		wg sync.WaitGroup
	)

	for i := range n {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			c.Record(transfer.Outcome{Status: statuses[i%len(statuses)], Uploaded: i%2 == 0})
		}(i)
	}

	wg.Wait()

	got := c.Snapshot()
	assert.Equal(t, n, got.Total())
	assert.Equal(t, n/2, got.Downloaded)
	assert.Equal(t, n/2, got.Uploaded)
	assert.Equal(t, n/4, got.Skipped)
}

func TestSharedCounters_StoredItemsCountAsDownloadedAndUploaded(t *testing.T) {
	var c SharedCounters

	for range 3 {
		c.Record(transfer.Outcome{Status: transfer.StatusAlreadyExists})
	}

	got := c.Snapshot()
	assert.Equal(t, Counters{Downloaded: 3, Uploaded: 3, Skipped: 3}, got)
	assert.Equal(t, 3, got.Total())
}

func TestCounters_Add(t *testing.T) {
	a := Counters{Downloaded: 1, Uploaded: 1, Skipped: 2, Failed: 3}
	b := Counters{Downloaded: 4, Skipped: 1}

	assert.Equal(t, Counters{Downloaded: 5, Uploaded: 1, Skipped: 3, Failed: 3}, a.Add(b))
}
