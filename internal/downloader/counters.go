package downloader

import (
	"sync"

	"github.com/italolelis/ytaudio_archiver/internal/transfer"
)

// Counters aggregates item outcomes. Every item is either Downloaded or
// Failed. An item already in storage counts as downloaded and uploaded;
// Skipped is the informational sub-count of those.
type Counters struct {
	Downloaded int `json:"downloaded"`
	Uploaded   int `json:"uploaded"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// Total is the number of items accounted for.
func (c Counters) Total() int {
	return c.Downloaded + c.Failed
}

// Add returns the field-wise sum of c and o.
func (c Counters) Add(o Counters) Counters {
	return Counters{
		Downloaded: c.Downloaded + o.Downloaded,
		Uploaded:   c.Uploaded + o.Uploaded,
		Skipped:    c.Skipped + o.Skipped,
		Failed:     c.Failed + o.Failed,
	}
}

// SharedCounters is a Counters value safe for concurrent use.
type SharedCounters struct {
	mu sync.Mutex
	c  Counters
}

// Record counts one terminal outcome.
func (s *SharedCounters) Record(o transfer.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case o.Status == transfer.StatusDownloadSuccess:
		s.c.Downloaded++

		if o.Uploaded {
			s.c.Uploaded++
		}
	case o.Status == transfer.StatusAlreadyExists:
		s.c.Downloaded++
		s.c.Uploaded++
		s.c.Skipped++
	default:
		s.c.Failed++
	}
}

// Snapshot returns a copy of the current values.
func (s *SharedCounters) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.c
}
