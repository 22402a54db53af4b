package downloader

import (
	"sync"
	"time"

	"github.com/italolelis/ytaudio_archiver/internal/transfer"
)

// ChannelStatus is the progress of one channel within a run.
type ChannelStatus struct {
	Channel  transfer.ChannelRef `json:"channel"`
	Items    int                 `json:"items"`
	Counters Counters            `json:"counters"`
	Done     bool                `json:"done"`
}

// RunStatus is a point-in-time view of a run.
type RunStatus struct {
	RunID          string              `json:"run_id"`
	WorkerID       string              `json:"worker_id,omitempty"`
	StartedAt      time.Time           `json:"started_at"`
	FinishedAt     *time.Time          `json:"finished_at,omitempty"`
	CurrentChannel transfer.ChannelRef `json:"current_channel,omitempty"`
	Channels       []ChannelStatus     `json:"channels"`
	Totals         Counters            `json:"totals"`
}

// Tracker exposes the progress of the current run to readers such as the
// status API. All methods are safe on a nil Tracker.
type Tracker struct {
	mu       sync.RWMutex
	status   RunStatus
	index    map[transfer.ChannelRef]int
	inFlight *SharedCounters
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{index: make(map[transfer.ChannelRef]int)}
}

func (t *Tracker) runStarted(runID, workerID string, at time.Time) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.status = RunStatus{RunID: runID, WorkerID: workerID, StartedAt: at}
	t.index = make(map[transfer.ChannelRef]int)
	t.inFlight = nil
}

func (t *Tracker) channelStarted(channel transfer.ChannelRef, items int, counters *SharedCounters) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.CurrentChannel = channel
	t.index[channel] = len(t.status.Channels)
	t.status.Channels = append(t.status.Channels, ChannelStatus{Channel: channel, Items: items})
	t.inFlight = counters
}

func (t *Tracker) channelFinished(channel transfer.ChannelRef, counters Counters) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.index[channel]
	if !ok {
		i = len(t.status.Channels)
		t.index[channel] = i
		t.status.Channels = append(t.status.Channels, ChannelStatus{Channel: channel})
	}

	t.status.Channels[i].Counters = counters
	t.status.Channels[i].Done = true
	t.status.Totals = t.status.Totals.Add(counters)
	t.status.CurrentChannel = ""
	t.inFlight = nil
}

func (t *Tracker) runFinished(at time.Time) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.FinishedAt = &at
	t.status.CurrentChannel = ""
}

// Snapshot returns the current status, including live counters of the
// channel being processed.
func (t *Tracker) Snapshot() RunStatus {
	if t == nil {
		return RunStatus{}
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	s := t.status
	s.Channels = append([]ChannelStatus(nil), t.status.Channels...)

	if t.inFlight != nil && s.CurrentChannel != "" {
		live := t.inFlight.Snapshot()
		if i, ok := t.index[s.CurrentChannel]; ok {
			s.Channels[i].Counters = live
		}

		s.Totals = s.Totals.Add(live)
	}

	return s
}
