package transfer

import (
	"context"
	"time"
)

// Status is the terminal disposition of one item, as written to the ledger.
type Status string

const (
	StatusDownloadSuccess Status = "DOWNLOAD_SUCCESS"
	StatusAlreadyExists   Status = "ALREADY_EXISTS"
	StatusDownloadFailed  Status = "DOWNLOAD_FAILED"
	StatusAuthFailed      Status = "AUTH_FAILED"
)

// IsFailure reports whether the status counts as a failed item.
func (s Status) IsFailure() bool {
	return s == StatusDownloadFailed || s == StatusAuthFailed
}

// ChannelRef identifies a remote channel (usually its URL).
type ChannelRef string

// ItemRef identifies a single remote media item (usually its URL).
type ItemRef string

// Media is the resolved view of an item: where it lands on local disk and the
// key it is stored under remotely.
type Media struct {
	Item      ItemRef
	ID        string
	Uploader  string
	Title     string
	LocalPath string
	Key       string
}

// Outcome is one ledger row: the terminal result of processing one item.
type Outcome struct {
	Timestamp time.Time     `json:"timestamp"`
	Channel   ChannelRef    `json:"channel,omitempty"`
	Item      ItemRef       `json:"item"`
	Filename  string        `json:"filename"`
	Key       string        `json:"key,omitempty"`
	Status    Status        `json:"status"`
	Elapsed   time.Duration `json:"elapsed"`
	Error     string        `json:"error,omitempty"`
	// Uploaded is only meaningful for DOWNLOAD_SUCCESS: false means the artifact
	// was kept on local disk because the upload failed or storage is unavailable.
	Uploaded bool   `json:"uploaded"`
	WorkerID string `json:"worker_id,omitempty"`
	RunID    string `json:"run_id,omitempty"`
}

// Extractor resolves channels and items against the video platform.
type Extractor interface {
	ListItems(ctx context.Context, channel ChannelRef) ([]ItemRef, error)
	Resolve(ctx context.Context, item ItemRef) (*Media, error)
	// Fetch materializes the item on local disk. Implementations may return nil
	// without producing a file, so callers must check media.LocalPath themselves.
	Fetch(ctx context.Context, media *Media) error
}

// Store is the remote object store that receives finished artifacts.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key, localPath string) error
}

// CredentialSource re-provisions the cookie jar used by the Extractor.
type CredentialSource interface {
	Refresh(ctx context.Context) error
}

// Ledger is the append-only outcome log.
type Ledger interface {
	Append(ctx context.Context, outcome Outcome) error
}
