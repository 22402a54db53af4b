package transfer

import (
	"errors"
	"fmt"
)

var (
	// ErrArtifactMissing is returned when the extractor reported success but no
	// file exists at the expected local path.
	ErrArtifactMissing = errors.New("downloaded artifact not found on disk")

	// ErrAlreadyExists is returned by a Store when a write lost the race against
	// another writer of the same key.
	ErrAlreadyExists = errors.New("object already exists")

	// ErrNoChannels is returned when the run has nothing to process.
	ErrNoChannels = errors.New("no channels configured")
)

// ExtractionError represents failures talking to the video platform: listing a
// channel, resolving an item's metadata or fetching its media.
type ExtractionError struct {
	Operation string // The operation that failed (e.g., "list_items", "fetch")
	Ref       string // Channel or item reference involved
	Err       error  // Underlying error, if any
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction error during %s for %s: %v", e.Operation, e.Ref, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// StorageError represents object store failures for a given key.
type StorageError struct {
	Operation string // "exists" or "put"
	Key       string // Object key relative to the configured prefix
	Err       error  // Underlying error, if any
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s of %s: %v", e.Operation, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// AuthenticationError marks a failure whose message matched the authentication
// vocabulary after the retry budget was spent.
type AuthenticationError struct {
	Operation string // The operation that required authentication
	Err       error  // Underlying error, if any
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed during %s: %v", e.Operation, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// BackendMessage returns the text reported by the backend itself, without the
// channel, item or key references added by ExtractionError and StorageError.
// Those references are user-chosen names and must not drive classification.
func BackendMessage(err error) string {
	var extractErr *ExtractionError
	if errors.As(err, &extractErr) && extractErr.Err != nil {
		return extractErr.Err.Error()
	}

	var storageErr *StorageError
	if errors.As(err, &storageErr) && storageErr.Err != nil {
		return storageErr.Err.Error()
	}

	return err.Error()
}
