package transfer

import (
	"context"
	"io"

	"github.com/italolelis/ytaudio_archiver/internal/telemetry"
)

// InstrumentedExtractor wraps an Extractor with telemetry.
type InstrumentedExtractor struct {
	extractor Extractor
	telemetry *telemetry.Telemetry
	backend   string
}

// NewInstrumentedExtractor creates a new instrumented extractor.
func NewInstrumentedExtractor(extractor Extractor, tel *telemetry.Telemetry, backend string) *InstrumentedExtractor {
	return &InstrumentedExtractor{
		extractor: extractor,
		telemetry: tel,
		backend:   backend,
	}
}

// ListItems lists the items of a channel with telemetry.
func (e *InstrumentedExtractor) ListItems(ctx context.Context, channel ChannelRef) ([]ItemRef, error) {
	var items []ItemRef

	err := e.telemetry.InstrumentBackendOperation(ctx, e.backend, "list_items", func(ctx context.Context) error {
		var err error
		items, err = e.extractor.ListItems(ctx, channel)

		return err
	})
	if err != nil {
		return nil, err
	}

	return items, nil
}

// Resolve resolves an item's metadata with telemetry.
func (e *InstrumentedExtractor) Resolve(ctx context.Context, item ItemRef) (*Media, error) {
	var media *Media

	err := e.telemetry.InstrumentBackendOperation(ctx, e.backend, "resolve", func(ctx context.Context) error {
		var err error
		media, err = e.extractor.Resolve(ctx, item)

		return err
	})
	if err != nil {
		return nil, err
	}

	return media, nil
}

// Fetch materializes an item on disk with telemetry.
func (e *InstrumentedExtractor) Fetch(ctx context.Context, media *Media) error {
	return e.telemetry.InstrumentBackendOperation(ctx, e.backend, "fetch", func(ctx context.Context) error {
		return e.extractor.Fetch(ctx, media)
	})
}

// InstrumentedStore wraps a Store with telemetry.
type InstrumentedStore struct {
	store     Store
	telemetry *telemetry.Telemetry
	backend   string
}

// NewInstrumentedStore creates a new instrumented store.
func NewInstrumentedStore(store Store, tel *telemetry.Telemetry, backend string) *InstrumentedStore {
	return &InstrumentedStore{
		store:     store,
		telemetry: tel,
		backend:   backend,
	}
}

// Exists checks for a key with telemetry.
func (s *InstrumentedStore) Exists(ctx context.Context, key string) (bool, error) {
	var found bool

	err := s.telemetry.InstrumentBackendOperation(ctx, s.backend, "exists", func(ctx context.Context) error {
		var err error
		found, err = s.store.Exists(ctx, key)

		return err
	})

	return found, err
}

// Put uploads a local file with telemetry.
func (s *InstrumentedStore) Put(ctx context.Context, key, localPath string) error {
	err := s.telemetry.InstrumentBackendOperation(ctx, s.backend, "put", func(ctx context.Context) error {
		return s.store.Put(ctx, key, localPath)
	})

	status := "success"
	if err != nil {
		status = "error"
	}

	s.telemetry.RecordUpload(ctx, status)

	return err
}

// Close closes the wrapped store when it holds resources.
func (s *InstrumentedStore) Close() error {
	if c, ok := s.store.(io.Closer); ok {
		return c.Close()
	}

	return nil
}
