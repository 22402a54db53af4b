package downloader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/italolelis/ytaudio_archiver/internal/transfer"
)

type fakeExtractor struct {
	mu sync.Mutex

	dir      string
	channels map[transfer.ChannelRef][]transfer.ItemRef
	listErr  map[transfer.ChannelRef]error

	// Errors returned by successive calls for an item, then success.
	resolveErrs map[transfer.ItemRef][]error
	fetchErrs   map[transfer.ItemRef][]error

	noFile  map[transfer.ItemRef]bool
	panicOn map[transfer.ItemRef]bool
	onFetch func(ctx context.Context, media *transfer.Media)

	listCalls    map[transfer.ChannelRef]int
	resolveCalls map[transfer.ItemRef]int
	fetchCalls   map[transfer.ItemRef]int
}

func newFakeExtractor(dir string) *fakeExtractor {
	return &fakeExtractor{
		dir:          dir,
		channels:     make(map[transfer.ChannelRef][]transfer.ItemRef),
		listErr:      make(map[transfer.ChannelRef]error),
		resolveErrs:  make(map[transfer.ItemRef][]error),
		fetchErrs:    make(map[transfer.ItemRef][]error),
		noFile:       make(map[transfer.ItemRef]bool),
		panicOn:      make(map[transfer.ItemRef]bool),
		listCalls:    make(map[transfer.ChannelRef]int),
		resolveCalls: make(map[transfer.ItemRef]int),
		fetchCalls:   make(map[transfer.ItemRef]int),
	}
}

func itemName(item transfer.ItemRef) string {
	name := string(item)
	if i := strings.LastIndex(name, "="); i >= 0 {
		name = name[i+1:]
	}

	return name
}

func keyFor(item transfer.ItemRef) string {
	return "raw_audio/uploader/" + itemName(item) + ".wav"
}

func (f *fakeExtractor) localPath(item transfer.ItemRef) string {
	return filepath.Join(f.dir, "uploader", itemName(item)+".wav")
}

func (f *fakeExtractor) ListItems(_ context.Context, channel transfer.ChannelRef) ([]transfer.ItemRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listCalls[channel]++

	if err := f.listErr[channel]; err != nil {
		return nil, err
	}

	return f.channels[channel], nil
}

func (f *fakeExtractor) Resolve(_ context.Context, item transfer.ItemRef) (*transfer.Media, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.resolveCalls[item]++

	if errs := f.resolveErrs[item]; len(errs) > 0 {
		f.resolveErrs[item] = errs[1:]

		return nil, errs[0]
	}

	return &transfer.Media{
		Item:      item,
		ID:        itemName(item),
		Uploader:  "uploader",
		Title:     itemName(item),
		LocalPath: f.localPath(item),
		Key:       keyFor(item),
	}, nil
}

func (f *fakeExtractor) Fetch(ctx context.Context, media *transfer.Media) error {
	f.mu.Lock()
	f.fetchCalls[media.Item]++

	if f.panicOn[media.Item] {
		f.mu.Unlock()
		panic("extractor crashed")
	}

	if errs := f.fetchErrs[media.Item]; len(errs) > 0 {
		f.fetchErrs[media.Item] = errs[1:]
		f.mu.Unlock()

		return errs[0]
	}

	noFile := f.noFile[media.Item]
	onFetch := f.onFetch
	f.mu.Unlock()

	if onFetch != nil {
		onFetch(ctx, media)
	}

	if noFile {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(media.LocalPath), 0o755); err != nil {
		return err
	}

	return os.WriteFile(media.LocalPath, []byte("audio"), 0o600)
}

func (f *fakeExtractor) fetches(item transfer.ItemRef) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.fetchCalls[item]
}

func (f *fakeExtractor) totalFetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.fetchCalls {
		n += c
	}

	return n
}

type fakeStore struct {
	mu sync.Mutex

	objects   map[string]bool
	existsErr error
	putErr    error

	existsCalls int
	putCalls    map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string]bool), putCalls: make(map[string]int)}
}

func (s *fakeStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.existsCalls++

	if s.existsErr != nil {
		return false, s.existsErr
	}

	return s.objects[key], nil
}

func (s *fakeStore) Put(_ context.Context, key, localPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.putCalls[key]++

	if s.putErr != nil {
		return s.putErr
	}

	if _, err := os.Stat(localPath); err != nil {
		return err
	}

	s.objects[key] = true

	return nil
}

func (s *fakeStore) add(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[key] = true
}

func (s *fakeStore) totalPuts() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.putCalls {
		n += c
	}

	return n
}

type fakeCredentials struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *fakeCredentials) Refresh(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++

	return c.err
}

func (c *fakeCredentials) refreshes() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.calls
}

type memLedger struct {
	mu   sync.Mutex
	rows []transfer.Outcome
}

func (l *memLedger) Append(_ context.Context, o transfer.Outcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rows = append(l.rows, o)

	return nil
}

func (l *memLedger) outcomes() []transfer.Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]transfer.Outcome(nil), l.rows...)
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) Notify(_ context.Context, content string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.messages = append(n.messages, content)

	return nil
}

var (
	errTransient = errors.New("ERROR: unable to download video data: HTTP Error 503: Service Unavailable")
	errAuth      = errors.New("ERROR: [youtube] abc: Sign in to confirm you're not a bot. Use --cookies")
)
