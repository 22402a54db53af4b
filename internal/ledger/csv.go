package ledger

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/italolelis/ytaudio_archiver/internal/transfer"
)

// TimestampLayout is the layout of the timestamp column.
const TimestampLayout = "2006-01-02 15:04:05"

// Header is the first row of every ledger file.
var Header = []string{"timestamp", "url", "filename", "status", "duration_seconds", "error_message"}

// CSV is the append-only outcome file read by the reporting tools. Appends are
// serialized and each one is flushed and synced before returning.
type CSV struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
}

// OpenCSV opens (or creates) the ledger at path. The header is written only
// when the file is empty.
func OpenCSV(path string) (*CSV, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()

		return nil, fmt.Errorf("failed to stat ledger %s: %w", path, err)
	}

	l := &CSV{file: f, w: csv.NewWriter(f)}

	if info.Size() == 0 {
		if err := l.write(Header); err != nil {
			f.Close()

			return nil, fmt.Errorf("failed to write ledger header: %w", err)
		}
	}

	return l, nil
}

// Append writes one outcome row.
func (l *CSV) Append(_ context.Context, o transfer.Outcome) error {
	return l.write(Row(o))
}

// Close flushes and closes the file.
func (l *CSV) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.w.Flush()

	if err := l.w.Error(); err != nil {
		l.file.Close()

		return err
	}

	return l.file.Close()
}

func (l *CSV) write(record []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.w.Write(record); err != nil {
		return fmt.Errorf("failed to write ledger row: %w", err)
	}

	l.w.Flush()

	if err := l.w.Error(); err != nil {
		return fmt.Errorf("failed to flush ledger: %w", err)
	}

	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync ledger: %w", err)
	}

	return nil
}

// Row renders an outcome in ledger column order.
func Row(o transfer.Outcome) []string {
	return []string{
		o.Timestamp.Format(TimestampLayout),
		string(o.Item),
		o.Filename,
		string(o.Status),
		strconv.FormatFloat(o.Elapsed.Seconds(), 'f', 2, 64),
		o.Error,
	}
}
