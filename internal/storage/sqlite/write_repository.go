package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/italolelis/ytaudio_archiver/internal/transfer"
)

// OutcomeWriteRepository implements storage.OutcomeWriteRepository
// and stores outcomes in SQLite.
type OutcomeWriteRepository struct {
	db *sql.DB
}

func NewOutcomeWriteRepository(db *sql.DB) *OutcomeWriteRepository {
	return &OutcomeWriteRepository{db: db}
}

func (r *OutcomeWriteRepository) RecordOutcome(ctx context.Context, o transfer.Outcome) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO outcomes (
			recorded_at, run_id, worker_id, channel, item, filename,
			object_key, status, uploaded, elapsed_ms, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.Timestamp.UTC().Format(time.RFC3339Nano),
		o.RunID,
		o.WorkerID,
		string(o.Channel),
		string(o.Item),
		o.Filename,
		o.Key,
		string(o.Status),
		o.Uploaded,
		o.Elapsed.Milliseconds(),
		o.Error,
	)

	return err
}
