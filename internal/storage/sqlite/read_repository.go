package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/italolelis/ytaudio_archiver/internal/storage"
	"github.com/italolelis/ytaudio_archiver/internal/transfer"
)

type OutcomeReadRepository struct {
	db *sql.DB
}

func NewOutcomeReadRepository(dbConn *sql.DB) *OutcomeReadRepository {
	return &OutcomeReadRepository{db: dbConn}
}

// CountByStatus groups outcomes by status. An empty runID counts every run.
func (r *OutcomeReadRepository) CountByStatus(ctx context.Context, runID string) ([]storage.StatusCount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*)
		FROM outcomes
		WHERE ? = '' OR run_id = ?
		GROUP BY status
		ORDER BY status`, runID, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []storage.StatusCount

	for rows.Next() {
		var (
			c      storage.StatusCount
			status string
		)

		if err := rows.Scan(&status, &c.Count); err != nil {
			return nil, err
		}

		c.Status = transfer.Status(status)
		counts = append(counts, c)
	}

	return counts, rows.Err()
}

// RecentFailures returns the latest failed outcomes, newest first.
func (r *OutcomeReadRepository) RecentFailures(ctx context.Context, limit int) ([]transfer.Outcome, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT
			recorded_at,
			run_id,
			worker_id,
			channel,
			item,
			filename,
			object_key,
			status,
			uploaded,
			elapsed_ms,
			error_message
		FROM outcomes
		WHERE status IN (?, ?)
		ORDER BY id DESC
		LIMIT ?`,
		string(transfer.StatusDownloadFailed), string(transfer.StatusAuthFailed), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []transfer.Outcome

	for rows.Next() {
		var (
			o                             transfer.Outcome
			recordedAt, channel, item, st string
			elapsedMS                     int64
		)

		if err := rows.Scan(&recordedAt, &o.RunID, &o.WorkerID, &channel, &item, &o.Filename,
			&o.Key, &st, &o.Uploaded, &elapsedMS, &o.Error); err != nil {
			return nil, err
		}

		if ts, err := time.Parse(time.RFC3339Nano, recordedAt); err == nil {
			o.Timestamp = ts
		}

		o.Channel = transfer.ChannelRef(channel)
		o.Item = transfer.ItemRef(item)
		o.Status = transfer.Status(st)
		o.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		outcomes = append(outcomes, o)
	}

	return outcomes, rows.Err()
}
