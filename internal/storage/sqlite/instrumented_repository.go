package sqlite

import (
	"context"
	"database/sql"

	"github.com/italolelis/ytaudio_archiver/internal/storage"
	"github.com/italolelis/ytaudio_archiver/internal/telemetry"
	"github.com/italolelis/ytaudio_archiver/internal/transfer"
)

// InstrumentedOutcomeRepository wraps the outcome repositories with telemetry.
// Its Append method lets it act as a ledger mirror.
type InstrumentedOutcomeRepository struct {
	read      *OutcomeReadRepository
	write     *OutcomeWriteRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedOutcomeRepository creates a new instrumented outcome repository.
func NewInstrumentedOutcomeRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedOutcomeRepository {
	return &InstrumentedOutcomeRepository{
		read:      NewOutcomeReadRepository(dbConn),
		write:     NewOutcomeWriteRepository(dbConn),
		telemetry: tel,
	}
}

// RecordOutcome stores an outcome with telemetry.
func (r *InstrumentedOutcomeRepository) RecordOutcome(ctx context.Context, o transfer.Outcome) error {
	return r.telemetry.InstrumentDBOperation(ctx, "record_outcome", func(ctx context.Context) error {
		return r.write.RecordOutcome(ctx, o)
	})
}

// Append implements transfer.Ledger.
func (r *InstrumentedOutcomeRepository) Append(ctx context.Context, o transfer.Outcome) error {
	return r.RecordOutcome(ctx, o)
}

// CountByStatus counts outcomes with telemetry.
func (r *InstrumentedOutcomeRepository) CountByStatus(ctx context.Context, runID string) ([]storage.StatusCount, error) {
	var result []storage.StatusCount

	err := r.telemetry.InstrumentDBOperation(ctx, "count_by_status", func(ctx context.Context) error {
		var err error
		result, err = r.read.CountByStatus(ctx, runID)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// RecentFailures lists failures with telemetry.
func (r *InstrumentedOutcomeRepository) RecentFailures(ctx context.Context, limit int) ([]transfer.Outcome, error) {
	var result []transfer.Outcome

	err := r.telemetry.InstrumentDBOperation(ctx, "recent_failures", func(ctx context.Context) error {
		var err error
		result, err = r.read.RecentFailures(ctx, limit)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
