package storage

import (
	"context"

	"github.com/italolelis/ytaudio_archiver/internal/transfer"
)

// StatusCount is the number of recorded outcomes with a given status.
type StatusCount struct {
	Status transfer.Status `json:"status"`
	Count  int             `json:"count"`
}

// OutcomeReadRepository queries recorded outcomes.
type OutcomeReadRepository interface {
	CountByStatus(ctx context.Context, runID string) ([]StatusCount, error)
	RecentFailures(ctx context.Context, limit int) ([]transfer.Outcome, error)
}

// OutcomeWriteRepository records outcomes.
type OutcomeWriteRepository interface {
	RecordOutcome(ctx context.Context, o transfer.Outcome) error
}
