package ledger

import (
	"context"

	"github.com/italolelis/ytaudio_archiver/internal/logctx"
	"github.com/italolelis/ytaudio_archiver/internal/telemetry"
	"github.com/italolelis/ytaudio_archiver/internal/transfer"
)

// Mirror is a secondary destination for outcomes. Failing mirrors never fail
// the append.
type Mirror struct {
	Name   string
	Ledger transfer.Ledger
}

// Multi appends to the primary ledger and then to every mirror.
type Multi struct {
	primary   transfer.Ledger
	mirrors   []Mirror
	telemetry *telemetry.Telemetry
}

// NewMulti creates a fan-out ledger around primary.
func NewMulti(primary transfer.Ledger, tel *telemetry.Telemetry, mirrors ...Mirror) *Multi {
	return &Multi{primary: primary, mirrors: mirrors, telemetry: tel}
}

// Append writes to the primary ledger; its error is returned. Mirror errors are logged.
func (m *Multi) Append(ctx context.Context, o transfer.Outcome) error {
	logger := logctx.LoggerFromContext(ctx)

	err := m.primary.Append(ctx, o)

	status := "success"
	if err != nil {
		status = "error"
	}

	m.telemetry.RecordLedgerAppend(ctx, status)

	for _, mirror := range m.mirrors {
		if mErr := mirror.Ledger.Append(ctx, o); mErr != nil {
			logger.Warn("failed to mirror outcome", "mirror", mirror.Name, "item", o.Item, "err", mErr)
		}
	}

	return err
}
