package cookies

import (
	"context"
	"time"

	"github.com/italolelis/ytaudio_archiver/internal/logctx"
)

// Monitor keeps the cookie jar younger than MaxAge by checking it on an interval.
type Monitor struct {
	refresher *Refresher
	maxAge    time.Duration
	interval  time.Duration
	now       func() time.Time
}

// NewMonitor creates a Monitor.
func NewMonitor(refresher *Refresher, maxAge, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Minute
	}

	return &Monitor{
		refresher: refresher,
		maxAge:    maxAge,
		interval:  interval,
		now:       time.Now,
	}
}

// ShouldRefresh reports whether the jar is missing or at least maxAge old.
func (m *Monitor) ShouldRefresh() (bool, time.Duration, error) {
	age, err := m.refresher.Age(m.now())
	if err != nil {
		return false, 0, err
	}

	return age >= m.maxAge, age, nil
}

// RunOnce refreshes the jar when it is stale, or unconditionally when force is
// set. It reports whether a refresh happened.
func (m *Monitor) RunOnce(ctx context.Context, force bool) (bool, error) {
	logger := logctx.LoggerFromContext(ctx)

	if !force {
		stale, age, err := m.ShouldRefresh()
		if err != nil {
			return false, err
		}

		if !stale {
			logger.Info("cookies are fresh", "age", age.Round(time.Minute).String(), "max_age", m.maxAge.String())

			return false, nil
		}

		logger.Info("cookies are stale, refreshing", "max_age", m.maxAge.String())
	}

	if err := m.refresher.Refresh(ctx); err != nil {
		return false, err
	}

	return true, nil
}

// Start checks the jar immediately and then every interval until ctx is done.
// It returns right away; the returned channel is closed once the loop exits.
func (m *Monitor) Start(ctx context.Context) <-chan struct{} {
	logger := logctx.LoggerFromContext(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			if _, err := m.RunOnce(ctx, false); err != nil {
				logger.Error("failed to refresh cookies", "err", err)
			}

			select {
			case <-ctx.Done():
				logger.Info("cookie monitor shutting down")

				return
			case <-ticker.C:
			}
		}
	}()

	return done
}
