// Package jobs defines River periodic jobs.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"tenantcast.dev/tenantcast/internal/pkg/logger"
)

// DefaultStaleTokenAfter is how long a push token may go unused before the
// sweep deactivates it.
const DefaultStaleTokenAfter = 270 * 24 * time.Hour

// StaleTokenSweepArgs is a periodic job that deactivates push tokens no
// push has been delivered to for a long time.
type StaleTokenSweepArgs struct{}

// Kind returns the job kind identifier.
func (StaleTokenSweepArgs) Kind() string { return "stale_push_token_sweep" }

// InsertOpts ensures at most one sweep is enqueued within the same day.
func (StaleTokenSweepArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: 24 * time.Hour,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// StaleTokenStore is the slice of the push token store the sweep needs.
type StaleTokenStore interface {
	DeactivateStale(ctx context.Context, cutoff, at time.Time) (int64, error)
}

// StaleTokenSweepWorker soft-deactivates stale tokens. Rows are never deleted.
type StaleTokenSweepWorker struct {
	river.WorkerDefaults[StaleTokenSweepArgs]
	tokens StaleTokenStore
	after  time.Duration
	now    func() time.Time
}

// NewStaleTokenSweepWorker creates the worker. Non-positive after falls back
// to DefaultStaleTokenAfter.
func NewStaleTokenSweepWorker(tokens StaleTokenStore, after time.Duration) *StaleTokenSweepWorker {
	if after <= 0 {
		after = DefaultStaleTokenAfter
	}
	return &StaleTokenSweepWorker{tokens: tokens, after: after, now: time.Now}
}

// Work deactivates every active token unused since now - after.
func (w *StaleTokenSweepWorker) Work(ctx context.Context, _ *river.Job[StaleTokenSweepArgs]) error {
	if w == nil || w.tokens == nil {
		return fmt.Errorf("stale token sweep worker is not initialized")
	}
	return w.Sweep(ctx)
}

// Sweep runs one pass outside River, e.g. when storage is not PostgreSQL.
func (w *StaleTokenSweepWorker) Sweep(ctx context.Context) error {
	now := w.now().UTC()
	cutoff := now.Add(-w.after)
	n, err := w.tokens.DeactivateStale(ctx, cutoff, now)
	if err != nil {
		return fmt.Errorf("deactivate push tokens unused since %s: %w", cutoff.Format(time.RFC3339), err)
	}

	logger.Info("Stale push token sweep completed",
		zap.Int64("deactivated", n),
		zap.String("cutoff", cutoff.Format(time.RFC3339)),
		zap.Duration("stale_after", w.after),
	)
	return nil
}

// PeriodicStaleTokenSweep schedules the sweep daily and once on start.
func PeriodicStaleTokenSweep() *river.PeriodicJob {
	return river.NewPeriodicJob(
		river.PeriodicInterval(24*time.Hour),
		func() (river.JobArgs, *river.InsertOpts) {
			return StaleTokenSweepArgs{}, nil
		},
		&river.PeriodicJobOpts{RunOnStart: true},
	)
}
