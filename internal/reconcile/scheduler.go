package reconcile

import (
	"context"
	"time"
)

// Job cadence
const (
	StatusSyncInterval    = 5 * time.Minute
	AnalyticsSyncInterval = 15 * time.Minute
	cleanupHour           = 2 // daily, local time
)

// Run drives all reconciliation jobs until the context is cancelled. Each
// job runs on its own ticker so a slow sweep never starves the others.
func (r *Reconciler) Run(ctx context.Context) {
	r.log.InfoContext(ctx, "Starting reconciliation jobs",
		"statusInterval", StatusSyncInterval.String(),
		"analyticsInterval", AnalyticsSyncInterval.String(),
	)

	statusTicker := time.NewTicker(StatusSyncInterval)
	defer statusTicker.Stop()
	analyticsTicker := time.NewTicker(AnalyticsSyncInterval)
	defer analyticsTicker.Stop()
	cleanupTimer := time.NewTimer(untilNextCleanup(time.Now()))
	defer cleanupTimer.Stop()

	// One status sweep at startup so restarts do not wait a full interval.
	if err := r.SyncStatuses(ctx); err != nil {
		r.log.ErrorContext(ctx, "Status sync failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			r.log.InfoContext(ctx, "Reconciliation jobs shutting down")
			return
		case <-statusTicker.C:
			if err := r.SyncStatuses(ctx); err != nil {
				r.log.ErrorContext(ctx, "Status sync failed", "error", err)
			}
		case <-analyticsTicker.C:
			if err := r.SyncAnalytics(ctx); err != nil {
				r.log.ErrorContext(ctx, "Analytics sync failed", "error", err)
			}
		case <-cleanupTimer.C:
			if err := r.CleanupAnalytics(ctx); err != nil {
				r.log.ErrorContext(ctx, "Analytics cleanup failed", "error", err)
			}
			cleanupTimer.Reset(untilNextCleanup(time.Now()))
		}
	}
}

// untilNextCleanup returns the duration until the next local 02:00.
func untilNextCleanup(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), cleanupHour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
