// Package reportjanitor periodically purges expired report files and their
// metadata rows. It adapts the teacher's trash auto-purge routine (move to
// trash, expire, append-only deletion log) to report retention: reports
// have no restore concept, so this only implements expire-and-delete.
package reportjanitor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/redactqc/redactqc/internal/scheduler"
	"github.com/redactqc/redactqc/internal/store"
)

// Janitor purges reports table rows (and their backing files) older than
// RetentionDays.
type Janitor struct {
	store         *store.Store
	retentionDays int
	sched         *scheduler.Scheduler
}

// New creates a Janitor. retentionDays <= 0 disables scheduled purging
// (Start becomes a no-op); a direct Purge call still runs.
func New(st *store.Store, retentionDays int) *Janitor {
	return &Janitor{store: st, retentionDays: retentionDays, sched: scheduler.New()}
}

// Start schedules Purge to run on the given cron expression (e.g. hourly)
// and begins the cron loop.
func (j *Janitor) Start(ctx context.Context, cronExpr string) error {
	if j.retentionDays <= 0 {
		return nil
	}
	if err := j.sched.SetJob(cronExpr, func() {
		if err := j.Purge(ctx); err != nil {
			slog.Error("reportjanitor: purge failed", "error", err)
		}
	}); err != nil {
		return err
	}
	j.sched.Start()
	return nil
}

// Stop halts the cron loop.
func (j *Janitor) Stop() {
	j.sched.Stop()
}

// Purge deletes every report row (and backing file, if present) created
// before now - retentionDays. Unlike Start, Purge has no disabled state:
// a zero or negative retentionDays simply yields an aggressive cutoff.
func (j *Janitor) Purge(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -j.retentionDays)

	expired, err := j.store.ExpiredReports(ctx, cutoff)
	if err != nil {
		return err
	}

	var purged, failed int
	for _, rep := range expired {
		if ctx.Err() != nil {
			break
		}
		if rep.Path != "" {
			if rerr := os.Remove(rep.Path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
				slog.Warn("reportjanitor: remove file failed", "path", rep.Path, "error", rerr)
				failed++
				continue // leave the row for a future pass to retry
			}
		}
		if err := j.store.DeleteReport(ctx, rep.ID); err != nil {
			slog.Error("reportjanitor: delete report row", "report_id", rep.ID, "error", err)
			failed++
			continue
		}
		purged++
	}

	if purged > 0 || failed > 0 {
		slog.Info("reportjanitor: purge complete", "purged", purged, "failed", failed)
	}
	return nil
}
