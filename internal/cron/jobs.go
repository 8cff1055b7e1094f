package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Rescanner is the subset of manager.Manager needed by RescanJob.
type Rescanner interface {
	Rescan(ctx context.Context) ([]string, error)
}

// Sweeper is the subset of upload.Pipeline needed by UploadSweepJob.
type Sweeper interface {
	Sweep(age time.Duration) (int, error)
}

// RescanJob loads modules that appeared on disk since the last scan.
type RescanJob struct {
	Manager      Rescanner
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/5 * * * *"
}

// Compile-time interface check.
var _ Job = (*RescanJob)(nil)

// Name implements Job.
func (j *RescanJob) Name() string { return "module_rescan" }

// Schedule implements Job.
func (j *RescanJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/5 * * * *"
}

// Run rescans the modules root.
func (j *RescanJob) Run(ctx context.Context) error {
	loaded, err := j.Manager.Rescan(ctx)
	if len(loaded) > 0 {
		j.Logger.Info("cron: new modules loaded", "modules", loaded)
	}
	if err != nil {
		return fmt.Errorf("cron: rescan: %w", err)
	}
	return nil
}

// UploadSweepJob removes upload staging directories left behind by
// interrupted uploads.
type UploadSweepJob struct {
	Pipeline     Sweeper
	MaxAge       time.Duration // zero = 1h
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "0 * * * *"
}

// Compile-time interface check.
var _ Job = (*UploadSweepJob)(nil)

// Name implements Job.
func (j *UploadSweepJob) Name() string { return "upload_sweep" }

// Schedule implements Job.
func (j *UploadSweepJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 * * * *"
}

// Run removes staging directories older than MaxAge.
func (j *UploadSweepJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: upload sweep cancelled: %w", ctx.Err())
	}
	age := j.MaxAge
	if age <= 0 {
		age = time.Hour
	}
	removed, err := j.Pipeline.Sweep(age)
	if removed > 0 {
		j.Logger.Info("cron: removed stale upload staging directories", "count", removed)
	}
	if err != nil {
		return fmt.Errorf("cron: upload sweep: %w", err)
	}
	return nil
}
