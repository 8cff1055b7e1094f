// Package cron runs the periodic maintenance jobs of the module manager:
// rescanning the modules root and sweeping abandoned upload staging
// directories.
package cron

import "context"

// Job is a task the Scheduler runs on a schedule or through RunNow.
type Job interface {
	// Name identifies the job in logs, status and the CLI.
	Name() string

	// Schedule is a standard five-field expression ("*/5 * * * *") or a
	// descriptor ("@hourly", "@every 10m").
	Schedule() string

	// Run does one pass. A job still running when ctx is cancelled should
	// return ctx.Err().
	Run(ctx context.Context) error
}
