package expiry

import (
	"context"

	"github.com/flemzord/expiry/internal/cron"
)

// ScanJob runs the Scanner on a cron schedule.
type ScanJob struct {
	Scanner      *Scanner
	ScheduleExpr string // empty = default "@hourly"
}

// Compile-time interface check.
var _ cron.Job = (*ScanJob)(nil)

// Name implements cron.Job.
func (j *ScanJob) Name() string { return "expiry_scan" }

// Schedule implements cron.Job.
func (j *ScanJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return DefaultScanSchedule
}

// Run implements cron.Job.
func (j *ScanJob) Run(ctx context.Context) error {
	_, err := j.Scanner.RunScan(ctx)
	return err
}

// DrainJob runs one Worker batch on a cron schedule.
type DrainJob struct {
	Worker       *Worker
	ScheduleExpr string // empty = default "*/15 * * * *"
}

// Compile-time interface check.
var _ cron.Job = (*DrainJob)(nil)

// Name implements cron.Job.
func (j *DrainJob) Name() string { return "expiry_drain" }

// Schedule implements cron.Job.
func (j *DrainJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return DefaultDrainSchedule
}

// Run implements cron.Job.
func (j *DrainJob) Run(ctx context.Context) error {
	_, err := j.Worker.RunWorkerBatch(ctx)
	return err
}
