// Package cron runs periodic background jobs, such as the expiration scan
// and the queue drain, on cron schedules.
package cron

import "context"

// Job is a periodic background task.
type Job interface {
	// Name identifies the job in logs and Entries. It must be unique
	// within a Scheduler.
	Name() string

	// Schedule is a 5-field cron expression evaluated in UTC or a
	// descriptor such as "@hourly" or "@every 10m".
	Schedule() string

	// Run does one unit of work. ctx is cancelled when the scheduler stops.
	Run(ctx context.Context) error
}
