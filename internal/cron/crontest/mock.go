// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync/atomic"

	"github.com/flemzord/expiry/internal/cron"
)

// Job is a cron.Job that records its runs.
type Job struct {
	name string
	expr string

	// Err is returned by every run.
	Err error

	count atomic.Int64
	ran   chan struct{}
}

var _ cron.Job = (*Job)(nil)

// NewJob returns a recording job with the given name and schedule.
func NewJob(name, expr string) *Job {
	return &Job{name: name, expr: expr, ran: make(chan struct{}, 16)}
}

// Name implements cron.Job.
func (j *Job) Name() string { return j.name }

// Schedule implements cron.Job.
func (j *Job) Schedule() string { return j.expr }

// Run implements cron.Job.
func (j *Job) Run(context.Context) error {
	j.count.Add(1)
	select {
	case j.ran <- struct{}{}:
	default:
	}
	return j.Err
}

// Ran receives once per run; runs beyond its buffer are only counted.
func (j *Job) Ran() <-chan struct{} { return j.ran }

// Count returns the number of runs so far.
func (j *Job) Count() int { return int(j.count.Load()) }
