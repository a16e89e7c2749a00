package cron_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/flemzord/expiry/internal/cron"
	"github.com/flemzord/expiry/internal/cron/crontest"
)

func startScheduler(t *testing.T, jobs ...cron.Job) *cron.Scheduler {
	t.Helper()
	s := cron.NewScheduler(slog.New(slog.DiscardHandler))
	for _, j := range jobs {
		if err := s.RegisterJob(j); err != nil {
			t.Fatalf("RegisterJob: %v", err)
		}
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s
}

func TestScheduler_RunsRegisteredJob(t *testing.T) {
	t.Parallel()

	job := crontest.NewJob("tick", "@every 1s")
	s := startScheduler(t, job)

	select {
	case <-job.Ran():
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run within 5s")
	}
	if job.Count() < 1 {
		t.Errorf("Count() = %d, want >= 1", job.Count())
	}

	entries := s.Entries()
	if len(entries) != 1 || entries[0].Prev.IsZero() {
		t.Errorf("entries = %+v, want one entry with a previous run", entries)
	}
}

func TestScheduler_FailingJobKeepsRunning(t *testing.T) {
	t.Parallel()

	job := crontest.NewJob("flaky", "@every 1s")
	job.Err = errors.New("store unavailable")
	startScheduler(t, job)

	for range 2 {
		select {
		case <-job.Ran():
		case <-time.After(5 * time.Second):
			t.Fatalf("job ran %d times, want 2", job.Count())
		}
	}
}
