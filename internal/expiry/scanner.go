package expiry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/juju/clock"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/expiry/internal/metrics"
	"github.com/flemzord/expiry/internal/queue"
)

// ScanResult summarizes one scanner run.
type ScanResult struct {
	Cutoff   time.Time `json:"cutoff"`
	Selected int       `json:"selected"`
	Enqueued int       `json:"enqueued"`

	// Skipped counts marks whose item was already queued or dead-lettered.
	Skipped int `json:"skipped"`
}

// ScannerParams wires a Scanner.
type ScannerParams struct {
	Marks   MarkStore
	Queue   queue.Queue
	Clock   Clock // optional; defaults to the wall clock
	Logger  *slog.Logger
	Metrics *metrics.PipelineMetrics // optional

	// InclusiveBoundary also selects marks expiring today.
	InclusiveBoundary bool

	// Timeout bounds a whole run. Zero means no bound beyond the caller's.
	Timeout time.Duration
}

// Scanner finds expired marks and enqueues them. It never modifies marks.
type Scanner struct {
	marks     MarkStore
	queue     queue.Queue
	clock     Clock
	logger    *slog.Logger
	metrics   *metrics.PipelineMetrics
	inclusive bool
	timeout   time.Duration
}

// NewScanner creates a Scanner.
func NewScanner(p ScannerParams) *Scanner {
	if p.Clock == nil {
		p.Clock = clock.WallClock
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	return &Scanner{
		marks:     p.Marks,
		queue:     p.Queue,
		clock:     p.Clock,
		logger:    p.Logger,
		metrics:   p.Metrics,
		inclusive: p.InclusiveBoundary,
		timeout:   p.Timeout,
	}
}

// RunScan enqueues one item per expired mark. An enqueue failure aborts
// the run and is returned; marks not yet enqueued are picked up again by
// the next run since nothing was modified.
func (s *Scanner) RunScan(ctx context.Context) (ScanResult, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "expiry.scan", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	started := time.Now()
	now := s.clock.Now()
	res, err := s.scan(ctx, now)
	s.metrics.RecordScan(res.Enqueued, time.Since(started), now, err)

	span.SetAttributes(
		attribute.Int("expiry.selected", res.Selected),
		attribute.Int("expiry.enqueued", res.Enqueued),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("expiry: scan failed",
			"cutoff", res.Cutoff.Format(time.DateOnly),
			"enqueued", res.Enqueued,
			"error", err,
		)
		return res, err
	}

	level := slog.LevelDebug
	if res.Selected > 0 {
		level = slog.LevelInfo
	}
	s.logger.Log(ctx, level, "expiry: scan completed",
		"cutoff", res.Cutoff.Format(time.DateOnly),
		"selected", res.Selected,
		"enqueued", res.Enqueued,
		"skipped", res.Skipped,
	)
	return res, nil
}

func (s *Scanner) scan(ctx context.Context, now time.Time) (ScanResult, error) {
	res := ScanResult{Cutoff: Cutoff(now, s.inclusive)}

	expired, err := s.marks.ExpiredBefore(ctx, res.Cutoff)
	if err != nil {
		return res, fmt.Errorf("expiry: selecting expired marks: %w", err)
	}

	seen := make(map[int64]struct{}, len(expired))
	for _, m := range expired {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		res.Selected++

		added, err := s.queue.Enqueue(ctx, queue.Item{MarkID: m.ID})
		if err != nil {
			return res, fmt.Errorf("expiry: enqueueing mark %d: %w", m.ID, err)
		}
		if added {
			res.Enqueued++
		} else {
			res.Skipped++
		}
	}
	return res, nil
}
