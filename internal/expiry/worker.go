package expiry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/im7mortal/kmutex"
	"github.com/juju/clock"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/expiry/internal/content"
	"github.com/flemzord/expiry/internal/mark"
	"github.com/flemzord/expiry/internal/metrics"
	"github.com/flemzord/expiry/internal/queue"
)

// Outcome is what processing one queue item amounted to.
type Outcome string

// Processing outcomes.
const (
	OutcomeDeleted     Outcome = metrics.OutcomeDeleted
	OutcomeUnpublished Outcome = metrics.OutcomeUnpublished
	OutcomeOrphan      Outcome = metrics.OutcomeOrphan
	OutcomeMissingMark Outcome = metrics.OutcomeMissingMark
	OutcomeRescheduled Outcome = metrics.OutcomeRescheduled
	OutcomeFailed      Outcome = metrics.OutcomeFailed
)

const (
	defaultBatchSize = 50
	defaultLease     = 5 * time.Minute
)

// DrainResult summarizes one worker batch.
type DrainResult struct {
	Claimed     int `json:"claimed"`
	Deleted     int `json:"deleted"`
	Unpublished int `json:"unpublished"`
	Orphans     int `json:"orphans"`
	Missing     int `json:"missing"`
	Rescheduled int `json:"rescheduled"`
	Failed      int `json:"failed"`
}

func (r *DrainResult) add(o Outcome) {
	switch o {
	case OutcomeDeleted:
		r.Deleted++
	case OutcomeUnpublished:
		r.Unpublished++
	case OutcomeOrphan:
		r.Orphans++
	case OutcomeMissingMark:
		r.Missing++
	case OutcomeRescheduled:
		r.Rescheduled++
	default:
		r.Failed++
	}
}

// WorkerParams wires a Worker.
type WorkerParams struct {
	Marks   MarkStore
	Content content.Store
	Queue   queue.Queue
	Clock   Clock // optional; defaults to the wall clock
	Logger  *slog.Logger
	Metrics *metrics.PipelineMetrics // optional

	// Locks serializes work on a parent with mark edits. Share the
	// mark.Service's instance; nil uses a private one.
	Locks *kmutex.Kmutex

	// BatchSize caps items claimed per RunWorkerBatch.
	BatchSize int

	// Lease is how long a claimed item stays invisible to other workers.
	Lease time.Duration

	// InclusiveBoundary must match the Scanner's.
	InclusiveBoundary bool

	// Timeout bounds a whole batch.
	Timeout time.Duration
}

// Worker applies expired marks' actions. Processing is idempotent: a
// redelivered item whose mark is already gone is acknowledged without
// side effects.
type Worker struct {
	marks     MarkStore
	content   content.Store
	queue     queue.Queue
	clock     Clock
	logger    *slog.Logger
	metrics   *metrics.PipelineMetrics
	locks     *kmutex.Kmutex
	batchSize int
	lease     time.Duration
	inclusive bool
	timeout   time.Duration
}

// NewWorker creates a Worker.
func NewWorker(p WorkerParams) *Worker {
	if p.Clock == nil {
		p.Clock = clock.WallClock
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Locks == nil {
		p.Locks = kmutex.New()
	}
	if p.BatchSize <= 0 {
		p.BatchSize = defaultBatchSize
	}
	if p.Lease <= 0 {
		p.Lease = defaultLease
	}
	return &Worker{
		marks:     p.Marks,
		content:   p.Content,
		queue:     p.Queue,
		clock:     p.Clock,
		logger:    p.Logger,
		metrics:   p.Metrics,
		locks:     p.Locks,
		batchSize: p.BatchSize,
		lease:     p.Lease,
		inclusive: p.InclusiveBoundary,
		timeout:   p.Timeout,
	}
}

// RunWorkerBatch claims up to BatchSize items and processes them one by
// one. Items that fail are nacked so the queue's retry policy applies;
// their marks stay in place. The returned error is non-nil only when the
// queue itself could not be read; per-item failures are counted in
// DrainResult.Failed and logged.
func (w *Worker) RunWorkerBatch(ctx context.Context) (DrainResult, error) {
	ctx, cancel := withTimeout(ctx, w.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "expiry.drain")
	defer span.End()

	var res DrainResult
	deliveries, err := w.queue.Claim(ctx, w.batchSize, w.lease)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.logger.Error("expiry: claiming queue items failed", "error", err)
		return res, fmt.Errorf("expiry: claiming items: %w", err)
	}
	res.Claimed = len(deliveries)

	for _, d := range deliveries {
		if ctx.Err() != nil {
			// Leases of the remaining items run out and they are redelivered.
			w.logger.Warn("expiry: drain interrupted", "remaining", res.Claimed-processed(res))
			break
		}
		res.add(w.handle(ctx, d))
	}

	w.recordQueue(ctx)
	span.SetAttributes(
		attribute.Int("expiry.claimed", res.Claimed),
		attribute.Int("expiry.failed", res.Failed),
	)
	if res.Claimed > 0 {
		w.logger.Info("expiry: drain completed",
			"claimed", res.Claimed,
			"deleted", res.Deleted,
			"unpublished", res.Unpublished,
			"orphans", res.Orphans,
			"missing", res.Missing,
			"rescheduled", res.Rescheduled,
			"failed", res.Failed,
		)
	}
	return res, ctx.Err()
}

func processed(r DrainResult) int {
	return r.Deleted + r.Unpublished + r.Orphans + r.Missing + r.Rescheduled + r.Failed
}

// handle processes one delivery and settles it with the queue.
func (w *Worker) handle(ctx context.Context, d queue.Delivery) Outcome {
	started := time.Now()
	outcome, err := w.process(ctx, d.Item)
	w.metrics.RecordItem(string(outcome), time.Since(started))

	if err != nil {
		if ctx.Err() != nil {
			// An interrupted drain is not a failed attempt: the lease runs
			// out and the item comes back with its attempts intact.
			w.logger.Warn("expiry: processing interrupted", "mark_id", d.Item.MarkID, "error", err)
			return OutcomeFailed
		}
		w.logger.Error("expiry: processing failed",
			"mark_id", d.Item.MarkID,
			"attempt", d.Attempt,
			"error", err,
		)
		if nerr := w.queue.Nack(ctx, d, err); nerr != nil {
			w.logger.Warn("expiry: nack failed", "mark_id", d.Item.MarkID, "error", nerr)
		}
		return OutcomeFailed
	}

	if err := w.queue.Ack(ctx, d); err != nil {
		// The work is done and idempotent; a redelivery finds nothing to do.
		w.logger.Warn("expiry: ack failed", "mark_id", d.Item.MarkID, "error", err)
	}
	return outcome
}

// Process handles a single item outside of the queue protocol. It is
// safe to call repeatedly with the same item.
func (w *Worker) Process(ctx context.Context, item queue.Item) error {
	_, err := w.process(ctx, item)
	return err
}

func (w *Worker) process(ctx context.Context, item queue.Item) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "expiry.process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.Int64("expiry.mark_id", item.MarkID)),
	)
	defer span.End()

	outcome, err := w.apply(ctx, item)
	span.SetAttributes(attribute.String("expiry.outcome", string(outcome)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return outcome, err
}

func (w *Worker) apply(ctx context.Context, item queue.Item) (Outcome, error) {
	m, err := w.marks.Get(ctx, item.MarkID)
	if errors.Is(err, mark.ErrNotFound) {
		return OutcomeMissingMark, nil
	}
	if err != nil {
		return OutcomeFailed, fmt.Errorf("expiry: loading mark %d: %w", item.MarkID, err)
	}

	w.locks.Lock(m.Parent)
	defer w.locks.Unlock(m.Parent)

	// Reload under the lock: the mark may have been cleared or moved to a
	// later day since it was enqueued.
	m, err = w.marks.Get(ctx, item.MarkID)
	if errors.Is(err, mark.ErrNotFound) {
		return OutcomeMissingMark, nil
	}
	if err != nil {
		return OutcomeFailed, fmt.Errorf("expiry: loading mark %d: %w", item.MarkID, err)
	}
	if !m.Expired(Cutoff(w.clock.Now(), w.inclusive)) {
		w.logger.Debug("expiry: mark no longer due", "mark_id", m.ID, "expire_at", m.ExpireAt.Format(time.DateOnly))
		return OutcomeRescheduled, nil
	}

	c, err := w.content.Load(ctx, m.Parent)
	if errors.Is(err, content.ErrNotFound) {
		if err := w.marks.Delete(ctx, m.ID); err != nil {
			return OutcomeFailed, fmt.Errorf("expiry: removing orphaned mark %d: %w", m.ID, err)
		}
		w.logger.Info("expiry: removed orphaned mark", "mark_id", m.ID, "content_id", m.Parent)
		return OutcomeOrphan, nil
	}
	if err != nil {
		return OutcomeFailed, fmt.Errorf("expiry: loading content %s: %w", m.Parent, err)
	}

	var outcome Outcome
	switch m.Action {
	case mark.ActionDelete:
		if err := w.content.Delete(ctx, c.ID); err != nil && !errors.Is(err, content.ErrNotFound) {
			return OutcomeFailed, fmt.Errorf("expiry: deleting content %s: %w", c.ID, err)
		}
		outcome = OutcomeDeleted
	case mark.ActionUnpublish:
		if err := w.content.SetPublished(ctx, c.ID, false); err != nil {
			return OutcomeFailed, fmt.Errorf("expiry: unpublishing content %s: %w", c.ID, err)
		}
		outcome = OutcomeUnpublished
	default:
		return OutcomeFailed, fmt.Errorf("expiry: mark %d: %w: %q", m.ID, mark.ErrInvalidAction, m.Action)
	}

	w.logger.Info("expiry: content expired",
		"content_id", c.ID,
		"label", c.Label,
		"action", m.Action.String(),
	)

	if err := w.marks.Delete(ctx, m.ID); err != nil {
		return OutcomeFailed, fmt.Errorf("expiry: retiring mark %d: %w", m.ID, err)
	}
	return outcome, nil
}

// recordQueue refreshes the queue depth gauges.
func (w *Worker) recordQueue(ctx context.Context) {
	if w.metrics == nil {
		return
	}
	st, err := w.queue.Stats(ctx)
	if err != nil {
		w.logger.Debug("expiry: queue stats unavailable", "error", err)
		return
	}
	w.metrics.RecordQueue(st.Pending, st.Leased, st.Dead)
}
