// Package expiry implements the expiration pipeline. The Scanner selects
// marks whose day has passed and enqueues one work item per mark. The
// Worker drains the queue, applies each mark's action to its content item
// and retires the mark. Both are safe to abort mid-batch: every item is
// acted upon, retired and acknowledged on its own, and anything left
// leased is redelivered once its lease runs out.
package expiry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/flemzord/expiry/internal/mark"
)

var tracer = otel.Tracer("github.com/flemzord/expiry/internal/expiry")

// Clock supplies the current time. github.com/juju/clock implementations
// satisfy it.
type Clock interface {
	Now() time.Time
}

// MarkStore is the subset of mark.Store used by the pipeline.
type MarkStore interface {
	Get(ctx context.Context, id int64) (mark.Mark, error)
	Delete(ctx context.Context, id int64) error
	ExpiredBefore(ctx context.Context, cutoff time.Time) ([]mark.Mark, error)
}

// Cutoff returns the exclusive bound for expired marks at now: the start
// of the current UTC day, or of the next one when inclusive is set so
// that marks expiring today are acted upon today.
func Cutoff(now time.Time, inclusive bool) time.Time {
	c := mark.DayStart(now)
	if inclusive {
		c = c.AddDate(0, 0, 1)
	}
	return c
}

// withTimeout bounds ctx by d when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
