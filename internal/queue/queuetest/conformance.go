// Package queuetest provides a behavioral test suite shared by Queue
// implementations.
package queuetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"github.com/flemzord/expiry/internal/queue"
)

// Factory builds an empty queue driven by clk under policy.
type Factory func(t *testing.T, clk queue.Clock, policy queue.Policy) queue.Queue

// Epoch is the starting time of the clock handed to factories.
var Epoch = time.Date(2026, 3, 10, 0, 5, 0, 0, time.UTC)

const lease = 30 * time.Second

// Run executes the conformance suite against the implementation built by newQueue.
func Run(t *testing.T, newQueue Factory) {
	t.Helper()

	policy := queue.Policy{MaxAttempts: 3, RetryDelay: 10 * time.Second}
	setup := func(t *testing.T) (queue.Queue, *testclock.Clock) {
		t.Helper()
		clk := testclock.NewClock(Epoch)
		return newQueue(t, clk, policy), clk
	}

	t.Run("enqueue dedupes by mark", func(t *testing.T) {
		t.Parallel()
		q, _ := setup(t)
		ctx := context.Background()

		added, err := q.Enqueue(ctx, queue.Item{MarkID: 1})
		if err != nil || !added {
			t.Fatalf("first Enqueue = %v, %v; want true, nil", added, err)
		}
		added, err = q.Enqueue(ctx, queue.Item{MarkID: 1})
		if err != nil || added {
			t.Fatalf("second Enqueue = %v, %v; want false, nil", added, err)
		}
		st, err := q.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if st.Pending != 1 {
			t.Errorf("Pending = %d, want 1", st.Pending)
		}
	})

	t.Run("claim respects max and order", func(t *testing.T) {
		t.Parallel()
		q, clk := setup(t)
		ctx := context.Background()

		for id := int64(1); id <= 5; id++ {
			mustEnqueue(t, q, id)
			clk.Advance(time.Millisecond)
		}
		ds, err := q.Claim(ctx, 3, lease)
		if err != nil {
			t.Fatalf("Claim: %v", err)
		}
		if len(ds) != 3 {
			t.Fatalf("claimed %d, want 3", len(ds))
		}
		for i, d := range ds {
			if d.Item.MarkID != int64(i+1) {
				t.Errorf("delivery %d mark = %d, want %d", i, d.Item.MarkID, i+1)
			}
			if d.Attempt != 1 {
				t.Errorf("delivery %d attempt = %d, want 1", i, d.Attempt)
			}
		}

		rest, err := q.Claim(ctx, 10, lease)
		if err != nil {
			t.Fatalf("Claim: %v", err)
		}
		if len(rest) != 2 {
			t.Errorf("second claim got %d, want 2", len(rest))
		}
	})

	t.Run("ack removes item", func(t *testing.T) {
		t.Parallel()
		q, _ := setup(t)
		ctx := context.Background()

		mustEnqueue(t, q, 7)
		d := claimOne(t, q)
		if err := q.Ack(ctx, d); err != nil {
			t.Fatalf("Ack: %v", err)
		}
		st, _ := q.Stats(ctx)
		if st.Pending+st.Leased != 0 {
			t.Errorf("stats after ack = %+v, want empty", st)
		}
		if err := q.Ack(ctx, d); !errors.Is(err, queue.ErrLeaseLost) {
			t.Errorf("double Ack err = %v, want ErrLeaseLost", err)
		}
		// Mark can be enqueued again once its item is gone.
		if added, _ := q.Enqueue(ctx, queue.Item{MarkID: 7}); !added {
			t.Error("re-enqueue after ack was rejected")
		}
	})

	t.Run("expired lease is redelivered", func(t *testing.T) {
		t.Parallel()
		q, clk := setup(t)
		ctx := context.Background()

		mustEnqueue(t, q, 9)
		first := claimOne(t, q)

		if ds, _ := q.Claim(ctx, 1, lease); len(ds) != 0 {
			t.Fatalf("leased item claimed again before expiry")
		}

		clk.Advance(lease + time.Second)
		second := claimOne(t, q)
		if second.ID != first.ID {
			t.Errorf("redelivered id = %s, want %s", second.ID, first.ID)
		}
		if second.Attempt != 2 {
			t.Errorf("attempt = %d, want 2", second.Attempt)
		}
		if err := q.Ack(ctx, first); !errors.Is(err, queue.ErrLeaseLost) {
			t.Errorf("stale Ack err = %v, want ErrLeaseLost", err)
		}
		if err := q.Ack(ctx, second); err != nil {
			t.Errorf("Ack current lease: %v", err)
		}
	})

	t.Run("nack delays redelivery", func(t *testing.T) {
		t.Parallel()
		q, clk := setup(t)
		ctx := context.Background()

		mustEnqueue(t, q, 11)
		d := claimOne(t, q)
		if err := q.Nack(ctx, d, errors.New("boom")); err != nil {
			t.Fatalf("Nack: %v", err)
		}
		if ds, _ := q.Claim(ctx, 1, lease); len(ds) != 0 {
			t.Fatal("nacked item visible before retry delay")
		}
		clk.Advance(policy.RetryDelay)
		again := claimOne(t, q)
		if again.Attempt != 2 {
			t.Errorf("attempt = %d, want 2", again.Attempt)
		}
	})

	t.Run("exhausted item is dead-lettered and requeued", func(t *testing.T) {
		t.Parallel()
		q, clk := setup(t)
		ctx := context.Background()

		mustEnqueue(t, q, 13)
		for i := 0; i < policy.MaxAttempts; i++ {
			d := claimOne(t, q)
			if err := q.Nack(ctx, d, errors.New("content store down")); err != nil {
				t.Fatalf("Nack %d: %v", i, err)
			}
			clk.Advance(policy.RetryDelay)
		}

		if ds, _ := q.Claim(ctx, 1, lease); len(ds) != 0 {
			t.Fatal("dead-lettered item still claimable")
		}
		dead, err := q.DeadLetters(ctx)
		if err != nil {
			t.Fatalf("DeadLetters: %v", err)
		}
		if len(dead) != 1 {
			t.Fatalf("dead letters = %d, want 1", len(dead))
		}
		dl := dead[0]
		if dl.Item.MarkID != 13 || dl.Attempts != policy.MaxAttempts || dl.LastError != "content store down" {
			t.Errorf("dead letter = %+v", dl)
		}
		if added, _ := q.Enqueue(ctx, queue.Item{MarkID: 13}); added {
			t.Error("Enqueue accepted a dead-lettered mark")
		}

		if err := q.Requeue(ctx, dl.ID); err != nil {
			t.Fatalf("Requeue: %v", err)
		}
		d := claimOne(t, q)
		if d.Item.MarkID != 13 || d.Attempt != 1 {
			t.Errorf("requeued delivery = %+v", d)
		}
		if err := q.Requeue(ctx, "missing"); !errors.Is(err, queue.ErrNotFound) {
			t.Errorf("Requeue unknown err = %v, want ErrNotFound", err)
		}
	})

	t.Run("stats split pending and leased", func(t *testing.T) {
		t.Parallel()
		q, _ := setup(t)
		ctx := context.Background()

		mustEnqueue(t, q, 21)
		mustEnqueue(t, q, 22)
		claimOne(t, q)

		st, err := q.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if st.Pending != 1 || st.Leased != 1 || st.Dead != 0 {
			t.Errorf("stats = %+v, want 1 pending 1 leased", st)
		}
	})
}

func mustEnqueue(t *testing.T, q queue.Queue, markID int64) {
	t.Helper()
	if _, err := q.Enqueue(context.Background(), queue.Item{MarkID: markID}); err != nil {
		t.Fatalf("Enqueue(%d): %v", markID, err)
	}
}

func claimOne(t *testing.T, q queue.Queue) queue.Delivery {
	t.Helper()
	ds, err := q.Claim(context.Background(), 1, lease)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if len(ds) != 1 {
		t.Fatalf("claimed %d items, want 1", len(ds))
	}
	return ds[0]
}
