package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
)

type memEntry struct {
	id         string
	item       Item
	attempts   int
	token      string
	visibleAt  time.Time
	enqueuedAt time.Time
	seq        uint64
}

// InMemoryQueue is a process-local Queue. It loses its contents on restart
// and is meant for tests and single-shot runs; store.sqlite provides the
// durable implementation.
type InMemoryQueue struct {
	mu      sync.Mutex
	policy  Policy
	clock   Clock
	seq     uint64
	entries map[string]*memEntry
	byMark  map[int64]string
	dead    map[string]DeadLetter
	deadIdx map[int64]string
}

// Compile-time interface check.
var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates an empty in-memory queue. A nil clock uses the
// wall clock.
func NewInMemoryQueue(policy Policy, clk Clock) *InMemoryQueue {
	if clk == nil {
		clk = clock.WallClock
	}
	return &InMemoryQueue{
		policy:  policy.WithDefaults(),
		clock:   clk,
		entries: make(map[string]*memEntry),
		byMark:  make(map[int64]string),
		dead:    make(map[string]DeadLetter),
		deadIdx: make(map[int64]string),
	}
}

// Enqueue implements Queue.
func (q *InMemoryQueue) Enqueue(_ context.Context, item Item) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.byMark[item.MarkID]; ok {
		return false, nil
	}
	if _, ok := q.deadIdx[item.MarkID]; ok {
		return false, nil
	}

	now := q.clock.Now()
	q.seq++
	e := &memEntry{
		id:         uuid.NewString(),
		item:       item,
		visibleAt:  now,
		enqueuedAt: now,
		seq:        q.seq,
	}
	q.entries[e.id] = e
	q.byMark[item.MarkID] = e.id
	return true, nil
}

// Claim implements Queue.
func (q *InMemoryQueue) Claim(_ context.Context, max int, lease time.Duration) ([]Delivery, error) {
	if max <= 0 {
		return nil, nil
	}
	if lease <= 0 {
		return nil, fmt.Errorf("queue: lease must be positive, got %s", lease)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	visible := make([]*memEntry, 0, len(q.entries))
	for _, e := range q.entries {
		if !e.visibleAt.After(now) {
			visible = append(visible, e)
		}
	}
	sort.Slice(visible, func(i, j int) bool { return visible[i].seq < visible[j].seq })
	if len(visible) > max {
		visible = visible[:max]
	}

	out := make([]Delivery, 0, len(visible))
	for _, e := range visible {
		e.attempts++
		e.token = uuid.NewString()
		e.visibleAt = now.Add(lease)
		out = append(out, Delivery{
			ID:          e.id,
			Item:        e.item,
			Attempt:     e.attempts,
			Token:       e.token,
			EnqueuedAt:  e.enqueuedAt,
			LeasedUntil: e.visibleAt,
		})
	}
	return out, nil
}

// leased returns the entry for d if d still holds its lease.
// Caller must hold q.mu.
func (q *InMemoryQueue) leased(d Delivery) (*memEntry, error) {
	e, ok := q.entries[d.ID]
	if !ok || e.token == "" || e.token != d.Token {
		return nil, ErrLeaseLost
	}
	return e, nil
}

// Ack implements Queue.
func (q *InMemoryQueue) Ack(_ context.Context, d Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, err := q.leased(d)
	if err != nil {
		return err
	}
	delete(q.entries, e.id)
	delete(q.byMark, e.item.MarkID)
	return nil
}

// Nack implements Queue.
func (q *InMemoryQueue) Nack(_ context.Context, d Delivery, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, err := q.leased(d)
	if err != nil {
		return err
	}

	now := q.clock.Now()
	if q.policy.Exhausted(e.attempts) {
		delete(q.entries, e.id)
		delete(q.byMark, e.item.MarkID)
		q.dead[e.id] = DeadLetter{
			ID:        e.id,
			Item:      e.item,
			Attempts:  e.attempts,
			LastError: causeText(cause),
			DeadAt:    now,
		}
		q.deadIdx[e.item.MarkID] = e.id
		return nil
	}

	e.token = ""
	e.visibleAt = now.Add(q.policy.RetryDelay)
	return nil
}

// Stats implements Queue.
func (q *InMemoryQueue) Stats(_ context.Context) (Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	var st Stats
	for _, e := range q.entries {
		if e.token != "" && e.visibleAt.After(now) {
			st.Leased++
		} else {
			st.Pending++
		}
	}
	st.Dead = len(q.dead)
	return st, nil
}

// DeadLetters implements Queue.
func (q *InMemoryQueue) DeadLetters(_ context.Context) ([]DeadLetter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]DeadLetter, 0, len(q.dead))
	for _, dl := range q.dead {
		out = append(out, dl)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DeadAt.Equal(out[j].DeadAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].DeadAt.Before(out[j].DeadAt)
	})
	return out, nil
}

// Requeue implements Queue.
func (q *InMemoryQueue) Requeue(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	dl, ok := q.dead[id]
	if !ok {
		return ErrNotFound
	}
	delete(q.dead, id)
	delete(q.deadIdx, dl.Item.MarkID)

	if _, queued := q.byMark[dl.Item.MarkID]; queued {
		return nil
	}
	now := q.clock.Now()
	q.seq++
	q.entries[id] = &memEntry{
		id:         id,
		item:       dl.Item,
		visibleAt:  now,
		enqueuedAt: now,
		seq:        q.seq,
	}
	q.byMark[dl.Item.MarkID] = id
	return nil
}

// Len returns the number of queued (pending or leased) items.
func (q *InMemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func causeText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
