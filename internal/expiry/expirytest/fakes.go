// Package expirytest provides fault-injecting test doubles for the
// expiration pipeline's collaborators.
package expirytest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flemzord/expiry/internal/content"
	"github.com/flemzord/expiry/internal/mark"
	"github.com/flemzord/expiry/internal/queue"
)

// ContentStore wraps a content.Store and fails calls on demand.
type ContentStore struct {
	content.Store

	mu              sync.Mutex
	LoadErr         error
	DeleteErr       error
	SetPublishedErr error

	// BeforeLoad, when set, runs at the start of every Load.
	BeforeLoad func()

	Deletes     atomic.Int32
	Unpublishes atomic.Int32
}

// Compile-time interface check.
var _ content.Store = (*ContentStore)(nil)

// NewContentStore wraps inner.
func NewContentStore(inner content.Store) *ContentStore {
	return &ContentStore{Store: inner}
}

// Fail sets the errors returned by Load, Delete and SetPublished. Nil
// clears a failure.
func (s *ContentStore) Fail(load, del, setPublished error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LoadErr, s.DeleteErr, s.SetPublishedErr = load, del, setPublished
}

// Load implements content.Store.
func (s *ContentStore) Load(ctx context.Context, id string) (content.Item, error) {
	s.mu.Lock()
	err, hook := s.LoadErr, s.BeforeLoad
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return content.Item{}, err
	}
	return s.Store.Load(ctx, id)
}

// Delete implements content.Store.
func (s *ContentStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	err := s.DeleteErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.Deletes.Add(1)
	return s.Store.Delete(ctx, id)
}

// SetPublished implements content.Store.
func (s *ContentStore) SetPublished(ctx context.Context, id string, published bool) error {
	s.mu.Lock()
	err := s.SetPublishedErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if !published {
		s.Unpublishes.Add(1)
	}
	return s.Store.SetPublished(ctx, id, published)
}

// MarkStore wraps a mark.Store and fails calls on demand.
type MarkStore struct {
	mark.Store

	mu         sync.Mutex
	GetErr     error
	DeleteErr  error
	ExpiredErr error

	// Writes counts Create, Update, Delete and DeleteByParent calls.
	Writes atomic.Int32
}

// Compile-time interface check.
var _ mark.Store = (*MarkStore)(nil)

// NewMarkStore wraps inner.
func NewMarkStore(inner mark.Store) *MarkStore {
	return &MarkStore{Store: inner}
}

func (s *MarkStore) errs() (get, del, expired error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.GetErr, s.DeleteErr, s.ExpiredErr
}

// Fail sets the errors returned by Get, Delete and ExpiredBefore.
func (s *MarkStore) Fail(get, del, expired error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GetErr, s.DeleteErr, s.ExpiredErr = get, del, expired
}

// Get implements mark.Store.
func (s *MarkStore) Get(ctx context.Context, id int64) (mark.Mark, error) {
	if err, _, _ := s.errs(); err != nil {
		return mark.Mark{}, err
	}
	return s.Store.Get(ctx, id)
}

// Delete implements mark.Store.
func (s *MarkStore) Delete(ctx context.Context, id int64) error {
	if _, err, _ := s.errs(); err != nil {
		return err
	}
	s.Writes.Add(1)
	return s.Store.Delete(ctx, id)
}

// ExpiredBefore implements mark.Store.
func (s *MarkStore) ExpiredBefore(ctx context.Context, cutoff time.Time) ([]mark.Mark, error) {
	if _, _, err := s.errs(); err != nil {
		return nil, err
	}
	return s.Store.ExpiredBefore(ctx, cutoff)
}

// Create implements mark.Store.
func (s *MarkStore) Create(ctx context.Context, m mark.Mark) (mark.Mark, error) {
	s.Writes.Add(1)
	return s.Store.Create(ctx, m)
}

// Update implements mark.Store.
func (s *MarkStore) Update(ctx context.Context, m mark.Mark) (mark.Mark, error) {
	s.Writes.Add(1)
	return s.Store.Update(ctx, m)
}

// DeleteByParent implements mark.Store.
func (s *MarkStore) DeleteByParent(ctx context.Context, parent string) (bool, error) {
	s.Writes.Add(1)
	return s.Store.DeleteByParent(ctx, parent)
}

// Queue wraps a queue.Queue, fails Enqueue after a number of successes and
// records acknowledgements.
type Queue struct {
	queue.Queue

	// FailEnqueueAfter makes every Enqueue beyond the first n fail with
	// EnqueueErr. Negative disables the failure.
	FailEnqueueAfter int
	EnqueueErr       error

	mu       sync.Mutex
	enqueued int
	acked    []int64
	nacked   []int64
}

// Compile-time interface check.
var _ queue.Queue = (*Queue)(nil)

// NewQueue wraps inner with failures disabled.
func NewQueue(inner queue.Queue) *Queue {
	return &Queue{Queue: inner, FailEnqueueAfter: -1}
}

// Enqueue implements queue.Queue.
func (q *Queue) Enqueue(ctx context.Context, item queue.Item) (bool, error) {
	q.mu.Lock()
	if q.FailEnqueueAfter >= 0 && q.enqueued >= q.FailEnqueueAfter {
		q.mu.Unlock()
		return false, q.EnqueueErr
	}
	q.enqueued++
	q.mu.Unlock()
	return q.Queue.Enqueue(ctx, item)
}

// Ack implements queue.Queue.
func (q *Queue) Ack(ctx context.Context, d queue.Delivery) error {
	if err := q.Queue.Ack(ctx, d); err != nil {
		return err
	}
	q.mu.Lock()
	q.acked = append(q.acked, d.Item.MarkID)
	q.mu.Unlock()
	return nil
}

// Nack implements queue.Queue.
func (q *Queue) Nack(ctx context.Context, d queue.Delivery, cause error) error {
	if err := q.Queue.Nack(ctx, d, cause); err != nil {
		return err
	}
	q.mu.Lock()
	q.nacked = append(q.nacked, d.Item.MarkID)
	q.mu.Unlock()
	return nil
}

// Acked returns the mark ids of acknowledged deliveries in order.
func (q *Queue) Acked() []int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]int64(nil), q.acked...)
}

// Nacked returns the mark ids of negatively acknowledged deliveries in order.
func (q *Queue) Nacked() []int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]int64(nil), q.nacked...)
}
