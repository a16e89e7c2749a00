package mark

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// InMemoryStore is a thread-safe, in-memory implementation of Store.
type InMemoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	marks    map[int64]Mark
	byParent map[string]int64 // parent → mark id
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		marks:    make(map[int64]Mark),
		byParent: make(map[string]int64),
	}
}

// Compile-time interface check.
var _ Store = (*InMemoryStore)(nil)

// Create implements Store.
func (s *InMemoryStore) Create(_ context.Context, m Mark) (Mark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byParent[m.Parent]; exists {
		return Mark{}, ErrExists
	}

	s.nextID++
	m.ID = s.nextID
	s.marks[m.ID] = m
	s.byParent[m.Parent] = m.ID
	return m, nil
}

// Update implements Store.
func (s *InMemoryStore) Update(_ context.Context, m Mark) (Mark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.marks[m.ID]
	if !ok {
		return Mark{}, ErrNotFound
	}
	if old.Parent != m.Parent {
		if _, taken := s.byParent[m.Parent]; taken {
			return Mark{}, ErrExists
		}
		delete(s.byParent, old.Parent)
		s.byParent[m.Parent] = m.ID
	}
	s.marks[m.ID] = m
	return m, nil
}

// Get implements Store.
func (s *InMemoryStore) Get(_ context.Context, id int64) (Mark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.marks[id]
	if !ok {
		return Mark{}, ErrNotFound
	}
	return m, nil
}

// GetByParent implements Store.
func (s *InMemoryStore) GetByParent(_ context.Context, parent string) (Mark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byParent[parent]
	if !ok {
		return Mark{}, ErrNotFound
	}
	return s.marks[id], nil
}

// Delete implements Store.
func (s *InMemoryStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.marks[id]
	if !ok {
		return nil
	}
	delete(s.marks, id)
	delete(s.byParent, m.Parent)
	return nil
}

// DeleteByParent implements Store.
func (s *InMemoryStore) DeleteByParent(_ context.Context, parent string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byParent[parent]
	if !ok {
		return false, nil
	}
	delete(s.marks, id)
	delete(s.byParent, parent)
	return true, nil
}

// ExpiredBefore implements Store.
func (s *InMemoryStore) ExpiredBefore(_ context.Context, cutoff time.Time) ([]Mark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Mark
	for _, m := range s.marks {
		if m.Expired(cutoff) {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b Mark) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// List implements Store.
func (s *InMemoryStore) List(_ context.Context) ([]Mark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Mark, 0, len(s.marks))
	for _, m := range s.marks {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b Mark) int {
		if c := a.ExpireAt.Compare(b.ExpireAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Len returns the number of stored marks.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.marks)
}
