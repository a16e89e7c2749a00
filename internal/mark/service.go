package mark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/im7mortal/kmutex"
	"github.com/juju/clock"
)

// Config is the read-only configuration consulted by the Service.
// settings.Store satisfies it.
type Config interface {
	IsEnabled(bundle string) bool
	DefaultExpireDays(bundle string) int
}

// Clock supplies the current time. github.com/juju/clock implementations
// satisfy it.
type Clock interface {
	Now() time.Time
}

const defaultExpireDays = 7

// SetRequest is the input of SetTemporary.
type SetRequest struct {
	Parent string
	Owner  string

	// Bundle is the parent's content type. When set, marking must be
	// enabled for it and a zero ExpireAt falls back to its default length.
	Bundle string

	ExpireAt time.Time
	Action   Action
}

// ServiceParams wires a Service.
type ServiceParams struct {
	Store  Store
	Config Config // optional; nil disables enablement checks
	Clock  Clock  // optional; defaults to the wall clock
	Logger *slog.Logger

	// Locks serializes writes per parent. Share it with other writers of
	// the same marks (the expiration worker) to serialize with them too.
	Locks *kmutex.Kmutex
}

// Service implements the mark lifecycle operations used by the editing
// workflow. Writes for the same parent are serialized; writes for
// different parents proceed independently.
type Service struct {
	store  Store
	config Config
	clock  Clock
	locks  *kmutex.Kmutex
	logger *slog.Logger
}

// NewService creates a Service.
func NewService(p ServiceParams) *Service {
	if p.Clock == nil {
		p.Clock = clock.WallClock
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Locks == nil {
		p.Locks = kmutex.New()
	}
	return &Service{
		store:  p.Store,
		config: p.Config,
		clock:  p.Clock,
		locks:  p.Locks,
		logger: p.Logger,
	}
}

// SetTemporary creates the mark for req.Parent, or updates the expiration,
// action and owner of the existing one. ExpireAt names a calendar date: its
// date in its own location is kept and stored as midnight UTC. That date
// must fall after the current UTC day.
func (s *Service) SetTemporary(ctx context.Context, req SetRequest) (Mark, error) {
	if req.Parent == "" {
		return Mark{}, ErrMissingParent
	}
	if req.Action == "" {
		req.Action = ActionUnpublish
	}
	if !req.Action.Valid() {
		return Mark{}, fmt.Errorf("%w: %q", ErrInvalidAction, req.Action)
	}
	if req.Bundle != "" && s.config != nil && !s.config.IsEnabled(req.Bundle) {
		return Mark{}, fmt.Errorf("%w: %s", ErrDisabled, req.Bundle)
	}

	now := s.clock.Now().UTC()
	expireAt := req.ExpireAt
	if expireAt.IsZero() {
		if req.Bundle == "" {
			return Mark{}, ErrInvalidExpiry
		}
		expireAt = s.DefaultExpiry(req.Bundle)
	}
	expireAt = CalendarDay(expireAt)
	if !expireAt.After(DayStart(now)) {
		return Mark{}, fmt.Errorf("%w: %s", ErrInvalidExpiry, expireAt.Format(time.DateOnly))
	}

	s.locks.Lock(req.Parent)
	defer s.locks.Unlock(req.Parent)

	existing, err := s.store.GetByParent(ctx, req.Parent)
	switch {
	case errors.Is(err, ErrNotFound):
		m, err := s.store.Create(ctx, Mark{
			Owner:     req.Owner,
			Parent:    req.Parent,
			ExpireAt:  expireAt,
			Action:    req.Action,
			CreatedAt: now,
			ChangedAt: now,
		})
		if errors.Is(err, ErrExists) {
			// Another process created it between our read and insert.
			existing, err = s.store.GetByParent(ctx, req.Parent)
			if err != nil {
				return Mark{}, fmt.Errorf("mark: reload after conflict: %w", err)
			}
			return s.update(ctx, existing, req.Owner, expireAt, req.Action, now)
		}
		if err != nil {
			return Mark{}, fmt.Errorf("mark: create: %w", err)
		}
		s.logger.Info("mark: created", "parent", m.Parent, "expire_at", m.ExpireAt.Format(time.DateOnly), "action", m.Action)
		return m, nil
	case err != nil:
		return Mark{}, fmt.Errorf("mark: lookup: %w", err)
	}

	return s.update(ctx, existing, req.Owner, expireAt, req.Action, now)
}

func (s *Service) update(ctx context.Context, m Mark, owner string, expireAt time.Time, action Action, now time.Time) (Mark, error) {
	if owner != "" {
		m.Owner = owner
	}
	m.ExpireAt = expireAt
	m.Action = action
	m.ChangedAt = now

	updated, err := s.store.Update(ctx, m)
	if err != nil {
		return Mark{}, fmt.Errorf("mark: update: %w", err)
	}
	s.logger.Info("mark: updated", "parent", updated.Parent, "expire_at", updated.ExpireAt.Format(time.DateOnly), "action", updated.Action)
	return updated, nil
}

// ClearTemporary removes the mark for parent. It is a no-op when none exists.
func (s *Service) ClearTemporary(ctx context.Context, parent string) error {
	if parent == "" {
		return ErrMissingParent
	}

	s.locks.Lock(parent)
	defer s.locks.Unlock(parent)

	removed, err := s.store.DeleteByParent(ctx, parent)
	if err != nil {
		return fmt.Errorf("mark: clear: %w", err)
	}
	if removed {
		s.logger.Info("mark: cleared", "parent", parent)
	}
	return nil
}

// GetTemporaryMark returns the mark for parent, or ErrNotFound.
func (s *Service) GetTemporaryMark(ctx context.Context, parent string) (Mark, error) {
	return s.store.GetByParent(ctx, parent)
}

// List returns every mark.
func (s *Service) List(ctx context.Context) ([]Mark, error) {
	return s.store.List(ctx)
}

// DefaultExpiry returns the default expiration day for bundle: today plus
// the bundle's configured number of days, at midnight UTC.
func (s *Service) DefaultExpiry(bundle string) time.Time {
	days := defaultExpireDays
	if s.config != nil {
		days = s.config.DefaultExpireDays(bundle)
	}
	return DayStart(s.clock.Now()).AddDate(0, 0, days)
}

// ContentDeleted drops the mark of a content item deleted outside the
// pipeline so it does not linger as an orphan until the next drain.
func (s *Service) ContentDeleted(ctx context.Context, parent string) error {
	return s.ClearTemporary(ctx, parent)
}

// StatusMessage returns the notice shown to viewer when opening parent,
// or "" when parent carries no mark. The date is rendered in loc
// (UTC when nil).
func (s *Service) StatusMessage(ctx context.Context, parent, viewer string, loc *time.Location) (string, error) {
	m, err := s.store.GetByParent(ctx, parent)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("mark: status message: %w", err)
	}
	return FormatStatus(m, viewer, loc), nil
}

// FormatStatus renders the status notice for m as seen by viewer.
func FormatStatus(m Mark, viewer string, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	date := m.ExpireAt.In(loc).Format("02.01.2006")
	if m.Owner != "" && m.Owner == viewer {
		return fmt.Sprintf("You have marked the content as temporary. It will automatically expire on %s.", date)
	}
	owner := m.Owner
	if owner == "" {
		owner = "Someone"
	}
	return fmt.Sprintf("%s has marked the content as temporary. It will automatically expire on %s.", owner, date)
}
