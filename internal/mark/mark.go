// Package mark holds temporary marks: the record saying a content item
// expires on a given day and what happens to it then.
package mark

import (
	"fmt"
	"time"
)

// Action is the terminal action applied to a content item when its mark expires.
type Action string

const (
	// ActionUnpublish flips the content item's published flag to false.
	ActionUnpublish Action = "unpublish"

	// ActionDelete removes the content item.
	ActionDelete Action = "delete"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	return a == ActionUnpublish || a == ActionDelete
}

// String implements fmt.Stringer.
func (a Action) String() string { return string(a) }

// ParseAction converts s into an Action. An empty string yields
// ActionUnpublish, the non-destructive default.
func ParseAction(s string) (Action, error) {
	if s == "" {
		return ActionUnpublish, nil
	}
	a := Action(s)
	if !a.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
	}
	return a, nil
}

// Mark is one temporary mark. There is at most one per Parent.
type Mark struct {
	ID        int64     `json:"id"`
	Owner     string    `json:"owner"`
	Parent    string    `json:"parent"`
	ExpireAt  time.Time `json:"expire_at"`
	Action    Action    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
	ChangedAt time.Time `json:"changed_at"`
}

// Expired reports whether the mark falls strictly before cutoff.
func (m Mark) Expired(cutoff time.Time) bool {
	return m.ExpireAt.Before(cutoff)
}

// CalendarDay returns midnight UTC of the calendar date t shows in its own
// location: 2026-10-20 00:00 +02:00 is 2026-10-20, not 2026-10-19.
func CalendarDay(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

// DayStart returns midnight UTC of the day t falls on (in UTC).
func DayStart(t time.Time) time.Time {
	y, mo, d := t.UTC().Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}
