package mark

import (
	"context"
	"time"
)

// StoreService is the service registry name of the active Store.
const StoreService = "mark.store"

// Store persists marks. Lookups by parent are indexed.
// Implementations must be safe for concurrent use.
type Store interface {
	// Create inserts m and returns it with its assigned ID.
	// Returns ErrExists if m.Parent already has a mark.
	Create(ctx context.Context, m Mark) (Mark, error)

	// Update overwrites the mark with m.ID. Returns ErrNotFound if absent.
	Update(ctx context.Context, m Mark) (Mark, error)

	// Get returns the mark with the given id, or ErrNotFound.
	Get(ctx context.Context, id int64) (Mark, error)

	// GetByParent returns the mark governing parent, or ErrNotFound.
	GetByParent(ctx context.Context, parent string) (Mark, error)

	// Delete removes the mark with the given id. Deleting a missing mark
	// is not an error.
	Delete(ctx context.Context, id int64) error

	// DeleteByParent removes the mark governing parent and reports whether
	// one existed.
	DeleteByParent(ctx context.Context, parent string) (bool, error)

	// ExpiredBefore returns every mark whose ExpireAt is strictly before
	// cutoff, ordered by ID.
	ExpiredBefore(ctx context.Context, cutoff time.Time) ([]Mark, error)

	// List returns all marks ordered by ExpireAt, then ID.
	List(ctx context.Context) ([]Mark, error)
}
