// Package content describes the content items governed by temporary marks
// and the store the expiration worker mutates.
package content

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the content item does not exist.
var ErrNotFound = errors.New("content: not found")

// StoreService is the service registry name of the active Store.
const StoreService = "content.store"

// Item is a content item as seen by the expiration pipeline.
type Item struct {
	ID        string    `json:"id"`
	Bundle    string    `json:"bundle"`
	Label     string    `json:"label"`
	Published bool      `json:"published"`
	ChangedAt time.Time `json:"changed_at"`
}

// Store is the content store the pipeline acts upon.
// Implementations must be safe for concurrent use.
type Store interface {
	// Load returns the item, or ErrNotFound.
	Load(ctx context.Context, id string) (Item, error)

	// Delete removes the item. Returns ErrNotFound if it does not exist.
	Delete(ctx context.Context, id string) error

	// SetPublished persists the item's published flag.
	// Returns ErrNotFound if it does not exist.
	SetPublished(ctx context.Context, id string, published bool) error
}

// Writer is implemented by stores that also accept new or replaced items.
// The bundled stores implement it; an external CMS adapter need not.
type Writer interface {
	Put(ctx context.Context, item Item) error
}
