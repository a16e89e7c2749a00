package queue

import "errors"

// Sentinel errors for queue operations.
var (
	// ErrLeaseLost indicates the delivery's lease expired and the item was
	// claimed again, or the item is already gone.
	ErrLeaseLost = errors.New("queue: lease lost")

	// ErrNotFound indicates an unknown dead-letter id.
	ErrNotFound = errors.New("queue: item not found")
)
