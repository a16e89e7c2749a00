package mark

import "errors"

// Sentinel errors for mark operations.
var (
	// ErrNotFound indicates no mark exists for the requested id or parent.
	ErrNotFound = errors.New("mark: not found")

	// ErrExists indicates the parent already carries a mark.
	ErrExists = errors.New("mark: parent already marked")

	// ErrMissingParent indicates a set request without a parent reference.
	ErrMissingParent = errors.New("mark: parent is required")

	// ErrInvalidExpiry indicates a missing expiration date or one that is
	// not after the current day.
	ErrInvalidExpiry = errors.New("mark: expiration must be a future date")

	// ErrInvalidAction indicates an unknown terminal action.
	ErrInvalidAction = errors.New("mark: invalid action")

	// ErrDisabled indicates marking is switched off for the bundle.
	ErrDisabled = errors.New("mark: temporary content disabled for bundle")
)
