package notebook

import "errors"

var (
	// ErrNotFound is returned when a notebook, note, share, label, or history
	// entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned for duplicate shares.
	ErrConflict = errors.New("already exists")

	// ErrInvalidInput is returned for structurally invalid input (empty title,
	// non-shareable level, self-share, and so on).
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnavailable is returned when the content store cannot be reached
	// (timeout, broken connection). Maps to 503.
	ErrUnavailable = errors.New("store unavailable")
)
