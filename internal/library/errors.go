package library

import "errors"

var (
	// ErrNotFound indicates the item does not exist.
	ErrNotFound = errors.New("item not found")
	// ErrInvalidTransition indicates the requested move is not in the
	// adjacency table.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStateConflict indicates the item's persisted status no longer
	// matches the expected source status; another worker advanced it first.
	ErrStateConflict = errors.New("status changed by concurrent writer")
)
