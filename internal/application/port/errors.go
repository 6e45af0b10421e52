package port

import "errors"

var (
	// ErrNotFound is returned by repositories when no row matches
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a conditional update matched no rows, i.e.
	// the row was concurrently modified out from under the caller
	ErrConflict = errors.New("conflicting update")
)
