package transcript

import "errors"

var (
	// ErrNotFound is returned when no transcript with the given id exists in
	// the store.
	ErrNotFound = errors.New("transcript not found")

	// ErrClosed is returned by Append after Close.
	ErrClosed = errors.New("transcript store closed")
)
