package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrStoreUnavailable indicates the persistence layer could not be
	// reached; callers decide between failing closed and failing the
	// request.
	ErrStoreUnavailable = errors.New("store unavailable")
)
