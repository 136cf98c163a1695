package cache

import "errors"

// Canonical, backend-neutral errors stores must return.
var (
	ErrNotFound = errors.New("cache: not found")
	ErrClosed   = errors.New("cache: store closed")
	// ErrRejected reports a write the store declined to keep.
	ErrRejected = errors.New("cache: entry rejected")
)
