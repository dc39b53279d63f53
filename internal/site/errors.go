package site

import "errors"

// Sentinel errors for site context operations.
var (
	// ErrDestroyed is returned when an operation needs a context that has been destroyed.
	ErrDestroyed = errors.New("site context destroyed")
	// ErrInitFailed wraps the cause of a failed initialization.
	ErrInitFailed = errors.New("site context initialization failed")
	// ErrInitTimeout is returned when a caller gives up waiting for initialization.
	ErrInitTimeout = errors.New("site context initialization timed out")
	// ErrQueueClosed is returned for maintenance tasks submitted or pending after destroy.
	ErrQueueClosed = errors.New("maintenance queue closed")
)
