package store

import "errors"

// Sentinel errors for the content store.
var (
	// ErrSiteNotFound indicates the site folder does not exist or is not a directory.
	ErrSiteNotFound = errors.New("site folder not found")
	// ErrInvalidPath indicates a content path escapes the site root.
	ErrInvalidPath = errors.New("invalid content path")
	// ErrNotFound indicates no content item exists at the requested path.
	ErrNotFound = errors.New("content not found")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("store closed")
)
