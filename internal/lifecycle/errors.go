package lifecycle

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a closed manager.
var ErrClosed = errors.New("lifecycle manager closed")

// CreateError reports a context creation abandoned after every attempt failed.
type CreateError struct {
	Site     string
	Attempts int
	Err      error
}

// Error implements error.
func (e *CreateError) Error() string {
	return fmt.Sprintf("lifecycle: create %s: gave up after %d attempt(s): %v", e.Site, e.Attempts, e.Err)
}

// Unwrap returns the error of the last attempt.
func (e *CreateError) Unwrap() error { return e.Err }
