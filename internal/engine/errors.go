package engine

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrRemote marks a failed call to the book engine.
var ErrRemote = errors.New("engine request failed")

// APIError describes a non-2xx engine response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("engine %s %s returned status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("engine %s %s returned status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Unwrap lets errors.Is(err, ErrRemote) match API errors.
func (e *APIError) Unwrap() error {
	return ErrRemote
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

func remoteError(method, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrRemote, method, path, err)
}
