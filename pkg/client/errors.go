// Package client is the typed HTTP client for the workflow backend. Every
// call runs through the resilience stack: rate limiter, then circuit breaker,
// then bounded retry.
package client

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrRequestTimeout distinguishes deadline expiry from other transport
// failures; the editor surfaces it differently.
var ErrRequestTimeout = errors.New("request timeout")

// APIError is a non-2xx backend response.
type APIError struct {
	Status  int    // HTTP status code
	Code    string // Machine-readable error code from the body, if any
	Message string // Human-readable message
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
	}

	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsNotFound checks if an error is a 404 backend response.
func IsNotFound(err error) bool {
	var apiErr *APIError

	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// IsTimeout checks if an error indicates deadline expiry.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrRequestTimeout)
}

// retryable reports whether a failed attempt is worth repeating. Client-side
// mistakes are not; rate limiting and server faults are.
func retryable(status int) bool {
	if status == http.StatusTooManyRequests {
		return true
	}

	return status >= 500
}
