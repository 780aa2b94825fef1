package bling

import (
	"errors"
	"fmt"
)

// Sentinel errors for callers that branch on failure class
var (
	// ErrRateLimited indicates the API rejected the request with 429
	ErrRateLimited = errors.New("bling: rate limited")
	// ErrUnauthorized indicates the access token was rejected
	ErrUnauthorized = errors.New("bling: unauthorized")
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = errors.New("bling: resource not found")
	// ErrServerError indicates a 5xx response
	ErrServerError = errors.New("bling: server error")
)

// APIError carries the structured error body returned by the API
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bling: api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// IsTransient reports whether the error is worth retrying: rate limits,
// server errors, and network failures. Authentication and validation
// failures are not transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServerError) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	// treat anything that is not a structured rejection as a network failure
	return !errors.Is(err, ErrUnauthorized) && !errors.Is(err, ErrNotFound)
}
