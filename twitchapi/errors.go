package twitchapi

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when Helix answers 404 or with an empty data array.
// It represents an absent result, not a failure.
var ErrNotFound = errors.New("twitchapi: not found")

// errUnauthorized marks a 401 from Helix; it triggers the refresh-and-replay path
// and never leaves the package.
var errUnauthorized = errors.New("twitchapi: unauthorized")

// APIError is a non-2xx Helix response that is neither 401 nor 404.
type APIError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("helix %s: status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("helix %s: status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// AuthError means the app could not (re)authorize: the token endpoint refused
// the credentials, or Helix kept answering 401 after a fresh token was issued.
type AuthError struct {
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("twitch authorization failed (status %d): %v", e.StatusCode, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsFatal reports whether err must stop the poll loop.
func IsFatal(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsNotFound is shorthand for errors.Is(err, ErrNotFound).
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
