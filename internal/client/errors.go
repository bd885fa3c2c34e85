package client

import (
	"errors"
	"fmt"
)

var (
	// ErrStateMismatch means the callback state does not match the one saved by StartLogin.
	ErrStateMismatch = errors.New("oauth2 state mismatch")
	// ErrMissingVerifier means PKCE is enabled but no code verifier survived the redirect.
	ErrMissingVerifier = errors.New("pkce code verifier not found")
	// ErrMissingCode means the callback carried neither a code nor an error.
	ErrMissingCode = errors.New("no authorization code received")
	// ErrNotAuthenticated is returned when an operation needs a session and there is none.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrSuperseded is returned when a response arrives after logout or a newer login.
	ErrSuperseded = errors.New("session changed while the request was in flight")
)

// AuthError is an OAuth2 error reported by the authorization server, either on the
// callback redirect or in a JSON error body.
type AuthError struct {
	Code        string
	Description string
	StatusCode  int
}

func (e *AuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("oauth2 error: %s: %s", e.Code, e.Description)
	}
	return "oauth2 error: " + e.Code
}
