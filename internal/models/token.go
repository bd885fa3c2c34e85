package models

import (
	"slices"
	"strings"
	"time"
)

// AccessToken is an opaque bearer credential resolved by lookup in the token store.
type AccessToken struct {
	Token     string    `json:"access_token"`
	UserID    string    `json:"user_id"`
	ClientID  string    `json:"client_id"`
	Scopes    []string  `json:"scopes"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HasScope reports whether the token was granted the named scope.
func (t *AccessToken) HasScope(scope string) bool {
	return slices.Contains(t.Scopes, scope)
}

// ScopeString returns the granted scopes joined by spaces.
func (t *AccessToken) ScopeString() string {
	return strings.Join(t.Scopes, " ")
}

// ExpiresIn returns the remaining lifetime in whole seconds, never negative.
func (t *AccessToken) ExpiresIn(now time.Time) int {
	remaining := int(t.ExpiresAt.Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RefreshToken is kept in the token store and handed to the browser only as an HttpOnly cookie.
// It is rotated on every use.
type RefreshToken struct {
	Token     string    `json:"refresh_token"`
	UserID    string    `json:"user_id"`
	ClientID  string    `json:"client_id"`
	Scopes    []string  `json:"scopes"`
	CreatedAt time.Time `json:"created_at"`
}
