package models

import "time"

// AuthorizationCode is a single-use credential kept in the token store until
// it is redeemed or its TTL elapses.
type AuthorizationCode struct {
	Code        string    `json:"code"`
	ClientID    string    `json:"client_id"`
	UserID      string    `json:"user_id"`
	RedirectURI string    `json:"redirect_uri"`
	Scopes      []string  `json:"scopes"`
	CreatedAt   time.Time `json:"created_at"`

	// PKCE (RFC 7636); empty challenge means PKCE was not used
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
}

// UsesPKCE returns true if the code was issued with a code challenge.
func (a *AuthorizationCode) UsesPKCE() bool {
	return a.CodeChallenge != ""
}
