package models

import (
	"strings"
	"time"
)

// Client is an application registered with the authorization server.
// Public clients carry no secret hash and must use PKCE.
type Client struct {
	ClientID         string `gorm:"primaryKey"`
	ClientSecretHash string // bcrypt hashed secret, empty for public clients
	Name             string `gorm:"not null"`
	RedirectURIs     string `gorm:"type:text;not null"` // space-separated, registration order preserved
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (Client) TableName() string {
	return "oauth2_clients"
}

// IsPublic returns true if the client was registered without a secret.
func (c *Client) IsPublic() bool {
	return c.ClientSecretHash == ""
}

// RedirectURIList returns the registered redirect URIs in registration order.
func (c *Client) RedirectURIList() []string {
	return strings.Fields(c.RedirectURIs)
}

// HasRedirectURI reports whether uri exactly matches one of the registered redirect URIs.
func (c *Client) HasRedirectURI(uri string) bool {
	if uri == "" {
		return false
	}
	for _, registered := range c.RedirectURIList() {
		if registered == uri {
			return true
		}
	}
	return false
}

// DefaultRedirectURI returns the first registered redirect URI, or "" if none.
func (c *Client) DefaultRedirectURI() string {
	uris := c.RedirectURIList()
	if len(uris) == 0 {
		return ""
	}
	return uris[0]
}
