package client

import (
	"errors"
	"strings"
	"time"
)

// Endpoint paths on the authorization server.
const (
	AuthorizePath = "/oauth2/v1/authorize"
	TokenPath     = "/oauth2/v1/token"
	RefreshPath   = "/oauth2/v1/refresh"
	UserInfoPath  = "/oauth2/v1/userinfo"
	LogoutPath    = "/oauth2/v1/logout"

	defaultRefreshCookie  = "wp_oauth2_refresh"
	defaultLogoutTimeout  = 5 * time.Second
	defaultRefreshTimeout = 30 * time.Second
)

// DefaultScopes are requested when neither Config.Scopes nor StartLogin name any.
var DefaultScopes = []string{"read", "write", "upload_files"}

// Config describes the client registration and the server it talks to.
type Config struct {
	// ServerURL is the authorization server base URL, e.g. http://localhost:8080.
	ServerURL string

	ClientID string
	// ClientSecret is empty for public clients, which must use PKCE.
	ClientSecret string
	RedirectURI  string

	Scopes  []string
	UsePKCE bool

	// RefreshCookieName must match the server's REFRESH_COOKIE_NAME; logout drops
	// it from the cookie jar even when the server cannot be reached.
	RefreshCookieName string

	// LogoutTimeout bounds the best-effort revocation call.
	LogoutTimeout time.Duration
	// RefreshTimeout bounds timer-triggered refreshes.
	RefreshTimeout time.Duration
}

func (c *Config) validate() error {
	switch {
	case c.ServerURL == "":
		return errors.New("server URL is required")
	case c.ClientID == "":
		return errors.New("client ID is required")
	case c.RedirectURI == "":
		return errors.New("redirect URI is required")
	case c.ClientSecret == "" && !c.UsePKCE:
		return errors.New("public clients must use PKCE")
	}
	return nil
}

func (c *Config) url(path string) string {
	return strings.TrimRight(c.ServerURL, "/") + path
}

func (c *Config) refreshCookieName() string {
	if c.RefreshCookieName != "" {
		return c.RefreshCookieName
	}
	return defaultRefreshCookie
}

func (c *Config) logoutTimeout() time.Duration {
	if c.LogoutTimeout > 0 {
		return c.LogoutTimeout
	}
	return defaultLogoutTimeout
}

func (c *Config) refreshTimeout() time.Duration {
	if c.RefreshTimeout > 0 {
		return c.RefreshTimeout
	}
	return defaultRefreshTimeout
}
