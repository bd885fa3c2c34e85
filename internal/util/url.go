package util

import (
	"net/url"
	"strings"
)

// IsRedirectSafe reports whether a post-login target stays on this server.
// Accepted targets are rooted paths ("/oauth2/v1/authorize?...") and absolute
// http(s) URLs whose host equals baseURL's host. The empty target is accepted
// and means "use the default landing page".
func IsRedirectSafe(target, baseURL string) bool {
	if target == "" {
		return true
	}
	if strings.ContainsAny(target, "\r\n\\") {
		return false
	}

	u, err := url.Parse(target)
	if err != nil {
		return false
	}

	// "//host/..." parses with a host and no scheme, so it falls through to
	// the absolute branch and fails the scheme check.
	if u.Scheme == "" && u.Host == "" {
		return strings.HasPrefix(u.Path, "/")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return false
	}
	return strings.EqualFold(u.Host, base.Host)
}
