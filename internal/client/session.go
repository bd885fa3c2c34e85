package client

import (
	"slices"
	"time"
)

// Capabilities mirrors the userinfo capabilities block.
type Capabilities struct {
	CanManageUsers bool `json:"can_manage_users"`
	CanEditUsers   bool `json:"can_edit_users"`
	CanCreateUsers bool `json:"can_create_users"`
}

// UserInfo is the userinfo endpoint response. Profile fields are empty unless the
// read scope was granted.
type UserInfo struct {
	Sub           string        `json:"sub"`
	Username      string        `json:"username,omitempty"`
	Email         string        `json:"email,omitempty"`
	Name          string        `json:"name,omitempty"`
	Roles         []string      `json:"roles,omitempty"`
	GrantedScopes []string      `json:"granted_scopes"`
	Capabilities  *Capabilities `json:"capabilities,omitempty"`
}

// Session is a snapshot of the signed-in state. The refresh token never appears
// here; it lives in the HttpOnly cookie held by the manager's cookie jar.
type Session struct {
	AccessToken   string
	TokenType     string
	Expiry        time.Time
	GrantedScopes []string
	User          *UserInfo
}

// HasScope reports whether scope was granted.
func (s Session) HasScope(scope string) bool {
	return slices.Contains(s.GrantedScopes, scope)
}

func (s *Session) clone() Session {
	out := *s
	out.GrantedScopes = slices.Clone(s.GrantedScopes)
	if s.User != nil {
		u := *s.User
		u.Roles = slices.Clone(s.User.Roles)
		u.GrantedScopes = slices.Clone(s.User.GrantedScopes)
		if u.Capabilities != nil {
			caps := *u.Capabilities
			u.Capabilities = &caps
		}
		out.User = &u
	}
	return out
}
