package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClient_RedirectURIs(t *testing.T) {
	c := &Client{RedirectURIs: "https://app.test/callback https://app.test/alt"}

	assert.Equal(t, "https://app.test/callback", c.DefaultRedirectURI())
	assert.True(t, c.HasRedirectURI("https://app.test/alt"))
	assert.False(t, c.HasRedirectURI("https://app.test/callback/"))
	assert.False(t, c.HasRedirectURI("https://app.test"))
	assert.False(t, c.HasRedirectURI(""))
	assert.True(t, c.IsPublic())

	empty := &Client{}
	assert.Equal(t, "", empty.DefaultRedirectURI())
}

func TestUser_Can(t *testing.T) {
	admin := &User{Roles: RoleAdministrator}
	subscriber := &User{Roles: RoleSubscriber}
	mixed := &User{Roles: "subscriber editor"}

	assert.True(t, admin.Can("list_users"))
	assert.False(t, subscriber.Can("edit_posts"))
	assert.True(t, subscriber.Can("read"))
	assert.True(t, mixed.Can("moderate_comments"))
	assert.False(t, mixed.Can("list_users"))
	assert.False(t, (&User{Roles: "ghost"}).Can("read"))
}

func TestAccessToken_Helpers(t *testing.T) {
	now := time.Now()
	tok := &AccessToken{Scopes: []string{"read", "write"}, ExpiresAt: now.Add(90 * time.Second)}

	assert.True(t, tok.HasScope("write"))
	assert.False(t, tok.HasScope("delete"))
	assert.Equal(t, "read write", tok.ScopeString())
	assert.Equal(t, 90, tok.ExpiresIn(now))
	assert.Equal(t, 0, tok.ExpiresIn(now.Add(time.Hour)))
}
