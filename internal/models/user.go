package models

import (
	"slices"
	"strings"
	"time"
)

// Role names mirror the WordPress defaults.
const (
	RoleAdministrator = "administrator"
	RoleEditor        = "editor"
	RoleAuthor        = "author"
	RoleContributor   = "contributor"
	RoleSubscriber    = "subscriber"
)

// roleCapabilities is the capability set each role grants.
var roleCapabilities = map[string][]string{
	RoleAdministrator: {
		"read", "edit_posts", "delete_posts", "publish_posts", "upload_files",
		"list_users", "edit_users", "create_users", "delete_users",
		"edit_theme_options", "moderate_comments", "manage_options", "view_query_monitor",
	},
	RoleEditor: {
		"read", "edit_posts", "delete_posts", "publish_posts", "upload_files",
		"moderate_comments",
	},
	RoleAuthor:      {"read", "edit_posts", "delete_posts", "publish_posts", "upload_files"},
	RoleContributor: {"read", "edit_posts", "delete_posts"},
	RoleSubscriber:  {"read"},
}

type User struct {
	ID           string `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;not null"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	DisplayName  string
	Roles        string `gorm:"not null;default:'subscriber'"` // space-separated role names
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RoleList returns the user's roles.
func (u *User) RoleList() []string {
	return strings.Fields(u.Roles)
}

// Can reports whether any of the user's roles grants the capability.
func (u *User) Can(capability string) bool {
	for _, role := range u.RoleList() {
		if slices.Contains(roleCapabilities[role], capability) {
			return true
		}
	}
	return false
}

// IsKnownRole reports whether the role name is one of the built-in roles.
func IsKnownRole(role string) bool {
	_, ok := roleCapabilities[role]
	return ok
}
