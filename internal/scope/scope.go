// Package scope holds the fixed catalog of OAuth2 scopes and the rules that
// decide which of them a user may grant to a client.
package scope

import "strings"

// Scope names referenced outside the catalog.
const (
	Read        = "read"
	Write       = "write"
	ManageUsers = "manage_users"
)

// DefaultScope is used when an authorization request carries no scope.
const DefaultScope = Read

// Principal is anything that can answer capability checks.
// *models.User satisfies it.
type Principal interface {
	Can(capability string) bool
}

// Definition describes one grantable scope.
type Definition struct {
	Name        string
	Description string
	Icon        string
	// Capability the user must hold to grant the scope; empty means always grantable.
	Capability string
}

var catalog = []Definition{
	{Name: Read, Description: "View your posts, pages, and profile information", Icon: "👁️"},
	{
		Name:        Write,
		Description: "Create and edit posts and pages",
		Icon:        "✏️",
		Capability:  "edit_posts",
	},
	{Name: "delete", Description: "Delete posts and pages", Icon: "🗑️", Capability: "delete_posts"},
	{
		Name:        ManageUsers,
		Description: "View and manage user accounts",
		Icon:        "👥",
		Capability:  "list_users",
	},
	{
		Name:        "upload_files",
		Description: "Upload and manage media files",
		Icon:        "📁",
		Capability:  "upload_files",
	},
	{
		Name:        "edit_theme",
		Description: "Modify theme and appearance settings",
		Icon:        "🎨",
		Capability:  "edit_theme_options",
	},
	{
		Name:        "moderate_comments",
		Description: "Moderate and manage comments",
		Icon:        "💬",
		Capability:  "moderate_comments",
	},
	{
		Name:        "view_stats",
		Description: "Access site statistics and analytics",
		Icon:        "📊",
		Capability:  "view_query_monitor",
	},
}

var byName = func() map[string]Definition {
	m := make(map[string]Definition, len(catalog))
	for _, d := range catalog {
		m[d.Name] = d
	}
	return m
}()

// All returns the catalog in display order.
func All() []Definition {
	out := make([]Definition, len(catalog))
	copy(out, catalog)
	return out
}

// Names returns every scope name in display order.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for _, d := range catalog {
		names = append(names, d.Name)
	}
	return names
}

// Lookup returns the definition of a scope.
func Lookup(name string) (Definition, bool) {
	d, ok := byName[name]
	return d, ok
}

// Describe returns the human description of a scope.
func Describe(name string) (string, bool) {
	d, ok := byName[name]
	return d.Description, ok
}

// IsAvailable reports whether the scope exists in the catalog.
func IsAvailable(name string) bool {
	_, ok := byName[name]
	return ok
}

// UserMayRequest reports whether the principal may grant the scope.
// Unknown scopes and nil principals are never allowed.
func UserMayRequest(name string, p Principal) bool {
	d, ok := byName[name]
	if !ok || p == nil {
		return false
	}
	if d.Capability == "" {
		return true
	}
	return p.Can(d.Capability)
}

// FilterRequestable keeps the requested scopes that exist and that the principal
// may grant, in request order and without duplicates.
// An empty result must be treated as invalid_scope by the caller.
func FilterRequestable(requested []string, p Principal) []string {
	approved := make([]string, 0, len(requested))
	seen := make(map[string]bool, len(requested))
	for _, name := range requested {
		if seen[name] {
			continue
		}
		seen[name] = true
		if UserMayRequest(name, p) {
			approved = append(approved, name)
		}
	}
	return approved
}

// FilterAvailable keeps the requested scopes that exist, in request order and without duplicates.
func FilterAvailable(requested []string) []string {
	out := make([]string, 0, len(requested))
	seen := make(map[string]bool, len(requested))
	for _, name := range requested {
		if seen[name] || !IsAvailable(name) {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// Parse splits a space-separated scope parameter, defaulting to read.
func Parse(raw string) []string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return []string{DefaultScope}
	}
	return fields
}

// Join renders scopes as a space-separated parameter.
func Join(scopes []string) string {
	return strings.Join(scopes, " ")
}

// Subset reports whether every element of scopes is in allowed.
func Subset(scopes, allowed []string) bool {
	set := make(map[string]bool, len(allowed))
	for _, s := range allowed {
		set[s] = true
	}
	for _, s := range scopes {
		if !set[s] {
			return false
		}
	}
	return true
}
