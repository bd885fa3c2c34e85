package templates

import (
	"github.com/go-authgate/wpgate/internal/scope"
)

// BaseProps contains common properties shared across all pages
type BaseProps struct {
	CSRFToken string
	SiteName  string
}

// ===== Page Props Structures =====

// ErrorPageProps contains properties for the error page
type ErrorPageProps struct {
	BaseProps
	Error   string
	Message string
}

// LoginPageProps contains properties for the login page
type LoginPageProps struct {
	BaseProps
	Error    string
	Username string
	Redirect string
}

// ConsentPageProps contains properties for the consent page.
// The request parameters are echoed back as hidden fields and re-validated on submit.
type ConsentPageProps struct {
	BaseProps
	Username   string
	ClientID   string
	ClientName string
	Scopes     []scope.Definition

	ResponseType        string
	RedirectURI         string
	State               string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// AccountPageProps contains properties for the signed-in landing page
type AccountPageProps struct {
	BaseProps
	Username    string
	DisplayName string
	Email       string
	Roles       []string
}
