package handlers

import (
	"net/http"
	"strings"

	"github.com/go-authgate/wpgate/internal/config"
	"github.com/go-authgate/wpgate/internal/scope"

	"github.com/gin-gonic/gin"
)

// serverMetadata is the RFC 8414 authorization server metadata document.
type serverMetadata struct {
	Issuer                        string   `json:"issuer"`
	AuthorizationEndpoint         string   `json:"authorization_endpoint"`
	TokenEndpoint                 string   `json:"token_endpoint"`
	UserinfoEndpoint              string   `json:"userinfo_endpoint"`
	RevocationEndpoint            string   `json:"revocation_endpoint"`
	ResponseTypesSupported        []string `json:"response_types_supported"`
	GrantTypesSupported           []string `json:"grant_types_supported"`
	ScopesSupported               []string `json:"scopes_supported"`
	TokenEndpointAuthMethods      []string `json:"token_endpoint_auth_methods_supported"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported"`
}

// Discovery serves GET /.well-known/oauth-authorization-server.
func Discovery(cfg *config.Config) gin.HandlerFunc {
	base := strings.TrimRight(cfg.BaseURL, "/")
	meta := serverMetadata{
		Issuer:                 base,
		AuthorizationEndpoint:  base + "/oauth2/v1/authorize",
		TokenEndpoint:          base + "/oauth2/v1/token",
		UserinfoEndpoint:       base + "/oauth2/v1/userinfo",
		RevocationEndpoint:     base + "/oauth2/v1/logout",
		ResponseTypesSupported: []string{"code"},
		GrantTypesSupported:    []string{"authorization_code"},
		ScopesSupported:        scope.Names(),
		TokenEndpointAuthMethods: []string{
			"client_secret_basic",
			"client_secret_post",
			"none",
		},
		CodeChallengeMethodsSupported: []string{"S256"},
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, meta)
	}
}
