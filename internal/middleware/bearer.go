package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/go-authgate/wpgate/internal/models"
	"github.com/go-authgate/wpgate/internal/services"

	"github.com/gin-gonic/gin"
)

// BearerToken returns the token of an "Authorization: Bearer <token>" header, or "".
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// BearerAuth authenticates the request with an access token issued by the token
// service and loads its user. Failures answer 401 with a RFC 6750 challenge.
func BearerAuth(tokens *services.TokenService, users *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := BearerToken(c)
		if raw == "" {
			c.Header("WWW-Authenticate", `Bearer realm="wordpress"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":             "invalid_request",
				"error_description": "Missing bearer token",
			})
			return
		}

		token, err := tokens.ValidateAccessToken(c.Request.Context(), raw)
		if err != nil {
			if errors.Is(err, services.ErrTokenStoreUnavailable) {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
					"error":             "temporarily_unavailable",
					"error_description": "Token store unavailable",
				})
				return
			}
			invalidToken(c, "The access token is invalid or expired")
			return
		}

		user, err := users.GetUserByID(token.UserID)
		if err != nil {
			invalidToken(c, "The user for this token no longer exists")
			return
		}

		c.Set(models.ContextKeyAccessToken, token)
		c.Set(models.ContextKeyUserID, user.ID)
		c.Set(models.ContextKeyUser, user)
		c.Next()
	}
}

// RequireScope must run after BearerAuth; the token must carry every listed scope.
func RequireScope(scopes ...string) gin.HandlerFunc {
	required := strings.Join(scopes, " ")
	return func(c *gin.Context) {
		token, ok := models.AccessTokenFromContext(c)
		if !ok {
			invalidToken(c, "Missing access token")
			return
		}
		for _, s := range scopes {
			if !token.HasScope(s) {
				c.Header("WWW-Authenticate",
					`Bearer error="insufficient_scope", scope="`+required+`"`)
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error":             "insufficient_scope",
					"error_description": "The access token does not grant the " + s + " scope",
				})
				return
			}
		}
		c.Next()
	}
}

// StaticBearerAuth guards an endpoint with a fixed token, e.g. /metrics.
// An empty token disables the check.
func StaticBearerAuth(token, realm string) gin.HandlerFunc {
	challenge := `Bearer realm="` + realm + `"`
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		provided := BearerToken(c)
		if provided == "" {
			c.Header("WWW-Authenticate", challenge)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Bearer token required",
			})
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			c.Header("WWW-Authenticate", challenge)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid token",
			})
			return
		}
		c.Next()
	}
}

func invalidToken(c *gin.Context, description string) {
	c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":             "invalid_token",
		"error_description": description,
	})
}
