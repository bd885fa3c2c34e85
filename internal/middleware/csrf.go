package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-authgate/wpgate/internal/templates"
	"github.com/go-authgate/wpgate/internal/util"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	csrfTokenKey    = "csrf_token"
	csrfFormField   = "csrf_token"
	csrfHeaderField = "X-CSRF-Token"
)

// CSRFMiddleware provides CSRF protection for the login and consent forms
func CSRFMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)

		token, _ := session.Get(csrfTokenKey).(string)
		if token == "" {
			var err error
			if token, err = util.RandomURLSafe(32); err == nil {
				session.Set(csrfTokenKey, token)
				err = session.Save()
			}
			if err != nil {
				templates.RenderTempl(c, http.StatusInternalServerError, templates.ErrorPage(templates.ErrorPageProps{
					Error:   "server_error",
					Message: "Failed to start a session. Please try again.",
				}))
				c.Abort()
				return
			}
		}

		// Make token available to templates
		c.Set(csrfTokenKey, token)

		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
			submitted := c.PostForm(csrfFormField)
			if submitted == "" {
				submitted = c.GetHeader(csrfHeaderField)
			}
			if submitted == "" || subtle.ConstantTimeCompare([]byte(submitted), []byte(token)) != 1 {
				templates.RenderTempl(c, http.StatusForbidden, templates.ErrorPage(templates.ErrorPageProps{
					Error:   "invalid_request",
					Message: "CSRF token validation failed. Please refresh the page and try again.",
				}))
				c.Abort()
				return
			}
		}

		c.Next()
	}
}

// GetCSRFToken retrieves the CSRF token from the context
func GetCSRFToken(c *gin.Context) string {
	if token, exists := c.Get(csrfTokenKey); exists {
		if tokenStr, ok := token.(string); ok {
			return tokenStr
		}
	}
	return ""
}
