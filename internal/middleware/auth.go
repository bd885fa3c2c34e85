package middleware

import (
	"net/http"
	"net/url"

	"github.com/go-authgate/wpgate/internal/models"
	"github.com/go-authgate/wpgate/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	SessionUserID = "user_id"
)

// LoadSessionUser resolves the signed-in user from the session, if any, and stores
// it under models.ContextKeyUser. A session pointing at a deleted user is cleared.
func LoadSessionUser(users *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if user := sessionUser(c, users); user != nil {
			c.Set(models.ContextKeyUserID, user.ID)
			c.Set(models.ContextKeyUser, user)
		}
		c.Next()
	}
}

// RequireAuth is a middleware that requires the user to be logged in
func RequireAuth(users *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := sessionUser(c, users)
		if user == nil {
			// Redirect to login with return URL
			c.Redirect(http.StatusFound, "/login?redirect="+url.QueryEscape(c.Request.URL.String()))
			c.Abort()
			return
		}

		c.Set(models.ContextKeyUserID, user.ID)
		c.Set(models.ContextKeyUser, user)
		c.Next()
	}
}

func sessionUser(c *gin.Context, users *services.UserService) *models.User {
	session := sessions.Default(c)
	userID, ok := session.Get(SessionUserID).(string)
	if !ok || userID == "" {
		return nil
	}

	user, err := users.GetUserByID(userID)
	if err != nil {
		session.Delete(SessionUserID)
		_ = session.Save()
		return nil
	}
	return user
}
