package handlers

import (
	"errors"
	"net/http"

	"github.com/go-authgate/wpgate/internal/middleware"
	"github.com/go-authgate/wpgate/internal/models"
	"github.com/go-authgate/wpgate/internal/services"
	"github.com/go-authgate/wpgate/internal/templates"
	"github.com/go-authgate/wpgate/internal/util"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	SessionUsername = "username"
	defaultLanding  = "/account"
)

// AuthHandler is the site login form that establishes the browser session the
// authorize endpoint relies on.
type AuthHandler struct {
	userService *services.UserService
	baseURL     string
	log         *zap.Logger
}

func NewAuthHandler(us *services.UserService, baseURL string, log *zap.Logger) *AuthHandler {
	return &AuthHandler{userService: us, baseURL: baseURL, log: log}
}

// LoginPage renders the login page
func (h *AuthHandler) LoginPage(c *gin.Context) {
	redirectTo := c.Query("redirect")
	if !util.IsRedirectSafe(redirectTo, h.baseURL) {
		redirectTo = ""
	}

	if _, ok := models.UserFromContext(c); ok {
		c.Redirect(http.StatusFound, landing(redirectTo))
		return
	}

	templates.RenderTempl(c, http.StatusOK, templates.LoginPage(templates.LoginPageProps{
		BaseProps: templates.BaseProps{CSRFToken: middleware.GetCSRFToken(c)},
		Redirect:  redirectTo,
		Error:     c.Query("error"),
	}))
}

// Login handles the login form submission
func (h *AuthHandler) Login(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")
	redirectTo := c.PostForm("redirect")
	if !util.IsRedirectSafe(redirectTo, h.baseURL) {
		redirectTo = ""
	}

	user, err := h.userService.Authenticate(c.Request.Context(), username, password)
	if err != nil {
		status := http.StatusUnauthorized
		msg := "Invalid username or password"
		if !errors.Is(err, services.ErrInvalidCredentials) {
			h.log.Error("login failed", zap.Error(err))
			status = http.StatusInternalServerError
			msg = "Login is temporarily unavailable"
		}
		templates.RenderTempl(c, status, templates.LoginPage(templates.LoginPageProps{
			BaseProps: templates.BaseProps{CSRFToken: middleware.GetCSRFToken(c)},
			Error:     msg,
			Username:  username,
			Redirect:  redirectTo,
		}))
		return
	}

	session := sessions.Default(c)
	session.Set(middleware.SessionUserID, user.ID)
	session.Set(SessionUsername, user.Username)
	if err := session.Save(); err != nil {
		templates.RenderTempl(c, http.StatusInternalServerError, templates.LoginPage(templates.LoginPageProps{
			BaseProps: templates.BaseProps{CSRFToken: middleware.GetCSRFToken(c)},
			Error:     "Failed to create session",
			Redirect:  redirectTo,
		}))
		return
	}

	h.log.Info("user logged in", zap.String("username", user.Username))
	c.Redirect(http.StatusFound, landing(redirectTo))
}

// Logout clears the session and redirects to login
func (h *AuthHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to save session",
		})
		return
	}
	c.Redirect(http.StatusFound, "/login")
}

// Account renders the signed-in landing page; RequireAuth must run first.
func (h *AuthHandler) Account(c *gin.Context) {
	user, _ := models.UserFromContext(c)
	templates.RenderTempl(c, http.StatusOK, templates.AccountPage(templates.AccountPageProps{
		BaseProps:   templates.BaseProps{CSRFToken: middleware.GetCSRFToken(c)},
		Username:    user.Username,
		DisplayName: user.DisplayName,
		Email:       user.Email,
		Roles:       user.RoleList(),
	}))
}

func landing(redirectTo string) string {
	if redirectTo == "" {
		return defaultLanding
	}
	return redirectTo
}
