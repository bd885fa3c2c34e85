package handlers

import (
	"net/http"

	"github.com/go-authgate/wpgate/internal/models"
	"github.com/go-authgate/wpgate/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ResourceHandler serves a small slice of the WordPress users API behind bearer auth.
type ResourceHandler struct {
	userService *services.UserService
	log         *zap.Logger
}

func NewResourceHandler(us *services.UserService, log *zap.Logger) *ResourceHandler {
	return &ResourceHandler{userService: us, log: log}
}

type wpUser struct {
	ID       string   `json:"id"`
	Username string   `json:"slug"`
	Name     string   `json:"name"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles"`
}

func toWPUser(u *models.User, withEmail bool) wpUser {
	out := wpUser{
		ID:       u.ID,
		Username: u.Username,
		Name:     u.DisplayName,
		Roles:    u.RoleList(),
	}
	if withEmail {
		out.Email = u.Email
	}
	return out
}

// Me serves GET /wp-json/wp/v2/users/me (read scope).
func (h *ResourceHandler) Me(c *gin.Context) {
	user, _ := models.UserFromContext(c)
	c.JSON(http.StatusOK, toWPUser(user, true))
}

// ListUsers serves GET /wp-json/wp/v2/users (manage_users scope). The scope alone is not
// enough: the token's user must still hold list_users.
func (h *ResourceHandler) ListUsers(c *gin.Context) {
	user, _ := models.UserFromContext(c)
	if !user.Can("list_users") {
		c.JSON(http.StatusForbidden, gin.H{
			"code":    "rest_forbidden",
			"message": "Sorry, you are not allowed to list users.",
		})
		return
	}

	users, err := h.userService.ListUsers()
	if err != nil {
		h.log.Error("failed to list users", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"code": "internal_error"})
		return
	}

	out := make([]wpUser, 0, len(users))
	for i := range users {
		out = append(out, toWPUser(&users[i], user.Can("edit_users")))
	}
	c.JSON(http.StatusOK, out)
}
