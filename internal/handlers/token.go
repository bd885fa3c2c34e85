package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-authgate/wpgate/internal/config"
	"github.com/go-authgate/wpgate/internal/middleware"
	"github.com/go-authgate/wpgate/internal/models"
	"github.com/go-authgate/wpgate/internal/scope"
	"github.com/go-authgate/wpgate/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const refreshCookiePath = "/oauth2/v1"

type TokenHandler struct {
	tokenService *services.TokenService
	config       *config.Config
	log          *zap.Logger
}

func NewTokenHandler(ts *services.TokenService, cfg *config.Config, log *zap.Logger) *TokenHandler {
	return &TokenHandler{tokenService: ts, config: cfg, log: log}
}

// Token handles POST /oauth2/v1/token (RFC 6749 §4.1.3). Clients authenticate with
// client_secret_post, client_secret_basic, or a PKCE code_verifier alone.
func (h *TokenHandler) Token(c *gin.Context) {
	req := services.TokenRequest{
		GrantType:    c.PostForm("grant_type"),
		Code:         c.PostForm("code"),
		RedirectURI:  c.PostForm("redirect_uri"),
		ClientID:     c.PostForm("client_id"),
		ClientSecret: c.PostForm("client_secret"),
		CodeVerifier: c.PostForm("code_verifier"),
	}
	if id, secret, ok, err := clientBasicAuth(c.Request); ok {
		if err != nil {
			tokenError(c, services.ErrInvalidClient, "")
			return
		}
		if req.ClientID != "" && req.ClientID != id {
			tokenError(c, services.ErrInvalidRequest, "client_id does not match the Authorization header")
			return
		}
		req.ClientID, req.ClientSecret = id, secret
	}

	result, err := h.tokenService.ExchangeAuthorizationCode(c.Request.Context(), req)
	if err != nil {
		h.log.Debug("token exchange rejected",
			zap.String("client_id", req.ClientID),
			zap.Error(err),
		)
		tokenError(c, err, "")
		return
	}

	h.writeTokenResponse(c, result)
}

// clientBasicAuth reads client_secret_basic credentials. RFC 6749 §2.3.1 has
// clients form-urlencode the id and secret before Base64, so they are decoded here.
func clientBasicAuth(r *http.Request) (id, secret string, ok bool, err error) {
	rawID, rawSecret, ok := r.BasicAuth()
	if !ok {
		return "", "", false, nil
	}
	if id, err = url.QueryUnescape(rawID); err != nil {
		return "", "", true, err
	}
	if secret, err = url.QueryUnescape(rawSecret); err != nil {
		return "", "", true, err
	}
	return id, secret, true, nil
}

// Refresh handles POST /oauth2/v1/refresh. The refresh token is read from the
// HttpOnly cookie only and is rotated on success.
func (h *TokenHandler) Refresh(c *gin.Context) {
	raw, _ := c.Cookie(h.config.RefreshCookieName)

	result, err := h.tokenService.RefreshAccessToken(c.Request.Context(), raw)
	if err != nil {
		h.clearRefreshCookie(c)
		if errors.Is(err, services.ErrInvalidGrant) {
			writeTokenError(c, http.StatusUnauthorized, err.Error(), "Refresh token is missing, expired or already used")
			return
		}
		h.log.Error("refresh failed", zap.Error(err))
		tokenError(c, err, "")
		return
	}

	h.writeTokenResponse(c, result)
}

// Logout handles POST /oauth2/v1/logout. It revokes whatever the caller presents
// and always answers 200.
func (h *TokenHandler) Logout(c *gin.Context) {
	ctx := c.Request.Context()

	if raw := middleware.BearerToken(c); raw != "" {
		if err := h.tokenService.RevokeAccessToken(ctx, raw); err != nil {
			h.log.Warn("failed to revoke access token", zap.Error(err))
		}
	}
	if raw, err := c.Cookie(h.config.RefreshCookieName); err == nil && raw != "" {
		if err := h.tokenService.RevokeRefreshToken(ctx, raw); err != nil {
			h.log.Warn("failed to revoke refresh token", zap.Error(err))
		}
	}

	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// UserInfo handles GET /oauth2/v1/userinfo; BearerAuth must run first.
// Profile claims require the read scope, capabilities require manage_users.
func (h *TokenHandler) UserInfo(c *gin.Context) {
	user, _ := models.UserFromContext(c)
	token, _ := models.AccessTokenFromContext(c)

	resp := gin.H{
		"sub":            user.ID,
		"granted_scopes": token.Scopes,
	}
	if token.HasScope(scope.Read) {
		resp["username"] = user.Username
		resp["email"] = user.Email
		resp["name"] = user.DisplayName
		resp["roles"] = user.RoleList()
	}
	if token.HasScope(scope.ManageUsers) && user.Can("list_users") {
		resp["capabilities"] = gin.H{
			"can_manage_users": true,
			"can_edit_users":   user.Can("edit_users"),
			"can_create_users": user.Can("create_users"),
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (h *TokenHandler) writeTokenResponse(c *gin.Context, result *services.TokenResult) {
	h.setRefreshCookie(c, result.RefreshToken.Token)

	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(http.StatusOK, gin.H{
		"access_token": result.AccessToken.Token,
		"token_type":   services.TokenTypeBearer,
		"expires_in":   result.ExpiresIn,
		"scope":        result.AccessToken.ScopeString(),
	})
}

func (h *TokenHandler) setRefreshCookie(c *gin.Context, value string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.config.RefreshCookieName,
		Value:    value,
		Path:     refreshCookiePath,
		MaxAge:   int(h.config.RefreshTokenTTL / time.Second),
		HttpOnly: true,
		Secure:   h.config.SessionSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *TokenHandler) clearRefreshCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.config.RefreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.SessionSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// tokenError writes a RFC 6749 §5.2 error response.
func tokenError(c *gin.Context, err error, description string) {
	status := http.StatusBadRequest
	var code string

	switch {
	case errors.Is(err, services.ErrInvalidClient):
		status = http.StatusUnauthorized
		code = services.ErrInvalidClient.Error()
		c.Header("WWW-Authenticate", `Basic realm="oauth2"`)
	case errors.Is(err, services.ErrInvalidGrant),
		errors.Is(err, services.ErrUnsupportedGrantType),
		errors.Is(err, services.ErrInvalidRequest):
		code = err.Error()
	default:
		status = http.StatusInternalServerError
		code = "server_error"
	}

	writeTokenError(c, status, code, description)
}

func writeTokenError(c *gin.Context, status int, code, description string) {
	body := gin.H{"error": code}
	if description != "" {
		body["error_description"] = description
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(status, body)
}
