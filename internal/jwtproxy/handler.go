package jwtproxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-authgate/wpgate/internal/cache"
	"github.com/go-authgate/wpgate/internal/config"
	"github.com/go-authgate/wpgate/internal/metrics"
	"github.com/go-authgate/wpgate/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	RefreshCookieName = "refreshToken"
	refreshCookiePath = "/api"

	contextKeyClaims = "jwt_claims"
)

// Authenticator verifies WordPress credentials and returns the upstream token.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (User, string, error)
}

// RefreshSession is the active-set entry for one refresh jti.
type RefreshSession struct {
	User     User      `json:"user"`
	WPToken  string    `json:"wp_token"`
	IssuedAt time.Time `json:"issued_at"`
}

// Handler serves the /api routes of the relay and the /wp-json pass-through.
type Handler struct {
	issuer       *Issuer
	wordpress    Authenticator
	sessions     cache.Cache[RefreshSession]
	proxy        http.Handler
	secureCookie bool
	metrics      metrics.Recorder
	log          *zap.Logger
}

func NewHandler(
	cfg *config.Config,
	issuer *Issuer,
	wp Authenticator,
	sessions cache.Cache[RefreshSession],
	m metrics.Recorder,
	log *zap.Logger,
) (*Handler, error) {
	upstream, err := url.Parse(cfg.WordPressBaseURL)
	if err != nil || upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("invalid WP_BASE_URL %q", cfg.WordPressBaseURL)
	}
	return &Handler{
		issuer:       issuer,
		wordpress:    wp,
		sessions:     sessions,
		proxy:        newReverseProxy(upstream, log),
		secureCookie: cfg.IsProduction() || cfg.SessionSecure,
		metrics:      m,
		log:          log,
	}, nil
}

// RegisterRoutes mounts the relay on r. loginLimit guards POST /api/login and may be nil.
func (h *Handler) RegisterRoutes(r gin.IRouter, loginLimit gin.HandlerFunc) {
	api := r.Group("/api")
	{
		if loginLimit != nil {
			api.POST("/login", loginLimit, h.Login)
		} else {
			api.POST("/login", h.Login)
		}
		api.POST("/refresh", h.Refresh)
		api.POST("/logout", h.Logout)
		api.GET("/me", h.RequireAccessToken, h.Me)
		api.GET("/health", h.Health)
	}
	r.Any("/wp-json/*path", h.attachUpstreamToken, gin.WrapH(h.proxy))
}

// Login handles POST /api/login.
func (h *Handler) Login(c *gin.Context) {
	var creds Credentials
	if err := c.ShouldBindJSON(&creds); err != nil || creds.Username == "" || creds.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password are required"})
		return
	}

	user, wpToken, err := h.wordpress.Authenticate(c.Request.Context(), creds)
	if err != nil {
		h.metrics.RecordLogin("jwt", false)
		var upstream *UpstreamError
		switch {
		case errors.As(err, &upstream):
			h.log.Info("wordpress rejected login",
				zap.String("username", creds.Username),
				zap.Int("status", upstream.StatusCode),
				zap.String("code", upstream.Code),
			)
			c.JSON(upstream.StatusCode, gin.H{"error": upstream.Message})
		case errors.Is(err, ErrUpstreamUnavailable), errors.Is(err, ErrUpstreamResponse):
			h.log.Error("wordpress login failed", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "WordPress is unavailable"})
		default:
			h.log.Error("login failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}
	h.metrics.RecordLogin("jwt", true)

	access, err := h.startSession(c, user, wpToken)
	if err != nil {
		h.log.Error("failed to issue tokens", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Unable to create session"})
		return
	}

	h.log.Info("jwt login", zap.String("user_id", user.ID))
	h.writeAccess(c, access, user)
}

// Refresh handles POST /api/refresh. The presented jti is taken out of the active
// set, so a refresh token works exactly once.
func (h *Handler) Refresh(c *gin.Context) {
	raw, _ := c.Cookie(RefreshCookieName)
	if raw == "" {
		h.rejectRefresh(c)
		return
	}

	claims, err := h.issuer.ParseRefresh(raw)
	if err != nil {
		h.metrics.RecordTokenExchange("jwt_refresh", "invalid_grant")
		h.rejectRefresh(c)
		return
	}

	sess, err := h.sessions.Take(c.Request.Context(), claims.ID)
	if err != nil {
		if !cache.IsMiss(err) {
			h.log.Error("failed to read refresh session", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Token store unavailable"})
			return
		}
		h.log.Warn("refresh token not active",
			zap.String("sub", claims.Subject),
			zap.String("jti", claims.ID),
		)
		h.metrics.RecordTokenExchange("jwt_refresh", "invalid_grant")
		h.rejectRefresh(c)
		return
	}
	if sess.User.ID != claims.Subject {
		h.rejectRefresh(c)
		return
	}

	access, err := h.startSession(c, sess.User, sess.WPToken)
	if err != nil {
		h.log.Error("failed to rotate refresh token", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Unable to refresh session"})
		return
	}

	h.metrics.RecordTokenExchange("jwt_refresh", "success")
	h.writeAccess(c, access, sess.User)
}

// Logout handles POST /api/logout and always succeeds.
func (h *Handler) Logout(c *gin.Context) {
	if raw, _ := c.Cookie(RefreshCookieName); raw != "" {
		if claims, err := h.issuer.ParseRefresh(raw); err == nil {
			if err := h.sessions.Delete(c.Request.Context(), claims.ID); err != nil {
				h.log.Warn("failed to revoke refresh session", zap.Error(err))
			} else {
				h.metrics.RecordTokenRevoked("jwt_refresh")
			}
		}
	}
	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// Me handles GET /api/me; RequireAccessToken must run first.
func (h *Handler) Me(c *gin.Context) {
	claims := c.MustGet(contextKeyClaims).(*AccessClaims)
	c.JSON(http.StatusOK, gin.H{"user": claims.User()})
}

func (h *Handler) Health(c *gin.Context) {
	if err := h.sessions.Health(c.Request.Context()); err != nil {
		h.log.Error("token store health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "token store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// RequireAccessToken rejects requests without a valid access JWT.
func (h *Handler) RequireAccessToken(c *gin.Context) {
	raw := middleware.BearerToken(c)
	if raw == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Access token required"})
		return
	}
	claims, err := h.issuer.ParseAccess(raw)
	if err != nil {
		h.metrics.RecordTokenValidation("invalid")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired access token"})
		return
	}
	h.metrics.RecordTokenValidation("valid")
	c.Set(contextKeyClaims, claims)
	c.Next()
}

// attachUpstreamToken swaps a valid access JWT for the WordPress token it carries.
// Requests without a bearer pass through anonymously; an invalid one is refused so
// the caller knows to refresh.
func (h *Handler) attachUpstreamToken(c *gin.Context) {
	raw := middleware.BearerToken(c)
	if raw == "" {
		c.Request.Header.Del("Authorization")
		c.Next()
		return
	}
	claims, err := h.issuer.ParseAccess(raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired access token"})
		return
	}
	c.Request.Header.Set("Authorization", "Bearer "+claims.WPToken)
	c.Next()
}

// startSession issues a refresh token, records its jti and sets the cookie, then
// returns a new access token.
func (h *Handler) startSession(c *gin.Context, user User, wpToken string) (string, error) {
	refresh, jti, _, err := h.issuer.IssueRefresh(user.ID)
	if err != nil {
		return "", err
	}
	access, _, err := h.issuer.IssueAccess(user, wpToken)
	if err != nil {
		return "", err
	}

	sess := RefreshSession{User: user, WPToken: wpToken, IssuedAt: time.Now()}
	if err := h.sessions.Set(c.Request.Context(), jti, sess, h.issuer.RefreshTTL()); err != nil {
		return "", err
	}
	h.metrics.RecordTokenIssued("jwt_access", "password")
	h.metrics.RecordTokenIssued("jwt_refresh", "password")

	h.setRefreshCookie(c, refresh)
	return access, nil
}

func (h *Handler) writeAccess(c *gin.Context, access string, user User) {
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{
		"access_token": access,
		"token_type":   "Bearer",
		"expires_in":   int(h.issuer.AccessTTL() / time.Second),
		"user":         user,
	})
}

func (h *Handler) rejectRefresh(c *gin.Context) {
	h.clearRefreshCookie(c)
	c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token"})
}

func (h *Handler) setRefreshCookie(c *gin.Context, value string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    value,
		Path:     refreshCookiePath,
		MaxAge:   int(h.issuer.RefreshTTL() / time.Second),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearRefreshCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}
