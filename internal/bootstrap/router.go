package bootstrap

import (
	"net/http"

	"github.com/go-authgate/wpgate/internal/config"
	"github.com/go-authgate/wpgate/internal/handlers"
	"github.com/go-authgate/wpgate/internal/metrics"
	"github.com/go-authgate/wpgate/internal/middleware"
	"github.com/go-authgate/wpgate/internal/scope"
	"github.com/go-authgate/wpgate/internal/store"
	"github.com/go-authgate/wpgate/internal/util"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const sessionCookieName = "wpgate_session"

// setupRouter configures the Gin router with all routes and middleware
func setupRouter(
	cfg *config.Config,
	db *store.Store,
	h handlerSet,
	recorder metrics.Recorder,
	rateLimitRedisClient *redis.Client,
	log *zap.Logger,
) (*gin.Engine, error) {
	setupGinMode(cfg, log)
	r := gin.New()

	// Setup middleware
	r.Use(metrics.HTTPMetricsMiddleware(recorder))
	r.Use(middleware.AccessLog(log.Named("http")), gin.Recovery())
	r.Use(util.IPMiddleware())

	// Setup session middleware
	setupSessionMiddleware(r, cfg)

	// Health check endpoint
	r.GET("/health", createHealthCheckHandler(db))

	// Setup metrics endpoint
	setupMetricsEndpoint(r, cfg, log)

	// Setup rate limiting
	rateLimiters, err := setupRateLimiting(cfg, rateLimitRedisClient, log)
	if err != nil {
		return nil, err
	}

	// Setup all routes
	setupAllRoutes(r, cfg, h, rateLimiters)

	logServerStartup(cfg, log)

	return r, nil
}

// setupSessionMiddleware configures session handling middleware
func setupSessionMiddleware(r *gin.Engine, cfg *config.Config) {
	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   cfg.SessionMaxAge,
		HttpOnly: true,
		Secure:   cfg.SessionSecure,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionCookieName, sessionStore))
}

// setupMetricsEndpoint configures the Prometheus metrics endpoint
func setupMetricsEndpoint(r *gin.Engine, cfg *config.Config, log *zap.Logger) {
	switch {
	case !cfg.MetricsEnabled:
		log.Info("Prometheus metrics disabled")
	case cfg.MetricsToken != "":
		log.Info("Prometheus metrics enabled at /metrics with Bearer token authentication")
		r.GET(
			"/metrics",
			middleware.StaticBearerAuth(cfg.MetricsToken, "metrics"),
			gin.WrapH(promhttp.Handler()),
		)
	default:
		log.Info("Prometheus metrics enabled at /metrics (no authentication)")
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

// setupAllRoutes configures all application routes
func setupAllRoutes(
	r *gin.Engine,
	cfg *config.Config,
	h handlerSet,
	rateLimiters rateLimitMiddlewares,
) {
	r.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/account")
	})

	r.GET("/.well-known/oauth-authorization-server", handlers.Discovery(cfg))

	// Site login (establishes the browser session)
	site := r.Group("")
	site.Use(middleware.LoadSessionUser(h.userService), middleware.CSRFMiddleware())
	{
		site.GET("/login", h.auth.LoginPage)
		site.POST("/login", rateLimiters.login, h.auth.Login)
		site.POST("/logout", h.auth.Logout)
	}

	account := r.Group("/account")
	account.Use(middleware.RequireAuth(h.userService), middleware.CSRFMiddleware())
	{
		account.GET("", h.auth.Account)
	}

	// OAuth2 authorization server
	oauth2 := r.Group("/oauth2/v1")
	{
		browser := oauth2.Group("")
		browser.Use(middleware.LoadSessionUser(h.userService), middleware.CSRFMiddleware())
		browser.GET("/authorize", h.authorization.Authorize)
		browser.POST("/authorize", h.authorization.Consent)

		oauth2.POST("/token", rateLimiters.token, h.token.Token)
		oauth2.POST("/refresh", rateLimiters.token, h.token.Refresh)
		oauth2.POST("/logout", h.token.Logout)
		oauth2.GET("/userinfo",
			middleware.BearerAuth(h.tokenService, h.userService),
			h.token.UserInfo,
		)
	}

	// WordPress REST resources protected by bearer tokens
	wp := r.Group("/wp-json/wp/v2")
	wp.Use(middleware.BearerAuth(h.tokenService, h.userService))
	{
		wp.GET("/users/me", middleware.RequireScope(scope.Read), h.resource.Me)
		wp.GET("/users", middleware.RequireScope(scope.ManageUsers), h.resource.ListUsers)
	}
}

// createHealthCheckHandler creates health check endpoint handler
func createHealthCheckHandler(db *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch err := db.Health(); err {
		case nil:
			c.JSON(http.StatusOK, gin.H{
				"status":   "healthy",
				"database": "connected",
			})
		default:
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "disconnected",
			})
		}
	}
}

// setupGinMode sets Gin mode based on environment configuration
func setupGinMode(cfg *config.Config, log *zap.Logger) {
	mode := ginModeMap[cfg.IsProduction()]
	gin.SetMode(mode)
	log.Debug("gin mode", zap.String("mode", mode))
}

var ginModeMap = map[bool]string{
	true:  gin.ReleaseMode,
	false: gin.DebugMode,
}

// logServerStartup logs server startup information
func logServerStartup(cfg *config.Config, log *zap.Logger) {
	log.Info("OAuth2 authorization server configured",
		zap.String("addr", cfg.ServerAddr),
		zap.String("authorize_url", cfg.BaseURL+"/oauth2/v1/authorize"),
		zap.String("token_store", cfg.TokenStore),
		zap.String("demo_client_id", cfg.DemoClientID),
	)
}
