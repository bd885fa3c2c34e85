package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-authgate/wpgate/internal/cache"
	"github.com/go-authgate/wpgate/internal/config"
	"github.com/go-authgate/wpgate/internal/jwtproxy"
	"github.com/go-authgate/wpgate/internal/metrics"
	"github.com/go-authgate/wpgate/internal/middleware"
	"github.com/go-authgate/wpgate/internal/retry"
	"github.com/go-authgate/wpgate/internal/util"

	"github.com/appleboy/graceful"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ProxyApplication holds the components of the JWT relay proxy
type ProxyApplication struct {
	Config *config.Config
	Log    *zap.Logger

	MetricsRecorder metrics.Recorder
	RedisClient     *redis.Client
	Sessions        cache.Cache[jwtproxy.RefreshSession]

	Handler *jwtproxy.Handler
	Router  *gin.Engine
	Server  *http.Server
}

// RunProxy initializes and starts the JWT relay proxy
func RunProxy(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	app, err := NewProxy(ctx, cfg, log)
	if err != nil {
		return err
	}

	m := graceful.NewManager()
	addServerRunningJob(m, app.Server, app.Log)
	addServerShutdownJob(m, app.Server, app.Log)
	addTokenStoreShutdownJob(m, app.Sessions, app.Log)
	addRedisClientShutdownJob(m, app.RedisClient, app.Log)

	<-m.Done()
	return nil
}

// NewProxy wires the relay without starting the listener.
func NewProxy(ctx context.Context, cfg *config.Config, log *zap.Logger) (*ProxyApplication, error) {
	if err := cfg.ValidateProxy(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &ProxyApplication{Config: cfg, Log: log}
	app.MetricsRecorder = initializeMetrics(cfg, log)

	var err error
	app.RedisClient, err = initializeRedisClient(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	app.Sessions, err = newStore[jwtproxy.RefreshSession](ctx, cfg, app.RedisClient, jwtRefreshPrefix)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize refresh session store: %w", err)
	}

	upstream := retry.NewClient(
		retry.WithMaxRetries(cfg.UpstreamMaxRetries),
		retry.WithInitialRetryDelay(cfg.UpstreamRetryDelay),
		retry.WithHTTPClient(&http.Client{Timeout: cfg.UpstreamTimeout}),
		retry.WithLogger(log.Named("wordpress")),
	)
	app.Handler, err = jwtproxy.NewHandler(
		cfg,
		jwtproxy.NewIssuer(cfg),
		jwtproxy.NewWordPressClient(cfg.WordPressBaseURL, upstream),
		app.Sessions,
		app.MetricsRecorder,
		log.Named("jwtproxy"),
	)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Router, err = setupProxyRouter(cfg, app.Handler, app.MetricsRecorder, app.RedisClient, log)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Server = createHTTPServer(cfg.ProxyAddr, app.Router)
	return app, nil
}

// Close releases the session store and the Redis client.
func (app *ProxyApplication) Close() {
	if app.Sessions != nil {
		_ = app.Sessions.Close()
	}
	if app.RedisClient != nil {
		_ = app.RedisClient.Close()
	}
}

// setupProxyRouter configures the relay's Gin router. Browsers call it cross-origin
// with credentials, so CORS is limited to the configured origins.
func setupProxyRouter(
	cfg *config.Config,
	h *jwtproxy.Handler,
	recorder metrics.Recorder,
	redisClient *redis.Client,
	log *zap.Logger,
) (*gin.Engine, error) {
	setupGinMode(cfg, log)
	r := gin.New()

	r.Use(metrics.HTTPMetricsMiddleware(recorder))
	r.Use(middleware.AccessLog(log.Named("http")), gin.Recovery())
	r.Use(util.IPMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-WP-Nonce"},
		ExposeHeaders:    []string{"X-WP-Total", "X-WP-TotalPages"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	setupMetricsEndpoint(r, cfg, log)

	var loginLimit gin.HandlerFunc
	if cfg.EnableRateLimit {
		var err error
		loginLimit, err = newRateLimiter(cfg, redisClient, cfg.LoginRateLimit, "/api/login", "ratelimit:jwt-login")
		if err != nil {
			return nil, err
		}
	}

	h.RegisterRoutes(r, loginLimit)

	log.Info("JWT relay proxy configured",
		zap.String("addr", cfg.ProxyAddr),
		zap.String("wordpress", cfg.WordPressBaseURL),
		zap.Strings("cors_origins", cfg.CORSOrigins),
		zap.String("session_store", cfg.TokenStore),
	)
	return r, nil
}
