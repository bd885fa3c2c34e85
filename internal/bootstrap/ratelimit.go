package bootstrap

import (
	"fmt"

	"github.com/go-authgate/wpgate/internal/config"
	"github.com/go-authgate/wpgate/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// rateLimitMiddlewares holds rate limiting middlewares for different endpoints
type rateLimitMiddlewares struct {
	login gin.HandlerFunc
	token gin.HandlerFunc
}

// setupRateLimiting configures rate limiting middlewares based on configuration.
// redisClient is nil unless the redis store is selected.
func setupRateLimiting(
	cfg *config.Config,
	redisClient *redis.Client,
	log *zap.Logger,
) (rateLimitMiddlewares, error) {
	if !cfg.EnableRateLimit {
		noOpMiddleware := func(c *gin.Context) { c.Next() }
		log.Info("rate limiting disabled")
		return rateLimitMiddlewares{login: noOpMiddleware, token: noOpMiddleware}, nil
	}
	return createRateLimiters(cfg, redisClient, log)
}

// createRateLimiters creates rate limiting middlewares for all endpoints
func createRateLimiters(
	cfg *config.Config,
	redisClient *redis.Client,
	log *zap.Logger,
) (rateLimitMiddlewares, error) {
	log.Info("rate limiting enabled",
		zap.String("store", cfg.RateLimitStore),
		zap.Int("login_rpm", cfg.LoginRateLimit),
		zap.Int("token_rpm", cfg.TokenRateLimit),
	)

	login, err := newRateLimiter(cfg, redisClient, cfg.LoginRateLimit, "/login", "ratelimit:login")
	if err != nil {
		return rateLimitMiddlewares{}, err
	}
	token, err := newRateLimiter(cfg, redisClient, cfg.TokenRateLimit, "/oauth2/v1/token", "ratelimit:token")
	if err != nil {
		return rateLimitMiddlewares{}, err
	}
	return rateLimitMiddlewares{login: login, token: token}, nil
}

// newRateLimiter builds one per-IP limiter on the configured store.
func newRateLimiter(
	cfg *config.Config,
	redisClient *redis.Client,
	requestsPerMinute int,
	endpoint, prefix string,
) (gin.HandlerFunc, error) {
	rc := middleware.RateLimitConfig{
		RequestsPerMinute: requestsPerMinute,
		StoreType:         middleware.RateLimitStoreType(cfg.RateLimitStore),
		Prefix:            prefix,
	}
	// A nil *redis.Client must not become a non-nil interface.
	if redisClient != nil {
		rc.RedisClient = redisClient
	}
	limiter, err := middleware.NewRateLimiter(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter for %s: %w", endpoint, err)
	}
	return limiter, nil
}
