package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/go-authgate/wpgate/internal/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisConnTimeout = 5 * time.Second

// needsRedisClient reports whether any component uses the shared go-redis client.
// ulule/limiter depends on go-redis types, so the rate limiter always goes through it.
func needsRedisClient(cfg *config.Config) bool {
	if cfg.TokenStore == config.TokenStoreRedis {
		return true
	}
	return cfg.EnableRateLimit && cfg.RateLimitStore == config.RateLimitStoreRedis
}

// initializeRedisClient returns the shared go-redis client, or nil when no
// component needs one.
func initializeRedisClient(
	ctx context.Context,
	cfg *config.Config,
	log *zap.Logger,
) (*redis.Client, error) {
	if !needsRedisClient(cfg) {
		return nil, nil //nolint:nilnil // redis client not needed in this configuration
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(ctx, redisConnTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.RedisAddr, err)
	}

	log.Info("Redis client initialized",
		zap.String("addr", cfg.RedisAddr),
		zap.Int("db", cfg.RedisDB),
	)
	return client, nil
}
