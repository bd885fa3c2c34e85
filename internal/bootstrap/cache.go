package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-authgate/wpgate/internal/cache"
	"github.com/go-authgate/wpgate/internal/config"
	"github.com/go-authgate/wpgate/internal/metrics"
	"github.com/go-authgate/wpgate/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Token store key prefixes.
const (
	codeKeyPrefix    = "oauth2:code:"
	accessKeyPrefix  = "oauth2:token:"
	refreshKeyPrefix = "oauth2:refresh:"
	jwtRefreshPrefix = "jwt:refresh:"

	memorySweepInterval = time.Minute
	cacheInitTimeout    = 5 * time.Second
)

// tokenStores groups the typed views of the token store.
type tokenStores struct {
	codes   cache.Cache[models.AuthorizationCode]
	access  cache.Cache[models.AccessToken]
	refresh cache.Cache[models.RefreshToken]
}

func (s *tokenStores) Close() error {
	return errors.Join(s.codes.Close(), s.access.Close(), s.refresh.Close())
}

// initializeMetrics initializes Prometheus metrics
func initializeMetrics(cfg *config.Config, log *zap.Logger) metrics.Recorder {
	recorder := metrics.Init(cfg.MetricsEnabled)
	if cfg.MetricsEnabled {
		log.Info("Prometheus metrics initialized")
	} else {
		log.Info("Metrics disabled (using noop implementation)")
	}
	return recorder
}

// newStore builds one typed token store view for the configured backend.
// The go-redis backend shares client; rueidis opens its own connection.
func newStore[T any](
	ctx context.Context,
	cfg *config.Config,
	client *redis.Client,
	prefix string,
) (cache.Cache[T], error) {
	switch cfg.TokenStore {
	case config.TokenStoreRedis:
		return cache.NewRedisCacheFromClient[T](client, prefix), nil
	case config.TokenStoreRueidis:
		ctx, cancel := context.WithTimeout(ctx, cacheInitTimeout)
		defer cancel()
		return cache.NewRueidisCache[T](ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, prefix)
	default:
		c := cache.NewMemoryCache[T]()
		c.StartSweeper(memorySweepInterval)
		return c, nil
	}
}

// initializeTokenStores creates the code, access-token and refresh-token stores.
func initializeTokenStores(
	ctx context.Context,
	cfg *config.Config,
	client *redis.Client,
	log *zap.Logger,
) (*tokenStores, error) {
	codes, err := newStore[models.AuthorizationCode](ctx, cfg, client, codeKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize code store: %w", err)
	}
	access, err := newStore[models.AccessToken](ctx, cfg, client, accessKeyPrefix)
	if err != nil {
		_ = codes.Close()
		return nil, fmt.Errorf("failed to initialize access token store: %w", err)
	}
	refresh, err := newStore[models.RefreshToken](ctx, cfg, client, refreshKeyPrefix)
	if err != nil {
		_ = codes.Close()
		_ = access.Close()
		return nil, fmt.Errorf("failed to initialize refresh token store: %w", err)
	}

	switch cfg.TokenStore {
	case config.TokenStoreRedis, config.TokenStoreRueidis:
		log.Info("token store initialized",
			zap.String("backend", cfg.TokenStore),
			zap.String("addr", cfg.RedisAddr),
			zap.Int("db", cfg.RedisDB),
		)
	default:
		log.Info("token store initialized", zap.String("backend", config.TokenStoreMemory))
	}

	return &tokenStores{codes: codes, access: access, refresh: refresh}, nil
}
