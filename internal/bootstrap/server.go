package bootstrap

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-authgate/wpgate/internal/store"

	"github.com/appleboy/graceful"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// createHTTPServer creates the HTTP server instance
func createHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// addServerRunningJob adds the HTTP server running job
func addServerRunningJob(m *graceful.Manager, srv *http.Server, log *zap.Logger) {
	m.AddRunningJob(func(ctx context.Context) error {
		go func() {
			log.Info("server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal("failed to start server", zap.Error(err))
			}
		}()
		<-ctx.Done()
		return nil
	})
}

// addServerShutdownJob adds HTTP server shutdown handler
func addServerShutdownJob(m *graceful.Manager, srv *http.Server, log *zap.Logger) {
	m.AddShutdownJob(func() error {
		log.Info("shutting down server", zap.String("addr", srv.Addr))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("server forced to shutdown", zap.Error(err))
			return err
		}

		log.Info("server exited", zap.String("addr", srv.Addr))
		return nil
	})
}

// addTokenStoreShutdownJob closes a token store backend
func addTokenStoreShutdownJob(m *graceful.Manager, stores io.Closer, log *zap.Logger) {
	if stores == nil {
		return
	}

	m.AddShutdownJob(func() error {
		if err := stores.Close(); err != nil {
			log.Error("error closing token store", zap.Error(err))
			return err
		}
		log.Info("token store closed")
		return nil
	})
}

// addRedisClientShutdownJob adds Redis client shutdown handler
func addRedisClientShutdownJob(m *graceful.Manager, redisClient *redis.Client, log *zap.Logger) {
	if redisClient == nil {
		return
	}

	m.AddShutdownJob(func() error {
		if err := redisClient.Close(); err != nil {
			log.Error("error closing Redis client", zap.Error(err))
			return err
		}
		log.Info("Redis connection closed")
		return nil
	})
}

// addDatabaseShutdownJob closes the database connection pool
func addDatabaseShutdownJob(m *graceful.Manager, db *store.Store, log *zap.Logger) {
	if db == nil {
		return
	}

	m.AddShutdownJob(func() error {
		if err := db.Close(); err != nil {
			log.Error("error closing database", zap.Error(err))
			return err
		}
		log.Info("database closed")
		return nil
	})
}
