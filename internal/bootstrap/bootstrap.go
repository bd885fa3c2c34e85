package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-authgate/wpgate/internal/config"
	"github.com/go-authgate/wpgate/internal/metrics"
	"github.com/go-authgate/wpgate/internal/services"
	"github.com/go-authgate/wpgate/internal/store"

	"github.com/appleboy/graceful"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Application holds all initialized components of the authorization server
type Application struct {
	Config *config.Config
	Log    *zap.Logger

	// Core infrastructure
	DB              *store.Store
	MetricsRecorder metrics.Recorder
	RedisClient     *redis.Client
	TokenStores     *tokenStores

	// Services
	UserService          *services.UserService
	ClientService        *services.ClientService
	TokenService         *services.TokenService
	AuthorizationService *services.AuthorizationService

	// HTTP
	HandlerSet handlerSet
	Router     *gin.Engine
	Server     *http.Server
}

// Run initializes and starts the authorization server
func Run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	app, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	app.startWithGracefulShutdown()
	return nil
}

// New wires every component without starting the listener.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Application, error) {
	// Phase 1: Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{Config: cfg, Log: log}

	// Phase 2: Initialize infrastructure
	if err := app.initializeInfrastructure(ctx); err != nil {
		app.Close()
		return nil, err
	}

	// Phase 3: Initialize business layer
	app.initializeBusinessLayer()

	// Phase 4: Initialize HTTP layer
	if err := app.initializeHTTPLayer(); err != nil {
		app.Close()
		return nil, err
	}

	return app, nil
}

// initializeInfrastructure sets up database, metrics, Redis and the token store
func (app *Application) initializeInfrastructure(ctx context.Context) error {
	var err error

	app.DB, err = initializeDatabase(app.Config, app.Log)
	if err != nil {
		return err
	}

	app.MetricsRecorder = initializeMetrics(app.Config, app.Log)

	app.RedisClient, err = initializeRedisClient(ctx, app.Config, app.Log)
	if err != nil {
		return err
	}

	app.TokenStores, err = initializeTokenStores(ctx, app.Config, app.RedisClient, app.Log)
	return err
}

// initializeBusinessLayer sets up services
func (app *Application) initializeBusinessLayer() {
	app.UserService,
		app.ClientService,
		app.TokenService,
		app.AuthorizationService = initializeServices(
		app.Config,
		app.DB,
		app.TokenStores,
		app.MetricsRecorder,
		app.Log,
	)
}

// initializeHTTPLayer sets up handlers, router, and server
func (app *Application) initializeHTTPLayer() error {
	app.HandlerSet = initializeHandlers(
		app.Config,
		app.UserService,
		app.TokenService,
		app.AuthorizationService,
		app.Log,
	)

	var err error
	app.Router, err = setupRouter(
		app.Config,
		app.DB,
		app.HandlerSet,
		app.MetricsRecorder,
		app.RedisClient,
		app.Log,
	)
	if err != nil {
		return err
	}

	app.Server = createHTTPServer(app.Config.ServerAddr, app.Router)
	return nil
}

// Close releases infrastructure in reverse order of creation.
func (app *Application) Close() {
	if app.TokenStores != nil {
		_ = app.TokenStores.Close()
	}
	if app.RedisClient != nil {
		_ = app.RedisClient.Close()
	}
	if app.DB != nil {
		_ = app.DB.Close()
	}
}

// startWithGracefulShutdown starts the server and handles graceful shutdown
func (app *Application) startWithGracefulShutdown() {
	m := graceful.NewManager()

	addServerRunningJob(m, app.Server, app.Log)
	addServerShutdownJob(m, app.Server, app.Log)
	addTokenStoreShutdownJob(m, app.TokenStores, app.Log)
	addRedisClientShutdownJob(m, app.RedisClient, app.Log)
	addDatabaseShutdownJob(m, app.DB, app.Log)

	<-m.Done()
}
