package bootstrap

import (
	"github.com/go-authgate/wpgate/internal/config"
	"github.com/go-authgate/wpgate/internal/metrics"
	"github.com/go-authgate/wpgate/internal/services"
	"github.com/go-authgate/wpgate/internal/store"

	"go.uber.org/zap"
)

// initializeServices creates all business services
func initializeServices(
	cfg *config.Config,
	db *store.Store,
	stores *tokenStores,
	m metrics.Recorder,
	log *zap.Logger,
) (*services.UserService, *services.ClientService, *services.TokenService, *services.AuthorizationService) {
	userService := services.NewUserService(db, m, log.Named("users"))
	clientService := services.NewClientService(db, log.Named("clients"))
	tokenService := services.NewTokenService(
		clientService,
		stores.codes,
		stores.access,
		stores.refresh,
		cfg,
		m,
		log.Named("tokens"),
	)
	authorizationService := services.NewAuthorizationService(
		clientService,
		stores.codes,
		cfg,
		m,
		log.Named("authorize"),
	)

	return userService, clientService, tokenService, authorizationService
}
