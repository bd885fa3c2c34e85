package bootstrap

import (
	"github.com/go-authgate/wpgate/internal/config"
	"github.com/go-authgate/wpgate/internal/handlers"
	"github.com/go-authgate/wpgate/internal/services"

	"go.uber.org/zap"
)

// handlerSet holds all HTTP handlers
type handlerSet struct {
	auth          *handlers.AuthHandler
	authorization *handlers.AuthorizationHandler
	token         *handlers.TokenHandler
	resource      *handlers.ResourceHandler
	userService   *services.UserService
	tokenService  *services.TokenService
}

// initializeHandlers creates all HTTP handlers
func initializeHandlers(
	cfg *config.Config,
	userService *services.UserService,
	tokenService *services.TokenService,
	authorizationService *services.AuthorizationService,
	log *zap.Logger,
) handlerSet {
	return handlerSet{
		auth:          handlers.NewAuthHandler(userService, cfg.BaseURL, log.Named("login")),
		authorization: handlers.NewAuthorizationHandler(authorizationService, log.Named("authorize")),
		token:         handlers.NewTokenHandler(tokenService, cfg, log.Named("token")),
		resource:      handlers.NewResourceHandler(userService, log.Named("resource")),
		userService:   userService,
		tokenService:  tokenService,
	}
}
