package models

import (
	"context"

	"github.com/gin-gonic/gin"
)

// Context keys set by the authentication middleware.
const (
	ContextKeyUser        = "user"
	ContextKeyUserID      = "user_id"
	ContextKeyAccessToken = "access_token"
)

// UserFromContext returns the authenticated user stored by the session or bearer middleware.
func UserFromContext(ctx context.Context) (*User, bool) {
	if ginCtx, ok := ctx.(*gin.Context); ok {
		if v, exists := ginCtx.Get(ContextKeyUser); exists {
			user, ok := v.(*User)
			return user, ok && user != nil
		}
	}
	return nil, false
}

// AccessTokenFromContext returns the bearer token resolved for the current request.
func AccessTokenFromContext(ctx context.Context) (*AccessToken, bool) {
	if ginCtx, ok := ctx.(*gin.Context); ok {
		if v, exists := ginCtx.Get(ContextKeyAccessToken); exists {
			tok, ok := v.(*AccessToken)
			return tok, ok && tok != nil
		}
	}
	return nil, false
}
