package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-authgate/wpgate/internal/cache"
	"github.com/go-authgate/wpgate/internal/config"
	"github.com/go-authgate/wpgate/internal/metrics"
	"github.com/go-authgate/wpgate/internal/models"
	"github.com/go-authgate/wpgate/internal/util"

	"go.uber.org/zap"
)

// Token endpoint and bearer errors. The messages are the RFC 6749 / RFC 6750 error codes.
var (
	ErrUnsupportedGrantType = errors.New("unsupported_grant_type")
	ErrInvalidClient        = errors.New("invalid_client")
	ErrInvalidGrant         = errors.New("invalid_grant")
	ErrInvalidToken         = errors.New("invalid_token")

	// ErrTokenStoreUnavailable wraps backend failures; callers fail closed.
	ErrTokenStoreUnavailable = errors.New("token store unavailable")
)

const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshCookie     = "refresh_cookie"

	TokenTypeBearer = "Bearer"

	accessTokenBytes  = 48
	refreshTokenBytes = 48
)

// TokenRequest carries the form parameters of POST /token.
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	CodeVerifier string
}

// TokenResult is returned by a successful exchange or refresh.
type TokenResult struct {
	AccessToken  *models.AccessToken
	RefreshToken *models.RefreshToken
	ExpiresIn    int
}

// TokenService issues, validates, refreshes and revokes opaque tokens kept in the token store.
type TokenService struct {
	clients *ClientService
	codes   cache.Cache[models.AuthorizationCode]
	access  cache.Cache[models.AccessToken]
	refresh cache.Cache[models.RefreshToken]
	config  *config.Config
	metrics metrics.Recorder
	log     *zap.Logger
	now     func() time.Time
}

func NewTokenService(
	clients *ClientService,
	codes cache.Cache[models.AuthorizationCode],
	access cache.Cache[models.AccessToken],
	refresh cache.Cache[models.RefreshToken],
	cfg *config.Config,
	m metrics.Recorder,
	log *zap.Logger,
) *TokenService {
	return &TokenService{
		clients: clients,
		codes:   codes,
		access:  access,
		refresh: refresh,
		config:  cfg,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

// ============================================================
// Authorization code exchange
// ============================================================

// ExchangeAuthorizationCode redeems a code for an access token and a refresh token.
// Client authentication runs before the code is touched; from the moment the code
// is taken it is gone, whatever the outcome.
func (s *TokenService) ExchangeAuthorizationCode(
	ctx context.Context,
	req TokenRequest,
) (*TokenResult, error) {
	result, err := s.exchangeAuthorizationCode(ctx, req)
	outcome := "success"
	if err != nil {
		outcome = errorCode(err)
	}
	s.metrics.RecordTokenExchange(GrantTypeAuthorizationCode, outcome)
	return result, err
}

func (s *TokenService) exchangeAuthorizationCode(
	ctx context.Context,
	req TokenRequest,
) (*TokenResult, error) {
	// 1. grant type
	if req.GrantType != GrantTypeAuthorizationCode {
		return nil, ErrUnsupportedGrantType
	}

	// 2. client authentication
	client, err := s.clients.Lookup(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return nil, ErrInvalidClient
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenStoreUnavailable, err)
	}
	switch {
	case req.ClientSecret != "":
		if client.IsPublic() || !verifyClientSecret(client.ClientSecretHash, req.ClientSecret) {
			return nil, ErrInvalidClient
		}
	case req.CodeVerifier != "":
		// Proof of possession is checked against the code below.
	default:
		return nil, ErrInvalidClient
	}

	if req.Code == "" {
		return nil, ErrInvalidGrant
	}

	// 3. single-use: read and delete atomically
	code, err := s.codes.Take(ctx, req.Code)
	if err != nil {
		if cache.IsMiss(err) {
			return nil, ErrInvalidGrant
		}
		s.log.Error("failed to read authorization code", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrTokenStoreUnavailable, err)
	}

	// 4. bound to the client it was issued to
	if code.ClientID != client.ClientID {
		s.log.Warn("authorization code presented by another client",
			zap.String("client_id", client.ClientID),
			zap.String("code_fp", util.Fingerprint(req.Code)),
		)
		return nil, ErrInvalidGrant
	}

	// 5. bound to the exact redirect_uri used at authorize time
	if code.RedirectURI != req.RedirectURI {
		return nil, ErrInvalidGrant
	}

	// 6. PKCE
	if code.UsesPKCE() {
		if !verifyPKCE(code.CodeChallenge, code.CodeChallengeMethod, req.CodeVerifier) {
			return nil, ErrInvalidGrant
		}
	} else if req.ClientSecret == "" {
		// Client authenticated by verifier only, but the code has no challenge.
		return nil, ErrInvalidGrant
	}

	result, err := s.issue(ctx, code.UserID, code.ClientID, code.Scopes, GrantTypeAuthorizationCode)
	if err != nil {
		return nil, err
	}

	s.log.Info("access token issued",
		zap.String("client_id", code.ClientID),
		zap.String("user_id", code.UserID),
		zap.Strings("scopes", code.Scopes),
		zap.String("token_fp", util.Fingerprint(result.AccessToken.Token)),
	)
	return result, nil
}

// ============================================================
// Refresh
// ============================================================

// RefreshAccessToken trades a refresh token (from the HttpOnly cookie) for a new
// access token and a rotated refresh token. The old refresh token is consumed.
func (s *TokenService) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenResult, error) {
	result, err := s.refreshAccessToken(ctx, refreshToken)
	outcome := "success"
	if err != nil {
		outcome = errorCode(err)
	}
	s.metrics.RecordTokenExchange(GrantTypeRefreshCookie, outcome)
	return result, err
}

func (s *TokenService) refreshAccessToken(ctx context.Context, refreshToken string) (*TokenResult, error) {
	if refreshToken == "" {
		return nil, ErrInvalidGrant
	}

	stored, err := s.refresh.Take(ctx, refreshToken)
	if err != nil {
		if cache.IsMiss(err) {
			return nil, ErrInvalidGrant
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenStoreUnavailable, err)
	}

	// The client may have been removed since the token was issued.
	if _, err := s.clients.Lookup(ctx, stored.ClientID); err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenStoreUnavailable, err)
	}

	result, err := s.issue(ctx, stored.UserID, stored.ClientID, stored.Scopes, GrantTypeRefreshCookie)
	if err != nil {
		return nil, err
	}

	s.log.Info("access token refreshed",
		zap.String("client_id", stored.ClientID),
		zap.String("user_id", stored.UserID),
	)
	return result, nil
}

func (s *TokenService) issue(
	ctx context.Context,
	userID, clientID string,
	scopes []string,
	grantType string,
) (*TokenResult, error) {
	now := s.now()

	accessPlain, err := util.RandomHex(accessTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refreshPlain, err := util.RandomHex(refreshTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	access := models.AccessToken{
		Token:     accessPlain,
		UserID:    userID,
		ClientID:  clientID,
		Scopes:    scopes,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.AccessTokenTTL),
	}
	refresh := models.RefreshToken{
		Token:     refreshPlain,
		UserID:    userID,
		ClientID:  clientID,
		Scopes:    scopes,
		CreatedAt: now,
	}

	if err := s.access.Set(ctx, accessPlain, access, s.config.AccessTokenTTL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenStoreUnavailable, err)
	}
	if err := s.refresh.Set(ctx, refreshPlain, refresh, s.config.RefreshTokenTTL); err != nil {
		_ = s.access.Delete(ctx, accessPlain)
		return nil, fmt.Errorf("%w: %v", ErrTokenStoreUnavailable, err)
	}

	s.metrics.RecordTokenIssued("access", grantType)
	s.metrics.RecordTokenIssued("refresh", grantType)

	return &TokenResult{
		AccessToken:  &access,
		RefreshToken: &refresh,
		ExpiresIn:    int(s.config.AccessTokenTTL.Seconds()),
	}, nil
}

// ============================================================
// Bearer validation and revocation
// ============================================================

// ValidateAccessToken resolves a bearer token. Unknown and expired tokens yield ErrInvalidToken.
func (s *TokenService) ValidateAccessToken(ctx context.Context, token string) (*models.AccessToken, error) {
	if token == "" {
		s.metrics.RecordTokenValidation("invalid")
		return nil, ErrInvalidToken
	}

	stored, err := s.access.Get(ctx, token)
	if err != nil {
		if cache.IsMiss(err) {
			s.metrics.RecordTokenValidation("invalid")
			return nil, ErrInvalidToken
		}
		s.metrics.RecordTokenValidation("error")
		s.log.Error("failed to read access token", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrTokenStoreUnavailable, err)
	}

	// Backends expire entries on their own; this guards clock skew between instances.
	if !s.now().Before(stored.ExpiresAt) {
		s.metrics.RecordTokenValidation("invalid")
		return nil, ErrInvalidToken
	}

	s.metrics.RecordTokenValidation("valid")
	return &stored, nil
}

// RevokeAccessToken deletes an access token. Unknown tokens are not an error.
func (s *TokenService) RevokeAccessToken(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.access.Delete(ctx, token); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenStoreUnavailable, err)
	}
	s.metrics.RecordTokenRevoked("access")
	return nil
}

// RevokeRefreshToken deletes a refresh token. Unknown tokens are not an error.
func (s *TokenService) RevokeRefreshToken(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.refresh.Delete(ctx, token); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenStoreUnavailable, err)
	}
	s.metrics.RecordTokenRevoked("refresh")
	return nil
}

// errorCode maps a service error to the label used in metrics and logs.
func errorCode(err error) string {
	for _, known := range []error{
		ErrUnsupportedGrantType, ErrInvalidClient, ErrInvalidGrant, ErrInvalidToken,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "server_error"
}
