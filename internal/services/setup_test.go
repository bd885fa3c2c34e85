package services

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"github.com/go-authgate/wpgate/internal/cache"
	"github.com/go-authgate/wpgate/internal/config"
	"github.com/go-authgate/wpgate/internal/metrics"
	"github.com/go-authgate/wpgate/internal/models"
	"github.com/go-authgate/wpgate/internal/store"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testClientPlainSecret = "test-plain-secret" //nolint:gosec
	testPKCEVerifier      = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	testRedirectURI       = "https://app.example.com/callback"
	testAltRedirectURI    = "https://app.example.com/alt"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New("sqlite", ":memory:", nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type testEnv struct {
	cfg     *config.Config
	store   *store.Store
	clients *ClientService
	users   *UserService
	authz   *AuthorizationService
	tokens  *TokenService

	codes   *cache.MemoryCache[models.AuthorizationCode]
	access  *cache.MemoryCache[models.AccessToken]
	refresh *cache.MemoryCache[models.RefreshToken]
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		AuthCodeTTL:     300 * time.Second,
		AccessTokenTTL:  3600 * time.Second,
		RefreshTokenTTL: 720 * time.Hour,
	}
	s := setupTestStore(t)
	log := zap.NewNop()
	m := metrics.NewNoopMetrics()

	env := &testEnv{
		cfg:     cfg,
		store:   s,
		codes:   cache.NewMemoryCache[models.AuthorizationCode](),
		access:  cache.NewMemoryCache[models.AccessToken](),
		refresh: cache.NewMemoryCache[models.RefreshToken](),
	}
	env.clients = NewClientService(s, log)
	env.users = NewUserService(s, m, log)
	env.authz = NewAuthorizationService(env.clients, env.codes, cfg, m, log)
	env.tokens = NewTokenService(env.clients, env.codes, env.access, env.refresh, cfg, m, log)
	return env
}

func (e *testEnv) createUser(t *testing.T, username string, roles ...string) *models.User {
	t.Helper()
	user, err := e.users.CreateUser(context.Background(), CreateUserRequest{
		Username:    username,
		Email:       username + "@example.com",
		Password:    "password-" + username,
		DisplayName: "User " + username,
		Roles:       roles,
	})
	require.NoError(t, err)
	return user
}

func (e *testEnv) registerClient(t *testing.T, public bool) *models.Client {
	t.Helper()
	secret := testClientPlainSecret
	if public {
		secret = ""
	}
	resp, err := e.clients.Register(context.Background(), RegisterClientRequest{
		ClientSecret: secret,
		Name:         "Test Client",
		RedirectURIs: []string{testRedirectURI, testAltRedirectURI},
		Public:       public,
	})
	require.NoError(t, err)
	return resp.Client
}

func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func authorizeRequest(clientID, scope string) AuthorizeRequest {
	return AuthorizeRequest{
		ResponseType: "code",
		ClientID:     clientID,
		RedirectURI:  testRedirectURI,
		State:        "xyz-state",
		Scope:        scope,
	}
}

// issueCode runs consent approval and returns the plaintext code from the redirect.
func (e *testEnv) issueCode(t *testing.T, req AuthorizeRequest, user *models.User) string {
	t.Helper()
	d := e.authz.HandleConsent(context.Background(), req, user, true)
	require.Equal(t, DecisionRedirect, d.Kind, "unexpected decision: %v %s", d.Err, d.Description)
	require.NoError(t, d.Err)
	return queryParam(t, d.Location, "code")
}
