package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-authgate/wpgate/internal/cache"
	"github.com/go-authgate/wpgate/internal/config"
	"github.com/go-authgate/wpgate/internal/metrics"
	"github.com/go-authgate/wpgate/internal/models"
	"github.com/go-authgate/wpgate/internal/services"
	"github.com/go-authgate/wpgate/internal/store"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	store := cookie.NewStore([]byte("test-secret"))
	r.Use(sessions.Sessions("test_session", store))

	return r
}

type testServices struct {
	users  *services.UserService
	tokens *services.TokenService
	access *cache.MemoryCache[models.AccessToken]
	user   *models.User
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()

	s, err := store.New("sqlite", ":memory:", nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	cfg := &config.Config{
		AuthCodeTTL:     5 * time.Minute,
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
	}
	m := metrics.NewNoopMetrics()
	access := cache.NewMemoryCache[models.AccessToken]()
	users := services.NewUserService(s, m, zap.NewNop())
	tokens := services.NewTokenService(
		services.NewClientService(s, zap.NewNop()),
		cache.NewMemoryCache[models.AuthorizationCode](),
		access,
		cache.NewMemoryCache[models.RefreshToken](),
		cfg, m, zap.NewNop(),
	)

	user, err := users.CreateUser(context.Background(), services.CreateUserRequest{
		Username: "editor",
		Email:    "editor@example.com",
		Password: "password",
		Roles:    []string{models.RoleEditor},
	})
	require.NoError(t, err)

	return &testServices{users: users, tokens: tokens, access: access, user: user}
}

// grant stores an access token for the test user directly in the token store.
func (ts *testServices) grant(t *testing.T, token string, scopes ...string) {
	t.Helper()
	now := time.Now()
	require.NoError(t, ts.access.Set(context.Background(), token, models.AccessToken{
		Token:     token,
		UserID:    ts.user.ID,
		ClientID:  "client",
		Scopes:    scopes,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}, time.Hour))
}

// loginRoute signs the given user ID into the session.
func loginRoute(r *gin.Engine, userID string) {
	r.GET("/login-as", func(c *gin.Context) {
		session := sessions.Default(c)
		session.Set(SessionUserID, userID)
		_ = session.Save()
		c.String(http.StatusOK, "OK")
	})
}

func sessionCookies(t *testing.T, r *gin.Engine) []*http.Cookie {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login-as", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Result().Cookies()
}

func TestRequireAuth_RedirectURLEncoded(t *testing.T) {
	ts := newTestServices(t)
	r := setupTestRouter()
	r.GET("/oauth2/v1/authorize", RequireAuth(ts.users), func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	target := "/oauth2/v1/authorize?client_id=abc&redirect_uri=http%3A%2F%2Flocalhost%3A5173%2Fcallback&state=x"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))

	assert.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/login", loc.Path)
	assert.Equal(t, target, loc.Query().Get("redirect"))
}

func TestRequireAuth_LoadsUser(t *testing.T) {
	ts := newTestServices(t)
	r := setupTestRouter()
	loginRoute(r, ts.user.ID)
	r.GET("/account", RequireAuth(ts.users), func(c *gin.Context) {
		user, ok := models.UserFromContext(c)
		require.True(t, ok)
		c.String(http.StatusOK, user.Username)
	})

	req := httptest.NewRequest(http.MethodGet, "/account", nil)
	for _, ck := range sessionCookies(t, r) {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "editor", w.Body.String())
}

func TestRequireAuth_DeletedUser(t *testing.T) {
	ts := newTestServices(t)
	r := setupTestRouter()
	loginRoute(r, "no-such-user")
	r.GET("/account", RequireAuth(ts.users), func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	req := httptest.NewRequest(http.MethodGet, "/account", nil)
	for _, ck := range sessionCookies(t, r) {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
}

func TestLoadSessionUser_Anonymous(t *testing.T) {
	ts := newTestServices(t)
	r := setupTestRouter()
	r.GET("/", LoadSessionUser(ts.users), func(c *gin.Context) {
		_, ok := models.UserFromContext(c)
		assert.False(t, ok)
		c.String(http.StatusOK, "anon")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "anon", w.Body.String())
}
