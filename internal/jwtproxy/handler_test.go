package jwtproxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-authgate/wpgate/internal/cache"
	"github.com/go-authgate/wpgate/internal/metrics"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLogin(t *testing.T) {
	p := newTestProxy(t)

	resp, cookie := p.login(t)

	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, 900, resp.ExpiresIn)
	assert.Equal(t, User{ID: "1", Username: "admin", Email: "admin@example.com", DisplayName: "Site Admin"}, resp.User)

	assert.Equal(t, "/api", cookie.Path)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, 7*24*3600, cookie.MaxAge)

	claims, err := p.issuer.ParseAccess(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "1", claims.Subject)
	assert.Equal(t, "wp-token-1", claims.WPToken)

	refresh, err := p.issuer.ParseRefresh(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, 1, p.sessions.Len())
	_, err = p.sessions.Get(t.Context(), refresh.ID)
	assert.NoError(t, err)
}

func TestLogin_MissingFields(t *testing.T) {
	p := newTestProxy(t)

	w := p.do(http.MethodPost, "/api/login", map[string]string{"username": "admin"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, int32(0), p.wp.tokenCalls.Load())
}

func TestLogin_WordPressRejects(t *testing.T) {
	p := newTestProxy(t)

	w := p.do(http.MethodPost, "/api/login", Credentials{Username: "admin", Password: "wrong"}, "")

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"The password you entered is incorrect."}`, w.Body.String())
	assert.Nil(t, refreshCookie(w))
	assert.Equal(t, 0, p.sessions.Len())
	assert.Equal(t, int32(1), p.wp.tokenCalls.Load())
}

func TestLogin_RetriesUnavailableWordPress(t *testing.T) {
	p := newTestProxy(t)
	p.wp.failFirst.Store(2)

	resp, _ := p.login(t)

	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int32(3), p.wp.tokenCalls.Load())
}

func TestLogin_WordPressDown(t *testing.T) {
	p := newTestProxy(t)
	p.wp.server.Close()

	w := p.do(http.MethodPost, "/api/login", Credentials{Username: "admin", Password: "secret"}, "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestRefresh_RotatesToken(t *testing.T) {
	p := newTestProxy(t)
	_, first := p.login(t)

	w := p.do(http.MethodPost, "/api/refresh", nil, "", first)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp loginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "admin", resp.User.Username)
	claims, err := p.issuer.ParseAccess(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "wp-token-1", claims.WPToken)

	second := refreshCookie(w)
	require.NotNil(t, second)
	assert.NotEqual(t, first.Value, second.Value)
	assert.Equal(t, 1, p.sessions.Len())

	// The rotated-out token is gone.
	w = p.do(http.MethodPost, "/api/refresh", nil, "", first)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	cleared := refreshCookie(w)
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)

	w = p.do(http.MethodPost, "/api/refresh", nil, "", second)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRefresh_Rejections(t *testing.T) {
	p := newTestProxy(t)
	login, _ := p.login(t)

	tests := []struct {
		name   string
		cookie *http.Cookie
	}{
		{"no cookie", nil},
		{"garbage", &http.Cookie{Name: RefreshCookieName, Value: "not-a-jwt"}},
		{"access token in cookie", &http.Cookie{Name: RefreshCookieName, Value: login.AccessToken}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cookies []*http.Cookie
			if tt.cookie != nil {
				cookies = append(cookies, tt.cookie)
			}
			w := p.do(http.MethodPost, "/api/refresh", nil, "", cookies...)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.JSONEq(t, `{"error":"Invalid refresh token"}`, w.Body.String())
		})
	}
}

func TestRefresh_RevokedJTI(t *testing.T) {
	p := newTestProxy(t)
	_, cookie := p.login(t)

	claims, err := p.issuer.ParseRefresh(cookie.Value)
	require.NoError(t, err)
	require.NoError(t, p.sessions.Delete(t.Context(), claims.ID))

	w := p.do(http.MethodPost, "/api/refresh", nil, "", cookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogout(t *testing.T) {
	p := newTestProxy(t)
	_, cookie := p.login(t)

	w := p.do(http.MethodPost, "/api/logout", nil, "", cookie)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, -1, refreshCookie(w).MaxAge)
	assert.Equal(t, 0, p.sessions.Len())

	w = p.do(http.MethodPost, "/api/refresh", nil, "", cookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Without a cookie logout still succeeds.
	w = p.do(http.MethodPost, "/api/logout", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMe(t *testing.T) {
	p := newTestProxy(t)
	login, cookie := p.login(t)

	w := p.do(http.MethodGet, "/api/me", nil, login.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t,
		`{"user":{"id":"1","username":"admin","email":"admin@example.com","display_name":"Site Admin"}}`,
		w.Body.String())

	w = p.do(http.MethodGet, "/api/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = p.do(http.MethodGet, "/api/me", nil, cookie.Value)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealth(t *testing.T) {
	p := newTestProxy(t)

	w := p.do(http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestHealth_StoreDownHidesDetail(t *testing.T) {
	mr := miniredis.RunT(t)
	sessions, err := cache.NewRedisCache[RefreshSession](context.Background(), mr.Addr(), "", 0, "jwt:refresh:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sessions.Close() })

	cfg := testConfig("http://127.0.0.1:1")
	h, err := NewHandler(cfg, NewIssuer(cfg), nil, sessions, metrics.NewNoopMetrics(), zap.NewNop())
	require.NoError(t, err)
	r := gin.New()
	h.RegisterRoutes(r, nil)

	addr := mr.Addr()
	mr.Close()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unhealthy","error":"token store unavailable"}`, w.Body.String())
	assert.NotContains(t, w.Body.String(), addr)
}

func TestWordPressProxy(t *testing.T) {
	p := newTestProxy(t)
	login, cookie := p.login(t)

	t.Run("attaches upstream token", func(t *testing.T) {
		w := p.do(http.MethodGet, "/wp-json/wp/v2/users/me", nil, login.AccessToken, cookie)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"id":1,"name":"Site Admin"}`, w.Body.String())
		assert.Empty(t, w.Header().Get("Set-Cookie"))

		auth, sentCookie := p.wp.seen()
		assert.Equal(t, "Bearer wp-token-1", auth)
		assert.Empty(t, sentCookie)
	})

	t.Run("anonymous passes through", func(t *testing.T) {
		w := p.do(http.MethodGet, "/wp-json/wp/v2/users/me", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		auth, _ := p.wp.seen()
		assert.Empty(t, auth)
	})

	t.Run("invalid token is refused", func(t *testing.T) {
		before := p.wp.resourceHits.Load()
		w := p.do(http.MethodGet, "/wp-json/wp/v2/users/me", nil, "bogus")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, before, p.wp.resourceHits.Load())
	})
}

func TestNewHandler_InvalidUpstream(t *testing.T) {
	cfg := testConfig("not a url")
	_, err := NewHandler(cfg, NewIssuer(cfg), nil, nil, nil, nil)
	assert.Error(t, err)
}
