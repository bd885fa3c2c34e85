package jwtproxy

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-authgate/wpgate/internal/cache"
	"github.com/go-authgate/wpgate/internal/config"
	"github.com/go-authgate/wpgate/internal/metrics"
	"github.com/go-authgate/wpgate/internal/retry"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeWordPress plays the jwt-auth plugin and one REST route.
type fakeWordPress struct {
	server *httptest.Server

	tokenCalls   atomic.Int32
	failFirst    atomic.Int32 // answer 503 to this many token calls
	resourceHits atomic.Int32

	mu             sync.Mutex
	lastAuthHeader string
	lastCookie     string
}

func newFakeWordPress(t *testing.T) *fakeWordPress {
	t.Helper()
	wp := &fakeWordPress{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+wpTokenPath, func(w http.ResponseWriter, r *http.Request) {
		n := wp.tokenCalls.Add(1)
		if n <= wp.failFirst.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var creds Credentials
		_ = json.NewDecoder(r.Body).Decode(&creds)
		w.Header().Set("Content-Type", "application/json")
		if creds.Username != "admin" || creds.Password != "secret" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"code":"[jwt_auth] incorrect_password","message":"The password you entered is incorrect.","data":{"status":403}}`))
			return
		}
		_, _ = w.Write([]byte(`{"token":"wp-token-1","user_email":"admin@example.com","user_nicename":"admin","user_display_name":"Site Admin","user_id":1}`))
	})
	mux.HandleFunc("/wp-json/wp/v2/users/me", func(w http.ResponseWriter, r *http.Request) {
		wp.resourceHits.Add(1)
		wp.mu.Lock()
		wp.lastAuthHeader = r.Header.Get("Authorization")
		wp.lastCookie = r.Header.Get("Cookie")
		wp.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "wordpress_logged_in", Value: "x"})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":1,"name":"Site Admin"}`))
	})
	wp.server = httptest.NewServer(mux)
	t.Cleanup(wp.server.Close)
	return wp
}

func (wp *fakeWordPress) seen() (auth, cookie string) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.lastAuthHeader, wp.lastCookie
}

type testProxy struct {
	router   *gin.Engine
	wp       *fakeWordPress
	issuer   *Issuer
	sessions *cache.MemoryCache[RefreshSession]
}

func testConfig(wpURL string) *config.Config {
	return &config.Config{
		JWTAccessSecret:  "access-secret-for-tests",
		JWTRefreshSecret: "refresh-secret-for-tests",
		JWTAccessTTL:     15 * time.Minute,
		JWTRefreshTTL:    7 * 24 * time.Hour,
		WordPressBaseURL: wpURL,
	}
}

func newTestProxy(t *testing.T) *testProxy {
	t.Helper()
	wp := newFakeWordPress(t)
	cfg := testConfig(wp.server.URL)

	issuer := NewIssuer(cfg)
	sessions := cache.NewMemoryCache[RefreshSession]()
	t.Cleanup(func() { _ = sessions.Close() })

	upstream := retry.NewClient(
		retry.WithInitialRetryDelay(time.Millisecond),
		retry.WithMaxRetries(2),
	)
	h, err := NewHandler(cfg, issuer, NewWordPressClient(wp.server.URL, upstream), sessions,
		metrics.NewNoopMetrics(), zap.NewNop())
	require.NoError(t, err)

	r := gin.New()
	h.RegisterRoutes(r, nil)
	return &testProxy{router: r, wp: wp, issuer: issuer, sessions: sessions}
}

func (p *testProxy) do(method, path string, body any, bearer string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	p.router.ServeHTTP(w, req)
	return w
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	User        User   `json:"user"`
}

// login signs in as admin and returns the response body and the refresh cookie.
func (p *testProxy) login(t *testing.T) (loginResponse, *http.Cookie) {
	t.Helper()
	w := p.do(http.MethodPost, "/api/login", Credentials{Username: "admin", Password: "secret"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp loginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	cookie := refreshCookie(w)
	require.NotNil(t, cookie)
	return resp, cookie
}

func refreshCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == RefreshCookieName {
			return c
		}
	}
	return nil
}
