package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testClientID    = "wp-react-demo"
	testRedirectURI = "http://localhost:5173/callback"
	goodCode        = "good-code"
	refreshCookie   = "wp_oauth2_refresh"
)

// fakeTimer is a timer that only fires when the test says so.
type fakeTimer struct {
	mu      sync.Mutex
	delay   time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (t *fakeTimer) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *fakeTimer) fire() {
	if !t.isStopped() {
		t.f()
	}
}

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{delay: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) last() *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timers) == 0 {
		return nil
	}
	return s.timers[len(s.timers)-1]
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// fakeServer plays the authorization server endpoints the manager calls.
type fakeServer struct {
	*httptest.Server

	expiresIn int

	exchanges atomic.Int32
	refreshes atomic.Int32
	logouts   atomic.Int32
	issued    atomic.Int32

	refreshStatus  atomic.Int32
	logoutStatus   atomic.Int32
	rejectResource atomic.Bool

	// refreshGate, when set, blocks the refresh handler until closed.
	refreshGate chan struct{}
	// logoutHang makes the logout handler wait for the client to give up.
	logoutHang bool

	mu       sync.Mutex
	lastForm url.Values
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{expiresIn: 3600}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth2/v1/token", fs.token)
	mux.HandleFunc("POST /oauth2/v1/refresh", fs.refresh)
	mux.HandleFunc("GET /oauth2/v1/userinfo", fs.userinfo)
	mux.HandleFunc("POST /oauth2/v1/logout", fs.logout)
	mux.HandleFunc("GET /wp-json/wp/v2/users/me", fs.resource)
	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) writeTokens(w http.ResponseWriter) {
	n := fs.issued.Add(1)
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    "refresh-" + strconv.Itoa(int(n)),
		Path:     "/oauth2/v1",
		HttpOnly: true,
	})
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": "access-" + strconv.Itoa(int(n)),
		"token_type":   "Bearer",
		"expires_in":   fs.expiresIn,
		"scope":        "read write",
	})
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}

func (fs *fakeServer) token(w http.ResponseWriter, r *http.Request) {
	fs.exchanges.Add(1)
	_ = r.ParseForm()
	fs.mu.Lock()
	fs.lastForm = r.PostForm
	fs.mu.Unlock()

	if r.PostForm.Get("code") != goodCode {
		writeError(w, http.StatusBadRequest, "invalid_grant")
		return
	}
	fs.writeTokens(w)
}

func (fs *fakeServer) form() url.Values {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.lastForm
}

func (fs *fakeServer) refresh(w http.ResponseWriter, r *http.Request) {
	fs.refreshes.Add(1)
	if fs.refreshGate != nil {
		<-fs.refreshGate
	}
	if status := int(fs.refreshStatus.Load()); status != 0 {
		writeError(w, status, "invalid_grant")
		return
	}
	if c, err := r.Cookie(refreshCookie); err != nil || c.Value == "" {
		writeError(w, http.StatusUnauthorized, "invalid_grant")
		return
	}
	fs.writeTokens(w)
}

func (fs *fakeServer) userinfo(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer access-") {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		writeError(w, http.StatusUnauthorized, "invalid_token")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"sub":            "42",
		"username":       "alice",
		"email":          "alice@example.com",
		"name":           "Alice",
		"roles":          []string{"editor"},
		"granted_scopes": []string{"read", "write"},
	})
}

func (fs *fakeServer) logout(w http.ResponseWriter, r *http.Request) {
	fs.logouts.Add(1)
	if fs.logoutHang {
		<-r.Context().Done()
		return
	}
	if status := int(fs.logoutStatus.Load()); status != 0 {
		writeError(w, status, "server_error")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: refreshCookie, Path: "/oauth2/v1", MaxAge: -1})
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"success":true}`))
}

func (fs *fakeServer) resource(w http.ResponseWriter, r *http.Request) {
	if fs.rejectResource.Load() || !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer access-") {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		writeError(w, http.StatusUnauthorized, "invalid_token")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"id":42,"slug":"alice"}`))
}

func testConfig(serverURL string) Config {
	return Config{
		ServerURL:   serverURL,
		ClientID:    testClientID,
		RedirectURI: testRedirectURI,
		UsePKCE:     true,
	}
}

func newTestManager(t *testing.T, fs *fakeServer, opts ...Option) (*Manager, *fakeScheduler) {
	t.Helper()
	sched := &fakeScheduler{}
	opts = append([]Option{WithScheduler(sched), WithLogger(zap.NewNop())}, opts...)
	m, err := NewManager(testConfig(fs.URL), opts...)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m, sched
}

// callbackFor starts a login and returns the redirect URL the server would send
// back with the given code.
func callbackFor(t *testing.T, m *Manager, code string) string {
	t.Helper()
	authURL, err := m.StartLogin(t.Context())
	require.NoError(t, err)
	u, err := url.Parse(authURL)
	require.NoError(t, err)

	q := url.Values{"code": {code}, "state": {u.Query().Get("state")}}
	return testRedirectURI + "?" + q.Encode()
}

// signIn runs a complete login against fs.
func signIn(t *testing.T, m *Manager) {
	t.Helper()
	require.NoError(t, m.HandleCallback(t.Context(), callbackFor(t, m, goodCode)))
}
