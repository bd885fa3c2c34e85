// Package client is the application side of the authorization code flow: it starts
// logins, completes callbacks, keeps the access token fresh and signs out.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-authgate/wpgate/internal/util"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	stateBytes      = 16
	maxResponseSize = 1 << 20
	refreshFlightID = "refresh"
)

// Manager owns one client-side session. All methods are safe for concurrent use.
//
// Every change of session ownership (login, logout, failed refresh, Close) bumps
// a generation counter; network responses that started under an older generation
// are discarded instead of resurrecting cleared state.
type Manager struct {
	cfg   Config
	oauth *oauth2.Config
	flow  FlowStore
	http  *http.Client
	sched Scheduler
	log   *zap.Logger

	mu         sync.Mutex
	session    *Session
	timer      Timer
	generation uint64

	refreshGroup  singleflight.Group
	callbackGroup singleflight.Group

	silentOnce sync.Once
	silentErr  error
}

// Option configures a Manager
type Option func(*Manager)

// WithFlowStore sets where state and verifier are kept across the redirect.
func WithFlowStore(s FlowStore) Option {
	return func(m *Manager) {
		if s != nil {
			m.flow = s
		}
	}
}

// WithHTTPClient sets the client used for token, refresh, userinfo and logout calls.
// A cookie jar is added when the client has none.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) {
		if c != nil {
			m.http = c
		}
	}
}

// WithScheduler replaces the timer factory used for proactive refresh.
func WithScheduler(s Scheduler) Option {
	return func(m *Manager) {
		if s != nil {
			m.sched = s
		}
	}
}

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// NewManager creates a Manager for one application instance.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}

	m := &Manager{
		cfg:   cfg,
		flow:  NewMemoryFlowStore(),
		http:  &http.Client{Timeout: 30 * time.Second},
		sched: RealScheduler(),
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}

	// The refresh token only ever travels as a cookie.
	if m.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		c := *m.http
		c.Jar = jar
		m.http = &c
	}

	authStyle := oauth2.AuthStyleInHeader
	if cfg.ClientSecret == "" {
		authStyle = oauth2.AuthStyleInParams
	}
	m.oauth = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.url(AuthorizePath),
			TokenURL:  cfg.url(TokenPath),
			AuthStyle: authStyle,
		},
	}

	return m, nil
}

// ============================================================
// Login
// ============================================================

// StartLogin saves a fresh state (and PKCE verifier) and returns the authorize URL
// the browser should be sent to.
func (m *Manager) StartLogin(ctx context.Context, scopes ...string) (string, error) {
	if len(scopes) == 0 {
		scopes = m.cfg.Scopes
	}
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	state, err := util.RandomHex(stateBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	prev, err := m.flow.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load flow state: %w", err)
	}
	next := FlowState{State: state, ProcessedCode: prev.ProcessedCode}

	conf := *m.oauth
	conf.Scopes = scopes

	var opts []oauth2.AuthCodeOption
	if m.cfg.UsePKCE {
		next.CodeVerifier = oauth2.GenerateVerifier()
		opts = append(opts, oauth2.S256ChallengeOption(next.CodeVerifier))
	}

	if err := m.flow.Save(ctx, next); err != nil {
		return "", fmt.Errorf("failed to save flow state: %w", err)
	}

	m.log.Debug("login started", zap.Strings("scopes", scopes), zap.Bool("pkce", m.cfg.UsePKCE))
	return conf.AuthCodeURL(state, opts...), nil
}

// HandleCallback completes a login from the full redirect URL.
func (m *Manager) HandleCallback(ctx context.Context, callbackURL string) error {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return fmt.Errorf("invalid callback URL: %w", err)
	}
	return m.HandleCallbackParams(ctx, u.Query())
}

// HandleCallbackParams completes a login from the redirect query parameters.
// Calling it again with an already processed code succeeds without a second
// token exchange; concurrent duplicates share one exchange.
func (m *Manager) HandleCallbackParams(ctx context.Context, params url.Values) error {
	if code := params.Get("error"); code != "" {
		m.discardFlow(ctx, params.Get("state"))
		return &AuthError{Code: code, Description: params.Get("error_description")}
	}
	code := params.Get("code")
	if code == "" {
		return ErrMissingCode
	}

	_, err, _ := m.callbackGroup.Do(code, func() (any, error) {
		return nil, m.handleCallback(ctx, code, params.Get("state"))
	})
	return err
}

func (m *Manager) handleCallback(ctx context.Context, code, state string) error {
	flow, err := m.flow.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load flow state: %w", err)
	}
	if flow.ProcessedCode == code {
		m.log.Debug("authorization code already processed", zap.String("code_fp", util.Fingerprint(code)))
		return nil
	}
	if flow.State == "" || state != flow.State {
		return ErrStateMismatch
	}

	// From here on the state and verifier are spent, whatever the outcome.
	sess, err := m.exchange(ctx, code, flow)
	if err != nil {
		m.saveFlow(ctx, FlowState{ProcessedCode: flow.ProcessedCode})
		return err
	}
	m.saveFlow(ctx, FlowState{ProcessedCode: code})

	m.log.Info("signed in",
		zap.String("sub", sess.User.Sub),
		zap.Strings("scopes", sess.GrantedScopes),
	)
	return nil
}

func (m *Manager) exchange(ctx context.Context, code string, flow FlowState) (*Session, error) {
	var opts []oauth2.AuthCodeOption
	if m.cfg.UsePKCE {
		if flow.CodeVerifier == "" {
			return nil, ErrMissingVerifier
		}
		opts = append(opts, oauth2.VerifierOption(flow.CodeVerifier))
	}

	gen := m.currentGeneration()

	tok, err := m.oauth.Exchange(m.httpContext(ctx), code, opts...)
	if err != nil {
		return nil, exchangeError(err)
	}

	sess, err := m.newSession(ctx, tok)
	if err != nil {
		return nil, err
	}

	if !m.commit(gen, sess, true) {
		return nil, ErrSuperseded
	}
	return sess, nil
}

// discardFlow drops the pending state and verifier when the server answered the
// authorize request with an error. A callback carrying someone else's state is
// ignored so it cannot cancel a login in progress.
func (m *Manager) discardFlow(ctx context.Context, state string) {
	flow, err := m.flow.Load(ctx)
	if err != nil || flow.State == "" || flow.State != state {
		return
	}
	m.saveFlow(ctx, FlowState{ProcessedCode: flow.ProcessedCode})
}

func (m *Manager) saveFlow(ctx context.Context, next FlowState) {
	if err := m.flow.Save(ctx, next); err != nil {
		m.log.Warn("failed to clear flow state", zap.Error(err))
	}
}

// ============================================================
// Refresh
// ============================================================

// Refresh trades the refresh cookie for a new access token. Concurrent callers
// share one request. On failure the session is cleared.
func (m *Manager) Refresh(ctx context.Context) error {
	_, err, _ := m.refreshGroup.Do(refreshFlightID, func() (any, error) {
		return nil, m.refresh(ctx)
	})
	return err
}

func (m *Manager) refresh(ctx context.Context) error {
	gen := m.currentGeneration()

	tok, err := m.requestRefresh(ctx)
	var sess *Session
	if err == nil {
		sess, err = m.newSession(ctx, tok)
	}
	if err != nil {
		m.mu.Lock()
		if m.generation == gen && m.session != nil {
			m.clearLocked()
		}
		m.mu.Unlock()
		return err
	}

	if !m.commit(gen, sess, false) {
		// Signed out meanwhile: do not keep the cookie the late response rotated in.
		if _, ok := m.Session(); !ok {
			m.dropRefreshCookie()
		}
		return ErrSuperseded
	}
	m.log.Debug("access token refreshed", zap.Time("expiry", sess.Expiry))
	return nil
}

// SilentLogin tries to restore a session from the refresh cookie. It runs at most
// once per Manager; later and concurrent callers get the first result.
func (m *Manager) SilentLogin(ctx context.Context) error {
	m.silentOnce.Do(func() {
		m.silentErr = m.Refresh(ctx)
		if m.silentErr != nil {
			m.log.Debug("silent login failed", zap.Error(m.silentErr))
		}
	})
	return m.silentErr
}

func (m *Manager) onRefreshTimer(gen uint64) {
	m.mu.Lock()
	stale := gen != m.generation || m.session == nil
	m.mu.Unlock()
	if stale {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.refreshTimeout())
	defer cancel()
	if err := m.Refresh(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
		m.log.Info("scheduled refresh failed, session cleared", zap.Error(err))
	}
}

// ============================================================
// Logout and teardown
// ============================================================

// Logout clears the local session, flow artifacts and refresh timer, then asks the
// server to revoke the tokens. Local state is cleared even when the server call
// fails; the returned error only reports that call.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	var token string
	if m.session != nil {
		token = m.session.AccessToken
	}
	m.clearLocked()
	m.mu.Unlock()

	var errs []error
	if err := m.flow.Save(ctx, FlowState{}); err != nil {
		errs = append(errs, fmt.Errorf("failed to clear flow state: %w", err))
	}

	revokeCtx, cancel := context.WithTimeout(ctx, m.cfg.logoutTimeout())
	defer cancel()
	if err := m.revoke(revokeCtx, token); err != nil {
		m.log.Warn("server-side logout failed", zap.Error(err))
		errs = append(errs, err)
	}
	m.dropRefreshCookie()

	m.log.Info("signed out")
	return errors.Join(errs...)
}

// Close cancels the refresh timer and discards in-flight responses.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	m.stopTimerLocked()
}

// ============================================================
// Session access
// ============================================================

// Session returns a snapshot of the current session.
func (m *Manager) Session() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Session{}, false
	}
	return m.session.clone(), true
}

// Token implements oauth2.TokenSource with the current access token.
func (m *Manager) Token() (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, ErrNotAuthenticated
	}
	return &oauth2.Token{
		AccessToken: m.session.AccessToken,
		TokenType:   m.session.TokenType,
		Expiry:      m.session.Expiry,
	}, nil
}

// AuthorizedClient returns an HTTP client that sends the current access token.
// A 401 invalid_token answer clears the session: the user has to sign in again.
func (m *Manager) AuthorizedClient() *http.Client {
	return &http.Client{
		Timeout: m.http.Timeout,
		Transport: &sessionTransport{
			m:    m,
			next: &oauth2.Transport{Source: m, Base: m.http.Transport},
		},
	}
}

type sessionTransport struct {
	m    *Manager
	next http.RoundTripper
}

func (t *sessionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	gen := t.m.currentGeneration()
	resp, err := t.next.RoundTrip(req)
	if err == nil && resp.StatusCode == http.StatusUnauthorized &&
		strings.Contains(resp.Header.Get("WWW-Authenticate"), "invalid_token") {
		t.m.invalidate(gen)
	}
	return resp, err
}

// ============================================================
// Internal state
// ============================================================

func (m *Manager) currentGeneration() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

// commit installs sess if no logout or newer login happened since gen was read.
// A fresh login starts a new generation so older refreshes are discarded.
func (m *Manager) commit(gen uint64, sess *Session, newLogin bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen {
		return false
	}
	if newLogin {
		m.generation++
	}
	m.session = sess
	m.scheduleLocked(time.Until(sess.Expiry).Round(time.Second))
	return true
}

func (m *Manager) invalidate(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation == gen && m.session != nil {
		m.log.Info("access token rejected by resource server, session cleared")
		m.clearLocked()
	}
}

func (m *Manager) clearLocked() {
	m.generation++
	m.session = nil
	m.stopTimerLocked()
}

func (m *Manager) scheduleLocked(expiresIn time.Duration) {
	m.stopTimerLocked()
	delay := RefreshDelay(expiresIn)
	gen := m.generation
	m.timer = m.sched.AfterFunc(delay, func() { m.onRefreshTimer(gen) })
	m.log.Debug("refresh scheduled", zap.Duration("delay", delay))
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// ============================================================
// Server calls
// ============================================================

func (m *Manager) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.http)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (m *Manager) newSession(ctx context.Context, tok *oauth2.Token) (*Session, error) {
	info, err := m.fetchUserInfo(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}

	scope, _ := tok.Extra("scope").(string)
	scopes := strings.Fields(scope)
	if len(scopes) == 0 {
		scopes = info.GrantedScopes
	}

	return &Session{
		AccessToken:   tok.AccessToken,
		TokenType:     tok.Type(),
		Expiry:        tok.Expiry,
		GrantedScopes: scopes,
		User:          info,
	}, nil
}

func (m *Manager) requestRefresh(ctx context.Context) (*oauth2.Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.url(RefreshPath), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	body, status, err := m.do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	if status != http.StatusOK {
		return nil, parseAuthError(status, body)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("invalid refresh response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, errors.New("refresh response has no access token")
	}

	tok := &oauth2.Token{
		AccessToken: tr.AccessToken,
		TokenType:   tr.TokenType,
		Expiry:      time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}
	return tok.WithExtra(map[string]any{"scope": tr.Scope}), nil
}

func (m *Manager) fetchUserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.url(UserInfoPath), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	body, status, err := m.do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed: %w", err)
	}
	if status != http.StatusOK {
		return nil, parseAuthError(status, body)
	}

	var info UserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("invalid userinfo response: %w", err)
	}
	return &info, nil
}

func (m *Manager) revoke(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.url(LogoutPath), nil)
	if err != nil {
		return err
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	body, status, err := m.do(req)
	if err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	if status != http.StatusOK {
		return parseAuthError(status, body)
	}
	return nil
}

// dropRefreshCookie expires the refresh cookie locally in case the server never
// answered the logout call.
func (m *Manager) dropRefreshCookie() {
	u, err := url.Parse(m.cfg.url(RefreshPath))
	if err != nil {
		return
	}
	m.http.Jar.SetCookies(u, []*http.Cookie{{
		Name:   m.cfg.refreshCookieName(),
		Path:   "/oauth2/v1",
		MaxAge: -1,
	}})
}

func (m *Manager) do(req *http.Request) ([]byte, int, error) {
	resp, err := m.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func parseAuthError(status int, body []byte) *AuthError {
	var er errorResponse
	_ = json.Unmarshal(body, &er)
	if er.Error == "" {
		er.Error = fmt.Sprintf("http_%d", status)
	}
	return &AuthError{Code: er.Error, Description: er.ErrorDescription, StatusCode: status}
}

func exchangeError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		ae := &AuthError{Code: re.ErrorCode, Description: re.ErrorDescription}
		if re.Response != nil {
			ae.StatusCode = re.Response.StatusCode
		}
		if ae.Code == "" {
			ae.Code = fmt.Sprintf("http_%d", ae.StatusCode)
		}
		return ae
	}
	return fmt.Errorf("token exchange failed: %w", err)
}
