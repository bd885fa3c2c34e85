package services

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-authgate/wpgate/internal/cache"
	"github.com/go-authgate/wpgate/internal/config"
	"github.com/go-authgate/wpgate/internal/metrics"
	"github.com/go-authgate/wpgate/internal/models"
	"github.com/go-authgate/wpgate/internal/scope"
	"github.com/go-authgate/wpgate/internal/util"

	"go.uber.org/zap"
)

// Authorization Code Flow errors. The messages are the RFC 6749 error codes.
var (
	ErrInvalidRequest          = errors.New("invalid_request")
	ErrUnauthorizedClient      = errors.New("unauthorized_client")
	ErrAccessDenied            = errors.New("access_denied")
	ErrUnsupportedResponseType = errors.New("unsupported_response_type")
	ErrInvalidScope            = errors.New("invalid_scope")
	ErrInvalidRedirectURI      = errors.New("invalid_redirect_uri")
	ErrServerError             = errors.New("server_error")
)

const (
	// PKCEMethodS256 is the only accepted code_challenge_method.
	PKCEMethodS256 = "S256"

	authCodeBytes = 32
)

// AuthorizeRequest carries the raw authorization request parameters, from the
// query string on GET or from the consent form on POST.
type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	State               string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// DecisionKind tells the presentation layer what to do with a request.
type DecisionKind int

const (
	// DecisionShowError renders the error to the user; there is no redirect target that can be trusted.
	DecisionShowError DecisionKind = iota
	// DecisionRedirect sends the browser to Location (an error redirect or the code redirect).
	DecisionRedirect
	// DecisionLogin asks the user to sign in and replay the request afterwards.
	DecisionLogin
	// DecisionConsent shows the consent screen for Scopes.
	DecisionConsent
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionShowError:
		return "show_error"
	case DecisionRedirect:
		return "redirect"
	case DecisionLogin:
		return "login"
	case DecisionConsent:
		return "consent"
	default:
		return "unknown"
	}
}

// Decision is the outcome of evaluating an authorization request.
// It holds no HTTP types so the state machine can be tested without a server.
type Decision struct {
	Kind DecisionKind

	// Err is the protocol error for ShowError and error redirects, nil otherwise.
	Err         error
	Description string

	// Location is the full redirect URL for DecisionRedirect.
	Location string

	// Validated request, filled for Consent (and for Login once the client is known).
	Client              *models.Client
	RedirectURI         string
	State               string
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod string
}

// ScopeDefinitions returns the catalog entries of the approved scopes, for the consent screen.
func (d *Decision) ScopeDefinitions() []scope.Definition {
	defs := make([]scope.Definition, 0, len(d.Scopes))
	for _, name := range d.Scopes {
		if def, ok := scope.Lookup(name); ok {
			defs = append(defs, def)
		}
	}
	return defs
}

// AuthorizationService implements the authorize and consent steps of the
// OAuth 2.0 Authorization Code Flow (RFC 6749 §4.1, RFC 7636).
type AuthorizationService struct {
	clients *ClientService
	codes   cache.Cache[models.AuthorizationCode]
	config  *config.Config
	metrics metrics.Recorder
	log     *zap.Logger
	now     func() time.Time
}

func NewAuthorizationService(
	clients *ClientService,
	codes cache.Cache[models.AuthorizationCode],
	cfg *config.Config,
	m metrics.Recorder,
	log *zap.Logger,
) *AuthorizationService {
	return &AuthorizationService{
		clients: clients,
		codes:   codes,
		config:  cfg,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

// ============================================================
// Decision
// ============================================================

// Decide validates an authorization request for the given user (nil when not signed in).
// Checks run in a fixed order; the first failure wins.
func (s *AuthorizationService) Decide(
	ctx context.Context,
	req AuthorizeRequest,
	user *models.User,
) *Decision {
	d := s.decide(ctx, req, user)
	outcome := d.Kind.String()
	if d.Err != nil {
		outcome = d.Err.Error()
	}
	s.metrics.RecordAuthorizeDecision(outcome)
	return d
}

func (s *AuthorizationService) decide(
	ctx context.Context,
	req AuthorizeRequest,
	user *models.User,
) *Decision {
	// 1. response_type must be "code"; the redirect_uri is not verified yet but
	//    is the only place the client can learn about the error.
	if req.ResponseType != "code" {
		if !isAbsoluteRedirectURI(req.RedirectURI) {
			return showError(ErrUnsupportedResponseType, "response_type must be \"code\"")
		}
		return redirectError(req.RedirectURI, req.State, ErrUnsupportedResponseType,
			"response_type must be \"code\"")
	}

	if req.ClientID == "" {
		return showError(ErrInvalidRequest, "client_id is required")
	}

	// 2. Client must exist. Nothing about the redirect_uri can be trusted yet.
	client, err := s.clients.Lookup(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return showError(ErrUnauthorizedClient, "Unknown client")
		}
		s.log.Error("client lookup failed", zap.String("client_id", req.ClientID), zap.Error(err))
		return showError(ErrServerError, "The authorization server is temporarily unavailable")
	}

	// 3. redirect_uri must exactly match; errors go to the registered URI instead.
	if !s.clients.ValidateRedirectURI(client, req.RedirectURI) {
		fallback := client.DefaultRedirectURI()
		if fallback == "" {
			return showError(ErrInvalidRedirectURI, "Client has no registered redirect URI")
		}
		return redirectError(fallback, req.State, ErrInvalidRedirectURI,
			"redirect_uri does not match a registered URI")
	}

	// 4. PKCE parameters
	method := req.CodeChallengeMethod
	if req.CodeChallenge != "" && method == "" {
		method = PKCEMethodS256
	}
	switch {
	case req.CodeChallenge == "" && method != "":
		return redirectError(req.RedirectURI, req.State, ErrInvalidRequest,
			"code_challenge_method without code_challenge")
	case method != "" && method != PKCEMethodS256:
		return redirectError(req.RedirectURI, req.State, ErrInvalidRequest,
			"code_challenge_method must be S256")
	case req.CodeChallenge != "" && !validCodeChallenge(req.CodeChallenge):
		return redirectError(req.RedirectURI, req.State, ErrInvalidRequest,
			"code_challenge must be 43 base64url characters")
	case client.IsPublic() && req.CodeChallenge == "":
		return redirectError(req.RedirectURI, req.State, ErrInvalidRequest,
			"PKCE is required for public clients")
	}

	requested := scope.Parse(req.Scope)
	d := &Decision{
		Client:              client,
		RedirectURI:         req.RedirectURI,
		State:               req.State,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: method,
	}

	// 5. Unknown scopes only: nothing a login could fix.
	if len(scope.FilterAvailable(requested)) == 0 {
		return redirectError(req.RedirectURI, req.State, ErrInvalidScope,
			"None of the requested scopes are available")
	}

	// 6. Authentication
	if user == nil {
		d.Kind = DecisionLogin
		return d
	}

	// 7. Scope policy against the signed-in user
	d.Scopes = scope.FilterRequestable(requested, user)
	if len(d.Scopes) == 0 {
		return redirectError(req.RedirectURI, req.State, ErrInvalidScope,
			"You are not allowed to grant any of the requested scopes")
	}

	d.Kind = DecisionConsent
	return d
}

// ============================================================
// Consent
// ============================================================

// HandleConsent processes the consent form. The posted parameters are validated
// again from scratch; approved scopes are re-filtered against the user.
// On approval a code is minted and the decision redirects to the client with code and state.
func (s *AuthorizationService) HandleConsent(
	ctx context.Context,
	req AuthorizeRequest,
	user *models.User,
	approve bool,
) *Decision {
	d := s.decide(ctx, req, user)
	if d.Kind != DecisionConsent {
		s.metrics.RecordAuthorizeDecision(outcomeOf(d))
		return d
	}

	if !approve {
		s.metrics.RecordAuthorizeDecision("denied")
		s.log.Info("authorization denied by user",
			zap.String("client_id", d.Client.ClientID),
			zap.String("user_id", user.ID),
		)
		return redirectError(d.RedirectURI, d.State, ErrAccessDenied, "The user denied the request")
	}

	code, err := s.CreateAuthorizationCode(ctx, d, user)
	if err != nil {
		s.log.Error("failed to create authorization code", zap.Error(err))
		// No code was stored; fail closed without leaking storage details.
		return redirectError(d.RedirectURI, d.State, ErrServerError, "")
	}

	s.metrics.RecordAuthorizeDecision("approved")
	return &Decision{
		Kind:        DecisionRedirect,
		Location:    buildRedirect(d.RedirectURI, map[string]string{"code": code.Code, "state": d.State}),
		Client:      d.Client,
		RedirectURI: d.RedirectURI,
		State:       d.State,
		Scopes:      d.Scopes,
	}
}

// CreateAuthorizationCode mints a single-use code bound to the client, user,
// redirect URI and approved scopes, and stores it with the code TTL.
func (s *AuthorizationService) CreateAuthorizationCode(
	ctx context.Context,
	d *Decision,
	user *models.User,
) (*models.AuthorizationCode, error) {
	plain, err := util.RandomHex(authCodeBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate authorization code: %w", err)
	}

	code := models.AuthorizationCode{
		Code:                plain,
		ClientID:            d.Client.ClientID,
		UserID:              user.ID,
		RedirectURI:         d.RedirectURI,
		Scopes:              d.Scopes,
		CreatedAt:           s.now(),
		CodeChallenge:       d.CodeChallenge,
		CodeChallengeMethod: d.CodeChallengeMethod,
	}
	if err := s.codes.Set(ctx, plain, code, s.config.AuthCodeTTL); err != nil {
		return nil, fmt.Errorf("failed to save authorization code: %w", err)
	}

	s.metrics.RecordCodeIssued()
	s.log.Info("authorization code issued",
		zap.String("client_id", code.ClientID),
		zap.String("user_id", code.UserID),
		zap.Strings("scopes", code.Scopes),
		zap.Bool("pkce", code.UsesPKCE()),
		zap.String("code_fp", util.Fingerprint(plain)),
	)
	return &code, nil
}

// ============================================================
// Helpers
// ============================================================

func outcomeOf(d *Decision) string {
	if d.Err != nil {
		return d.Err.Error()
	}
	return d.Kind.String()
}

func showError(err error, description string) *Decision {
	return &Decision{Kind: DecisionShowError, Err: err, Description: description}
}

func redirectError(redirectURI, state string, err error, description string) *Decision {
	params := map[string]string{"error": err.Error(), "state": state}
	if description != "" {
		params["error_description"] = description
	}
	location := buildRedirect(redirectURI, params)
	if location == "" {
		return showError(err, description)
	}
	return &Decision{
		Kind:        DecisionRedirect,
		Err:         err,
		Description: description,
		Location:    location,
		RedirectURI: redirectURI,
		State:       state,
	}
}

// buildRedirect appends non-empty params to base, keeping its existing query.
// Returns "" when base cannot be parsed.
func buildRedirect(base string, params map[string]string) string {
	u, err := url.Parse(base)
	if err != nil || base == "" {
		return ""
	}
	q := u.Query()
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ============================================================
// PKCE helpers (RFC 7636)
// ============================================================

// validCodeChallenge checks the shape of an S256 challenge: 43 base64url characters.
func validCodeChallenge(challenge string) bool {
	if len(challenge) != 43 {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(challenge)
	return err == nil
}

// verifyPKCE validates code_verifier against the stored S256 code_challenge
func verifyPKCE(codeChallenge, method, codeVerifier string) bool {
	if codeVerifier == "" || len(codeVerifier) < 43 || len(codeVerifier) > 128 {
		return false
	}
	if method != PKCEMethodS256 {
		return false
	}
	sum := sha256.Sum256([]byte(codeVerifier))
	computed := base64.RawURLEncoding.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(computed), []byte(codeChallenge)) == 1
}
