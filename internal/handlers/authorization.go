package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-authgate/wpgate/internal/middleware"
	"github.com/go-authgate/wpgate/internal/models"
	"github.com/go-authgate/wpgate/internal/scope"
	"github.com/go-authgate/wpgate/internal/services"
	"github.com/go-authgate/wpgate/internal/templates"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	authorizePath  = "/oauth2/v1/authorize"
	maxStateLength = 1024

	consentField   = "oauth2_consent"
	consentApprove = "approve"
)

// AuthorizationHandler serves the authorize endpoint and the consent form.
// All protocol decisions are made by AuthorizationService; this type only
// translates them into HTTP responses.
type AuthorizationHandler struct {
	authorizationService *services.AuthorizationService
	log                  *zap.Logger
}

func NewAuthorizationHandler(as *services.AuthorizationService, log *zap.Logger) *AuthorizationHandler {
	return &AuthorizationHandler{authorizationService: as, log: log}
}

// Authorize handles GET /oauth2/v1/authorize.
func (h *AuthorizationHandler) Authorize(c *gin.Context) {
	req := services.AuthorizeRequest{
		ResponseType:        c.Query("response_type"),
		ClientID:            c.Query("client_id"),
		RedirectURI:         c.Query("redirect_uri"),
		State:               c.Query("state"),
		Scope:               c.Query("scope"),
		CodeChallenge:       c.Query("code_challenge"),
		CodeChallengeMethod: c.Query("code_challenge_method"),
	}
	if len(req.State) > maxStateLength {
		h.showError(c, services.ErrInvalidRequest, "state parameter exceeds maximum length")
		return
	}

	user, _ := models.UserFromContext(c)
	h.respond(c, req, h.authorizationService.Decide(c.Request.Context(), req, user))
}

// Consent handles POST /oauth2/v1/authorize, the consent form submission.
func (h *AuthorizationHandler) Consent(c *gin.Context) {
	req := services.AuthorizeRequest{
		ResponseType:        c.DefaultPostForm("response_type", "code"),
		ClientID:            c.PostForm("client_id"),
		RedirectURI:         c.PostForm("redirect_uri"),
		State:               c.PostForm("state"),
		Scope:               c.PostForm("scope"),
		CodeChallenge:       c.PostForm("code_challenge"),
		CodeChallengeMethod: c.PostForm("code_challenge_method"),
	}
	if len(req.State) > maxStateLength {
		h.showError(c, services.ErrInvalidRequest, "state parameter exceeds maximum length")
		return
	}

	user, _ := models.UserFromContext(c)
	approve := c.PostForm(consentField) == consentApprove
	h.respond(c, req, h.authorizationService.HandleConsent(c.Request.Context(), req, user, approve))
}

func (h *AuthorizationHandler) respond(c *gin.Context, req services.AuthorizeRequest, d *services.Decision) {
	switch d.Kind {
	case services.DecisionRedirect:
		c.Redirect(http.StatusFound, d.Location)

	case services.DecisionLogin:
		c.Redirect(http.StatusFound, "/login?redirect="+url.QueryEscape(authorizeURL(req)))

	case services.DecisionConsent:
		user, _ := models.UserFromContext(c)
		templates.RenderTempl(c, http.StatusOK, templates.ConsentPage(templates.ConsentPageProps{
			BaseProps:           templates.BaseProps{CSRFToken: middleware.GetCSRFToken(c)},
			Username:            user.Username,
			ClientID:            d.Client.ClientID,
			ClientName:          d.Client.Name,
			Scopes:              d.ScopeDefinitions(),
			ResponseType:        "code",
			RedirectURI:         d.RedirectURI,
			State:               d.State,
			Scope:               scope.Join(d.Scopes),
			CodeChallenge:       d.CodeChallenge,
			CodeChallengeMethod: d.CodeChallengeMethod,
		}))

	default:
		h.showError(c, d.Err, d.Description)
	}
}

func (h *AuthorizationHandler) showError(c *gin.Context, err error, description string) {
	status := http.StatusBadRequest
	code := "invalid_request"
	if err != nil {
		code = err.Error()
	}
	if errors.Is(err, services.ErrServerError) {
		status = http.StatusInternalServerError
	}
	templates.RenderTempl(c, status, templates.ErrorPage(templates.ErrorPageProps{
		Error:   code,
		Message: description,
	}))
}

// authorizeURL rebuilds the authorize request so it can be replayed after login.
func authorizeURL(req services.AuthorizeRequest) string {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("response_type", req.ResponseType)
	set("client_id", req.ClientID)
	set("redirect_uri", req.RedirectURI)
	set("state", req.State)
	set("scope", req.Scope)
	set("code_challenge", req.CodeChallenge)
	set("code_challenge_method", req.CodeChallengeMethod)
	return authorizePath + "?" + q.Encode()
}
