package jwtproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-authgate/wpgate/internal/retry"
)

const wpTokenPath = "/wp-json/jwt-auth/v1/token"

// maxUpstreamBody bounds how much of a WordPress response is read.
const maxUpstreamBody = 1 << 20

var (
	ErrUpstreamUnavailable = errors.New("wordpress unavailable")
	ErrUpstreamResponse    = errors.New("invalid response from wordpress")
)

// User is the identity the proxy exposes to the browser.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// Credentials is the body of POST /api/login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UpstreamError is a non-2xx answer from the WordPress JWT endpoint. Its status and
// message are relayed to the caller.
type UpstreamError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("wordpress returned %d: %s", e.StatusCode, e.Message)
}

// wpTokenResponse is the success payload of the jwt-auth plugin.
type wpTokenResponse struct {
	Token           string      `json:"token"`
	UserEmail       string      `json:"user_email"`
	UserNicename    string      `json:"user_nicename"`
	UserDisplayName string      `json:"user_display_name"`
	UserID          json.Number `json:"user_id"`
	ID              json.Number `json:"ID"`
}

type wpErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WordPressClient authenticates users against the WordPress JWT plugin.
type WordPressClient struct {
	baseURL string
	http    *retry.Client
}

func NewWordPressClient(baseURL string, client *retry.Client) *WordPressClient {
	return &WordPressClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    client,
	}
}

// Authenticate exchanges credentials for the upstream token and the user's profile.
func (w *WordPressClient) Authenticate(ctx context.Context, creds Credentials) (User, string, error) {
	body, err := json.Marshal(creds)
	if err != nil {
		return User{}, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+wpTokenPath, bytes.NewReader(body))
	if err != nil {
		return User{}, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := w.http.Do(ctx, req)
	if err != nil {
		return User{}, "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return User{}, "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		upstream := &UpstreamError{StatusCode: resp.StatusCode, Message: "Authentication failed"}
		var wpErr wpErrorResponse
		if json.Unmarshal(raw, &wpErr) == nil {
			upstream.Code = wpErr.Code
			if wpErr.Message != "" {
				upstream.Message = wpErr.Message
			}
		}
		return User{}, "", upstream
	}

	var ok wpTokenResponse
	if err := json.Unmarshal(raw, &ok); err != nil {
		return User{}, "", fmt.Errorf("%w: %v", ErrUpstreamResponse, err)
	}
	if ok.Token == "" {
		return User{}, "", fmt.Errorf("%w: missing token", ErrUpstreamResponse)
	}

	user := User{
		ID:          ok.UserID.String(),
		Username:    ok.UserNicename,
		Email:       ok.UserEmail,
		DisplayName: ok.UserDisplayName,
	}
	if user.ID == "" {
		user.ID = ok.ID.String()
	}
	if user.ID == "" {
		user.ID = user.Username
	}
	if user.ID == "" {
		return User{}, "", fmt.Errorf("%w: no user identity", ErrUpstreamResponse)
	}
	return user, ok.Token, nil
}
