package jwtproxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-authgate/wpgate/internal/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wordPressReplying(t *testing.T, status int, body string) *WordPressClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewWordPressClient(srv.URL+"/", retry.NewClient(
		retry.WithMaxRetries(0),
		retry.WithInitialRetryDelay(time.Millisecond),
	))
}

func TestAuthenticate_UserIdentity(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"user_id", `{"token":"t","user_nicename":"admin","user_id":7}`, "7"},
		{"ID fallback", `{"token":"t","user_nicename":"admin","ID":"9"}`, "9"},
		{"nicename fallback", `{"token":"t","user_nicename":"admin"}`, "admin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, token, err := wordPressReplying(t, http.StatusOK, tt.body).
				Authenticate(context.Background(), Credentials{Username: "admin", Password: "pw"})
			require.NoError(t, err)
			assert.Equal(t, "t", token)
			assert.Equal(t, tt.want, user.ID)
			assert.Equal(t, "admin", user.Username)
		})
	}
}

func TestAuthenticate_BadResponses(t *testing.T) {
	ctx := context.Background()
	creds := Credentials{Username: "admin", Password: "pw"}

	_, _, err := wordPressReplying(t, http.StatusOK, `{"user_id":1}`).Authenticate(ctx, creds)
	assert.ErrorIs(t, err, ErrUpstreamResponse)

	_, _, err = wordPressReplying(t, http.StatusOK, `<html>`).Authenticate(ctx, creds)
	assert.ErrorIs(t, err, ErrUpstreamResponse)

	_, _, err = wordPressReplying(t, http.StatusOK, `{"token":"t"}`).Authenticate(ctx, creds)
	assert.ErrorIs(t, err, ErrUpstreamResponse)
}

func TestAuthenticate_UpstreamError(t *testing.T) {
	_, _, err := wordPressReplying(t, http.StatusForbidden, `{"code":"[jwt_auth] invalid_username","message":"Unknown username."}`).
		Authenticate(context.Background(), Credentials{Username: "nobody", Password: "pw"})

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusForbidden, upstream.StatusCode)
	assert.Equal(t, "[jwt_auth] invalid_username", upstream.Code)
	assert.Equal(t, "Unknown username.", upstream.Message)

	_, _, err = wordPressReplying(t, http.StatusForbidden, `not json`).
		Authenticate(context.Background(), Credentials{Username: "nobody", Password: "pw"})
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "Authentication failed", upstream.Message)
}
