package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-authgate/wpgate/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

const (
	testToken = "test-secret-token-123"
)

func bearerRequest(r http.Handler, path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBearerToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := map[string]string{
		"Bearer abc":   "abc",
		"bearer abc":   "abc",
		"Bearer  abc ": "abc",
		"Basic abc":    "",
		"Bearer":       "",
		"":             "",
	}
	for header, want := range tests {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		c.Request.Header.Set("Authorization", header)
		assert.Equal(t, want, BearerToken(c), "header %q", header)
	}
}

func TestBearerAuth(t *testing.T) {
	ts := newTestServices(t)
	ts.grant(t, "good-token", "read", "write")

	r := setupTestRouter()
	r.GET("/me", BearerAuth(ts.tokens, ts.users), func(c *gin.Context) {
		user, _ := models.UserFromContext(c)
		token, _ := models.AccessTokenFromContext(c)
		c.JSON(http.StatusOK, gin.H{"user": user.Username, "scope": token.ScopeString()})
	})

	w := bearerRequest(r, "/me", "Bearer good-token")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"editor","scope":"read write"}`, w.Body.String())

	w = bearerRequest(r, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Bearer")

	w = bearerRequest(r, "/me", "Bearer forged")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, `Bearer error="invalid_token"`, w.Header().Get("WWW-Authenticate"))
	assert.Contains(t, w.Body.String(), "invalid_token")
}

func TestRequireScope(t *testing.T) {
	ts := newTestServices(t)
	ts.grant(t, "reader", "read")
	ts.grant(t, "admin", "read", "manage_users")

	r := setupTestRouter()
	r.GET("/users", BearerAuth(ts.tokens, ts.users), RequireScope("manage_users"), func(c *gin.Context) {
		c.String(http.StatusOK, "users")
	})

	w := bearerRequest(r, "/users", "Bearer reader")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), `error="insufficient_scope"`)
	assert.Contains(t, w.Body.String(), "insufficient_scope")

	w = bearerRequest(r, "/users", "Bearer admin")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireScope_WithoutBearerAuth(t *testing.T) {
	r := setupTestRouter()
	r.GET("/users", RequireScope("read"), func(c *gin.Context) {
		c.String(http.StatusOK, "users")
	})

	w := bearerRequest(r, "/users", "Bearer anything")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStaticBearerAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	open := gin.New()
	open.GET("/metrics", StaticBearerAuth("", "Metrics"), func(c *gin.Context) {
		c.String(http.StatusOK, "metrics")
	})
	assert.Equal(t, http.StatusOK, bearerRequest(open, "/metrics", "").Code)

	guarded := gin.New()
	guarded.GET("/metrics", StaticBearerAuth(testToken, "Metrics"), func(c *gin.Context) {
		c.String(http.StatusOK, "metrics")
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + testToken, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong token", "Bearer wrong", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + testToken, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := bearerRequest(guarded, "/metrics", tt.header)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Equal(t, `Bearer realm="Metrics"`, w.Header().Get("WWW-Authenticate"))
			}
		})
	}
}
