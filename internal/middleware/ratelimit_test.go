package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limitedRouter(t *testing.T, handler gin.HandlerFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(handler)
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
	return router
}

func hit(router http.Handler, ip, accept string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Forwarded-For", ip)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestNewMemoryRateLimiter(t *testing.T) {
	limiter, err := NewMemoryRateLimiter(5, "login")
	require.NoError(t, err)
	router := limitedRouter(t, limiter)

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, hit(router, "192.168.1.100", "").Code, "Request %d should succeed", i+1)
	}

	w := hit(router, "192.168.1.100", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code, "Request should be rate limited")
	assert.Contains(t, w.Body.String(), "rate_limit_exceeded")
}

func TestNewRateLimiter_InvalidRate(t *testing.T) {
	_, err := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 0})
	assert.Error(t, err)

	_, err = NewRateLimiter(RateLimitConfig{RequestsPerMinute: 1, StoreType: RateLimitStoreRedis})
	assert.Error(t, err)
}

func TestRateLimiter_DifferentIPs(t *testing.T) {
	limiter, err := NewRateLimiter(RateLimitConfig{
		RequestsPerMinute: 2,
		StoreType:         RateLimitStoreMemory,
	})
	require.NoError(t, err)
	router := limitedRouter(t, limiter)

	for _, ip := range []string{"192.168.1.1", "192.168.1.2", "192.168.1.3"} {
		for i := 0; i < 2; i++ {
			assert.Equal(t, http.StatusOK, hit(router, ip, "").Code,
				"Request %d from IP %s should succeed", i+1, ip)
		}
		assert.Equal(t, http.StatusTooManyRequests, hit(router, ip, "").Code,
			"Third request from IP %s should be rate limited", ip)
	}
}

func TestRedisRateLimiter_MultiInstance(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	// Two limiters sharing Redis behave like two replicas.
	limiter1, err := NewRedisRateLimiter(5, "token", client)
	require.NoError(t, err)
	limiter2, err := NewRedisRateLimiter(5, "token", client)
	require.NoError(t, err)

	router1 := limitedRouter(t, limiter1)
	router2 := limitedRouter(t, limiter2)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(router1, "192.168.88.1", "").Code)
	}
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, hit(router2, "192.168.88.1", "").Code)
	}

	assert.Equal(t, http.StatusTooManyRequests, hit(router1, "192.168.88.1", "").Code,
		"Shared rate limit should be enforced across instances")
	assert.Equal(t, http.StatusOK, hit(router2, "192.168.88.2", "").Code)
}

func TestRateLimiter_SeparatePrefixes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	login, err := NewRedisRateLimiter(1, "login", client)
	require.NoError(t, err)
	token, err := NewRedisRateLimiter(1, "token", client)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, hit(limitedRouter(t, login), "10.0.0.1", "").Code)
	assert.Equal(t, http.StatusOK, hit(limitedRouter(t, token), "10.0.0.1", "").Code)
}

func TestRateLimiter_HTMLErrorResponse(t *testing.T) {
	limiter, err := NewMemoryRateLimiter(1, "")
	require.NoError(t, err)
	router := limitedRouter(t, limiter)

	accept := "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	assert.Equal(t, http.StatusOK, hit(router, "192.168.1.100", accept).Code)

	w := hit(router, "192.168.1.100", accept)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "Rate Limit Exceeded")
	assert.Contains(t, w.Body.String(), "Too many requests. Please try again later.")
	assert.Contains(t, w.Body.String(), "<html")
}

func TestRateLimiter_JSONErrorResponse(t *testing.T) {
	limiter, err := NewMemoryRateLimiter(1, "")
	require.NoError(t, err)
	router := limitedRouter(t, limiter)

	assert.Equal(t, http.StatusOK, hit(router, "192.168.1.200", "application/json").Code)

	w := hit(router, "192.168.1.200", "application/json")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "rate_limit_exceeded")
	assert.NotContains(t, w.Body.String(), "<html")
}
