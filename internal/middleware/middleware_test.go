package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handlers = append(handlers, func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.POST("/internal/jobs/:type", handlers...)
	return router
}

func TestInternalAuth(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		sent       string
		wantStatus int
	}{
		{name: "valid key", configured: "secret", sent: "secret", wantStatus: http.StatusNoContent},
		{name: "wrong key", configured: "secret", sent: "guess", wantStatus: http.StatusUnauthorized},
		{name: "missing header", configured: "secret", wantStatus: http.StatusUnauthorized},
		{name: "not configured", configured: "", sent: "", wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(InternalAuth(tt.configured))
			req := httptest.NewRequest(http.MethodPost, "/internal/jobs/match", nil)
			if tt.sent != "" {
				req.Header.Set(APIKeyHeader, tt.sent)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRateLimitPerJobType(t *testing.T) {
	limiter := NewKeyedRateLimiter(RateLimiterConfig{RequestsPerSecond: 0.001, BurstSize: 1})
	router := newRouter(RateLimit(limiter, PathParam("type")))

	do := func(path string) int {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, do("/internal/jobs/match"))
	assert.Equal(t, http.StatusTooManyRequests, do("/internal/jobs/match"))
	assert.Equal(t, http.StatusNoContent, do("/internal/jobs/cleanup"), "each job type has its own budget")
}

func TestKeyedRateLimiterCleanup(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	limiter := NewKeyedRateLimiter(RateLimiterConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute})
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Allow("a"))
	now = now.Add(30 * time.Second)
	assert.True(t, limiter.Allow("b"))

	now = now.Add(45 * time.Second)
	assert.Equal(t, 1, limiter.Cleanup(), "only a is idle past the ttl")
	assert.Equal(t, 0, limiter.Cleanup())
}
