package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bannerdesk/banner-service/internal/apperr"
	"github.com/bannerdesk/banner-service/internal/identity"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAuth map[string]*identity.User

func (f fakeAuth) Authenticate(ctx context.Context, token string) (*identity.User, error) {
	if token == "broken" {
		return nil, errors.New("redis down")
	}
	if u, ok := f[token]; ok {
		return u, nil
	}
	return nil, apperr.Unauthorized("invalid token")
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/me", func(c *gin.Context) {
		u := CurrentUser(c)
		fromCtx, _ := identity.FromContext(c.Request.Context())
		if u == nil {
			c.JSON(http.StatusOK, gin.H{"anonymous": true})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": u.ID, "ctx": fromCtx.ID})
	})
	return r
}

func do(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthenticate(t *testing.T) {
	auth := fakeAuth{"good": {ID: 3, Role: identity.RoleCreator}}
	r := newRouter(Authenticate(auth))

	w := do(r, "good")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":3,"ctx":3}`, w.Body.String())

	w = do(r, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"anonymous":true}`, w.Body.String())

	w = do(r, "bad")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, "broken")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "redis")
}

func TestRequireUserAndRole(t *testing.T) {
	auth := fakeAuth{
		"admin":   {ID: 1, Role: identity.RoleSuperAdmin},
		"creator": {ID: 2, Role: identity.RoleCreator},
	}

	r := newRouter(Authenticate(auth), RequireUser())
	assert.Equal(t, http.StatusUnauthorized, do(r, "").Code)
	assert.Equal(t, http.StatusOK, do(r, "creator").Code)

	r = newRouter(Authenticate(auth), RequireRole(identity.RoleSuperAdmin))
	assert.Equal(t, http.StatusForbidden, do(r, "creator").Code)
	assert.Equal(t, http.StatusForbidden, do(r, "").Code)
	assert.Equal(t, http.StatusOK, do(r, "admin").Code)
}

func TestRateLimit(t *testing.T) {
	limiter := NewIPRateLimiter(RateLimiterConfig{RequestsPerSecond: 1, BurstSize: 2})
	now := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	r := newRouter(RateLimit(limiter))
	assert.Equal(t, http.StatusOK, do(r, "").Code)
	assert.Equal(t, http.StatusOK, do(r, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, "").Code)

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, do(r, "").Code)
}

func TestRateLimiterSweepsIdleClients(t *testing.T) {
	limiter := NewIPRateLimiter(DefaultRateLimiterConfig())
	now := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	require.True(t, limiter.Allow("10.0.0.1"))
	require.True(t, limiter.Allow("10.0.0.2"))
	assert.Equal(t, 2, limiter.Len())

	now = now.Add(idleLimit + time.Minute)
	require.True(t, limiter.Allow("10.0.0.3"))
	assert.Equal(t, 1, limiter.Len())
}

func TestRequestID(t *testing.T) {
	logger := zerolog.Nop()
	r := newRouter(RequestID(), Logger(&logger))

	w := do(r, "")
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestCORS(t *testing.T) {
	r := newRouter(CORS([]string{"https://review.example.jp"}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Origin", "https://review.example.jp")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://review.example.jp", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Origin", "https://elsewhere.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
