package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermod-im/server/internal/auth"
	"github.com/hermod-im/server/internal/register"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestKeyLimiter_perKeyBuckets(t *testing.T) {
	l := NewKeyLimiter(1, 2, time.Minute)
	now := time.Now()

	assert.True(t, l.Allow("a", now))
	assert.True(t, l.Allow("a", now))
	assert.False(t, l.Allow("a", now), "burst of 2 exhausted")

	// A different key has its own bucket.
	assert.True(t, l.Allow("b", now))

	// Refill after a second at 1 rps.
	assert.True(t, l.Allow("a", now.Add(1100*time.Millisecond)))
}

func TestKeyLimiter_nilAndBlankAllow(t *testing.T) {
	var l *KeyLimiter
	assert.True(t, l.Allow("anything", time.Now()))

	assert.Nil(t, NewKeyLimiter(0, 5, time.Minute))

	l = NewKeyLimiter(1, 1, time.Minute)
	assert.True(t, l.Allow("", time.Now()))
	assert.True(t, l.Allow("  ", time.Now()), "blank keys are never limited")
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewKeyLimiter(1, 1, time.Minute)
	handler := RateLimitMiddleware(limiter, GetIPKey)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/register", nil)
	req.RemoteAddr = "203.0.113.7:4242"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")

	// Another client is unaffected.
	other := httptest.NewRequest(http.MethodPost, "/register", nil)
	other.RemoteAddr = "198.51.100.9:4242"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetIPKey_forwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "ip:10.0.0.1:1234", GetIPKey(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "ip:203.0.113.7", GetIPKey(req))
}

func TestPrincipalMiddleware(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret-at-least-32-characters!!", time.Hour)

	var seen register.Principal
	handler := PrincipalMiddleware(jwtService)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetPrincipal(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("no header is anonymous", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/register", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, seen.Authorized)
		assert.Empty(t, seen.Identity)
	})

	t.Run("valid token attaches principal", func(t *testing.T) {
		token, err := jwtService.SignAccessToken("user@example.org", "example.org", "")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/register", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, seen.Authorized)
		assert.Equal(t, "user@example.org", seen.Identity)
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/register", nil)
		req.Header.Set("Authorization", "Bearer not.a.token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed header is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/register", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwdw==")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
