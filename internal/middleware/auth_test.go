package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/radiusdt/storefront-notify/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newAuth() *AuthMiddleware {
	return NewAuthMiddleware(config.AuthConfig{
		Enabled:     true,
		AdminAPIKey: "admin-key",
		JWTSecret:   "jwt-secret",
		AdminRole:   "admin",
	}, zap.NewNop())
}

func echoPrincipal() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.Write([]byte(p.UserID))
	})
}

func TestRequireAdmin(t *testing.T) {
	a := newAuth()
	adminToken, err := a.IssueToken("u-admin", "admin", time.Hour)
	require.NoError(t, err)
	userToken, err := a.IssueToken("u-1", "customer", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{name: "no credentials", want: http.StatusUnauthorized},
		{name: "api key", header: map[string]string{"X-API-Key": "admin-key"}, want: http.StatusOK},
		{name: "wrong api key", header: map[string]string{"X-API-Key": "nope"}, want: http.StatusUnauthorized},
		{name: "admin token", header: map[string]string{"Authorization": "Bearer " + adminToken}, want: http.StatusOK},
		{name: "customer token", header: map[string]string{"Authorization": "Bearer " + userToken}, want: http.StatusForbidden},
		{name: "garbage token", header: map[string]string{"Authorization": "Bearer abc.def.ghi"}, want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/notification/admin/stats", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			a.RequireAdmin(echoPrincipal()).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRequireUser(t *testing.T) {
	a := newAuth()
	token, err := a.IssueToken("u-1", "", time.Hour)
	require.NoError(t, err)
	expired, err := a.IssueToken("u-1", "", -time.Minute)
	require.NoError(t, err)

	t.Run("bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/notification/track", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		a.RequireUser(echoPrincipal()).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u-1", rec.Body.String())
	})

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/notification/track", nil)
		req.AddCookie(&http.Cookie{Name: TokenCookieName, Value: token})
		rec := httptest.NewRecorder()
		a.RequireUser(echoPrincipal()).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("expired", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/notification/track", nil)
		req.Header.Set("Authorization", "Bearer "+expired)
		rec := httptest.NewRecorder()
		a.RequireUser(echoPrincipal()).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	})

	t.Run("anonymous", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/notification/track", nil)
		rec := httptest.NewRecorder()
		a.RequireUser(echoPrincipal()).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequireUserAuthDisabled(t *testing.T) {
	a := NewAuthMiddleware(config.AuthConfig{Enabled: false}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/notification/mine", nil)
	req.Header.Set(DevUserHeaderName, "dev-user")
	rec := httptest.NewRecorder()
	a.RequireUser(echoPrincipal()).ServeHTTP(rec, req)
	assert.Equal(t, "dev-user", rec.Body.String())
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", ClientIP(req))
}
