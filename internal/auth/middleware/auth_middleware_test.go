package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierr "github.com/victorgomez09/supportportal/internal/auth"
	"github.com/victorgomez09/supportportal/internal/auth/models"
	"github.com/victorgomez09/supportportal/internal/auth/token"
)

func newTokens(t *testing.T, now func() time.Time) *token.Service {
	t.Helper()
	svc, err := token.NewService(token.Config{
		Secret: []byte("0123456789abcdef0123456789abcdef"),
		TTL:    time.Hour,
		Clock:  now,
	})
	require.NoError(t, err)
	return svc
}

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFrom(r.Context())
		require.True(t, ok)
		w.Header().Set("X-Subject", claims.Subject)
		w.WriteHeader(http.StatusOK)
	})
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) apierr.HTTPResponse {
	t.Helper()
	var body apierr.HTTPResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestAuthenticate(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tokens := newTokens(t, func() time.Time { return now })
	signed, err := tokens.Issue(&models.Identity{Username: "jdoe", Authorities: []string{"read"}})
	require.NoError(t, err)

	m := NewAuthMiddleware(tokens, "", nil)
	handler := m.Authenticate(okHandler(t))

	tests := []struct {
		name   string
		header string
		value  string
		status int
	}{
		{"raw token", DefaultTokenHeader, signed, http.StatusOK},
		{"bearer prefix", DefaultTokenHeader, "Bearer " + signed, http.StatusOK},
		{"authorization fallback", "Authorization", "Bearer " + signed, http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"garbage", DefaultTokenHeader, "not-a-token", http.StatusUnauthorized},
		{"tampered", DefaultTokenHeader, signed + "x", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/user/list", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "jdoe", rec.Header().Get("X-Subject"))
				return
			}
			body := decode(t, rec)
			assert.Equal(t, "unauthenticated", body.Message)
			assert.Equal(t, http.StatusUnauthorized, body.HTTPStatusCode)
			assert.Equal(t, "UNAUTHORIZED", body.HTTPStatus)
		})
	}
}

func TestExpiredAndForgedLookTheSame(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	tokens := newTokens(t, clock)

	expired, err := tokens.Issue(&models.Identity{Username: "jdoe", Authorities: []string{"read"}})
	require.NoError(t, err)

	other, err := token.NewService(token.Config{Secret: []byte("ffffffffffffffffffffffffffffffff"), Clock: clock})
	require.NoError(t, err)
	forged, err := other.Issue(&models.Identity{Username: "jdoe", Authorities: []string{"read"}})
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	handler := NewAuthMiddleware(tokens, "", nil).Authenticate(okHandler(t))

	var bodies []apierr.HTTPResponse
	for _, raw := range []string{expired, forged} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(DefaultTokenHeader, raw)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		bodies = append(bodies, decode(t, rec))
	}

	assert.Equal(t, bodies[0].Message, bodies[1].Message)
	assert.Equal(t, bodies[0].Reason, bodies[1].Reason)
}

func TestRequireAuthority(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tokens := newTokens(t, func() time.Time { return now })
	m := NewAuthMiddleware(tokens, "", nil)
	handler := m.RequireAuthority(models.AuthorityDelete, okHandler(t))

	reader, err := tokens.Issue(&models.Identity{Username: "reader", Authorities: []string{"read"}})
	require.NoError(t, err)
	admin, err := tokens.Issue(&models.Identity{Username: "root", Authorities: []string{"read", "update", "create", "delete"}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/user/delete/x", nil)
	req.Header.Set(DefaultTokenHeader, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decode(t, rec).Message)

	req = httptest.NewRequest(http.MethodDelete, "/user/delete/x", nil)
	req.Header.Set(DefaultTokenHeader, admin)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/user/delete/x", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimiterPerClient(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	handler := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/user/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1000"))
	assert.Equal(t, http.StatusOK, send("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:1002"))
	assert.Equal(t, http.StatusOK, send("10.0.0.2:1000"))

	rl.idle = 0
	time.Sleep(time.Millisecond)
	assert.Equal(t, 2, rl.Prune())
}
