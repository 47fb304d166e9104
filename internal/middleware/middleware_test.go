package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/victorgomez09/supportportal/internal/config"
	"github.com/victorgomez09/supportportal/pkg/trace"
)

func ok() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return Func(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		})
	}

	chain := NewChain(mark("a"), mark("b"))
	chain.Use(mark("c"))
	chain.Use(nil)
	assert.Equal(t, 3, chain.Len())

	chain.Then(ok()).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	lm := NewLoggingMiddleware(zap.New(core), "JWT-Token", WithHeaders(true), WithExcludePaths([]string{"/health"}))

	handler := trace.WithRequestID(false).Middleware(lm.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})))

	req := httptest.NewRequest(http.MethodPost, "/user/login", nil)
	req.Header.Set("JWT-Token", "secret-token")
	req.Header.Set("Authorization", "Bearer secret-token")
	req.Header.Set("X-Client", "cli")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	fields := entry.ContextMap()
	assert.EqualValues(t, http.StatusUnauthorized, fields["status"])
	assert.Equal(t, rec.Header().Get(trace.RequestIDHeader), fields["request_id"])
	headers, ok := fields["headers"].(map[string]string)
	require.True(t, ok)
	assert.Contains(t, headers, "X-Client")
	assert.NotContains(t, headers, "Jwt-Token")
	assert.NotContains(t, headers, "Authorization")

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, 1, logs.Len())
}

func TestLoggingRedactsConfiguredTokenHeader(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	lm := NewLoggingMiddleware(zap.New(core), "X-Session-Token", WithHeaders(true))

	req := httptest.NewRequest(http.MethodGet, "/user/list", nil)
	req.Header.Set("X-Session-Token", "secret-token")
	req.Header.Set("Cookie", "sid=1")
	req.Header.Set("X-Client", "cli")
	lm.Middleware(ok()).ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, 1, logs.Len())
	headers, ok := logs.All()[0].ContextMap()["headers"].(map[string]string)
	require.True(t, ok)
	assert.Contains(t, headers, "X-Client")
	assert.NotContains(t, headers, "X-Session-Token")
	assert.NotContains(t, headers, "Cookie")
}

func TestSecurityHeaders(t *testing.T) {
	sec := NewSecurityMiddleware(&config.Security{
		HSTS:                  true,
		HSTSMaxAge:            31536000,
		HSTSIncludeSubDomains: true,
		FrameOptions:          "DENY",
		ContentTypeOptions:    true,
	})
	rec := httptest.NewRecorder()
	sec.Middleware(ok()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "max-age=31536000; includeSubDomains", rec.Header().Get("Strict-Transport-Security"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Empty(t, rec.Header().Get("X-XSS-Protection"))
}

func TestCORS(t *testing.T) {
	c := NewCORSMiddleware(&config.CORS{
		AllowedOrigins:   []string{"https://portal.example.com"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           600,
	}, "JWT-Token")
	handler := c.Middleware(ok())

	req := httptest.NewRequest(http.MethodOptions, "/user/login", nil)
	req.Header.Set("Origin", "https://portal.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://portal.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "JWT-Token")
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "JWT-Token")
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))

	req = httptest.NewRequest(http.MethodGet, "/user/list", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWildcard(t *testing.T) {
	handler := NewCORSMiddleware(&config.CORS{AllowedOrigins: []string{"*"}}, "").Middleware(ok())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://any.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestGlobalRateLimiter(t *testing.T) {
	handler := NewRateLimiterMiddleware(0.001, 1).Middleware(ok())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "too many requests"))
}

func TestIPFilter(t *testing.T) {
	_, err := NewIPFilter([]string{"not-an-ip"}, nil)
	assert.Error(t, err)
	_, err = NewIPFilter([]string{"10.0.0.0/33"}, nil)
	assert.Error(t, err)

	f, err := NewIPFilter([]string{"127.0.0.1", "10.1.0.0/16", "::1"}, nil)
	require.NoError(t, err)
	handler := f.Middleware(ok())

	tests := []struct {
		addr   string
		status int
	}{
		{"127.0.0.1:5000", http.StatusOK},
		{"10.1.200.3:5000", http.StatusOK},
		{"[::1]:5000", http.StatusOK},
		{"10.2.0.1:5000", http.StatusForbidden},
		{"192.168.0.1:5000", http.StatusForbidden},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.addr
		req.Header.Set("X-Forwarded-For", "127.0.0.1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, tt.status, rec.Code, tt.addr)
	}
}

func TestAddConfigured(t *testing.T) {
	chain := NewChain()
	err := chain.AddConfigured(
		config.Server{AllowedIPs: []string{"127.0.0.1"}},
		config.Middleware{
			RateLimit: &config.RateLimit{RequestsPerSecond: 10, Burst: 10},
			Security:  &config.Security{},
			CORS:      &config.CORS{AllowedOrigins: []string{"*"}},
		},
		"JWT-Token",
		zap.NewNop(),
	)
	require.NoError(t, err)
	assert.Equal(t, 4, chain.Len())

	err = NewChain().AddConfigured(config.Server{AllowedIPs: []string{"bogus"}}, config.Middleware{}, "", zap.NewNop())
	assert.Error(t, err)
}
