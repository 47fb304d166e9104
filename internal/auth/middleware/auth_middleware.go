package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apierr "github.com/victorgomez09/supportportal/internal/auth"
	"github.com/victorgomez09/supportportal/internal/auth/models"
)

// DefaultTokenHeader carries the bearer token.
const DefaultTokenHeader = "JWT-Token"

type claimsKey struct{}

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	Validate(raw string) (*models.Claims, error)
}

// ClaimsFrom returns the claims stored by Authenticate.
func ClaimsFrom(ctx context.Context) (*models.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*models.Claims)
	return c, ok
}

// WithClaims stores claims in ctx.
func WithClaims(ctx context.Context, c *models.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

type AuthMiddleware struct {
	tokens TokenValidator
	header string
	logger *zap.Logger
}

func NewAuthMiddleware(tokens TokenValidator, header string, logger *zap.Logger) *AuthMiddleware {
	if header == "" {
		header = DefaultTokenHeader
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{tokens: tokens, header: header, logger: logger}
}

// extractToken reads the token from the configured header, falling back to
// Authorization. A "Bearer " prefix is optional.
func (m *AuthMiddleware) extractToken(r *http.Request) string {
	raw := r.Header.Get(m.header)
	if raw == "" {
		raw = r.Header.Get("Authorization")
	}
	raw = strings.TrimSpace(raw)
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	return raw
}

// Authenticate rejects requests without a valid token with a generic 401.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := m.extractToken(r)
		if raw == "" {
			m.logger.Debug("Request without token", zap.String("path", r.URL.Path))
			apierr.WriteError(w, apierr.ErrTokenMalformed)
			return
		}

		claims, err := m.tokens.Validate(raw)
		if err != nil {
			m.logger.Info("Token rejected",
				zap.String("path", r.URL.Path),
				zap.String("reason", apierr.Reason(err)))
			apierr.WriteError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// RequireAuthority wraps next so it only runs for callers holding authority.
func (m *AuthMiddleware) RequireAuthority(authority string, next http.Handler) http.Handler {
	return m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFrom(r.Context())
		if !ok || !claims.HasAuthority(authority) {
			subject := ""
			if ok {
				subject = claims.Subject
			}
			m.logger.Info("Missing authority",
				zap.String("subject", subject),
				zap.String("authority", authority),
				zap.String("path", r.URL.Path))
			apierr.WriteError(w, apierr.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	}))
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per client address.
type RateLimiter struct {
	limiters map[string]*clientLimiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	idle     time.Duration
}

func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	if burst <= 0 {
		burst = 5
	}
	return &RateLimiter{
		limiters: make(map[string]*clientLimiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		idle:     10 * time.Minute,
	}
}

func (rl *RateLimiter) Allow(key string) bool {
	now := time.Now()

	rl.mu.Lock()
	cl, exists := rl.limiters[key]
	if !exists {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = cl
	}
	cl.lastSeen = now
	rl.mu.Unlock()

	return cl.limiter.AllowN(now, 1)
}

// Prune drops limiters idle for longer than the idle period.
func (rl *RateLimiter) Prune() int {
	cutoff := time.Now().Add(-rl.idle)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, cl := range rl.limiters {
		if cl.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

// Run prunes idle limiters every interval until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.Prune()
		case <-ctx.Done():
			return
		}
	}
}

// Limit rejects requests from clients that exceeded their rate.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientIP(r)) {
			apierr.WriteStatus(w, http.StatusTooManyRequests, "too many requests, retry later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
