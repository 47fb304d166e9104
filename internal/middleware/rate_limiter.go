package middleware

import (
	"net/http"

	"golang.org/x/time/rate"

	apierr "github.com/victorgomez09/supportportal/internal/auth"
)

// RateLimiterMiddleware caps the request rate of the whole server.
type RateLimiterMiddleware struct {
	limiter *rate.Limiter
}

// NewRateLimiterMiddleware falls back to 20 rps with a burst of 50 for zero values.
func NewRateLimiterMiddleware(rps float64, burst int) *RateLimiterMiddleware {
	if burst == 0 {
		burst = 50
	}
	if rps == 0 {
		rps = 20
	}
	return &RateLimiterMiddleware{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (m *RateLimiterMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			apierr.WriteStatus(w, http.StatusTooManyRequests, "too many requests, retry later")
			return
		}
		next.ServeHTTP(w, r)
	})
}
