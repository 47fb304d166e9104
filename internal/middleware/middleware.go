package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/victorgomez09/supportportal/internal/config"
)

// Middleware wraps an http.Handler.
type Middleware interface {
	Middleware(next http.Handler) http.Handler
}

// Func adapts a plain wrapping function to Middleware.
type Func func(http.Handler) http.Handler

func (f Func) Middleware(next http.Handler) http.Handler {
	return f(next)
}

// statusWriter records the status code and body size written by a handler.
type statusWriter struct {
	http.ResponseWriter
	status int
	length int
}

func newStatusWriter(w http.ResponseWriter) *statusWriter {
	return &statusWriter{ResponseWriter: w}
}

func (w *statusWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.length += n
	return n, err
}

func (w *statusWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Chain applies middleware in the order it was added: the first one sees the
// request first.
type Chain struct {
	middlewares []Middleware
}

func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: middlewares}
}

func (c *Chain) Use(m Middleware) {
	if m != nil {
		c.middlewares = append(c.middlewares, m)
	}
}

func (c *Chain) Len() int {
	return len(c.middlewares)
}

func (c *Chain) Then(final http.Handler) http.Handler {
	if final == nil {
		final = http.NotFoundHandler()
	}
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		final = c.middlewares[i].Middleware(final)
	}
	return final
}

// AddConfigured appends the middleware enabled in cfg. Order: IP filter,
// global rate limit, security headers, CORS.
func (c *Chain) AddConfigured(server config.Server, cfg config.Middleware, tokenHeader string, logger *zap.Logger) error {
	if len(server.AllowedIPs) > 0 {
		filter, err := NewIPFilter(server.AllowedIPs, logger)
		if err != nil {
			return err
		}
		c.Use(filter)
		logger.Info("IP allow list configured", zap.Strings("allowed_ips", server.AllowedIPs))
	}

	if rl := cfg.RateLimit; rl != nil {
		c.Use(NewRateLimiterMiddleware(rl.RequestsPerSecond, rl.Burst))
		logger.Info("Global rate limiter configured",
			zap.Float64("requests_per_second", rl.RequestsPerSecond),
			zap.Int("burst", rl.Burst))
	}

	if cfg.Security != nil {
		c.Use(NewSecurityMiddleware(cfg.Security))
		logger.Info("Security headers configured")
	}

	if cfg.CORS != nil {
		c.Use(NewCORSMiddleware(cfg.CORS, tokenHeader))
		logger.Info("CORS configured", zap.Strings("allowed_origins", cfg.CORS.AllowedOrigins))
	}
	return nil
}
