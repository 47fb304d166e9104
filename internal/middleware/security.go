package middleware

import (
	"fmt"
	"net/http"

	"github.com/victorgomez09/supportportal/internal/config"
)

type ServerSecurity struct {
	HSTS                  bool
	HSTSMaxAge            int
	HSTSIncludeSubDomains bool
	HSTSPreload           bool
	FrameOptions          string
	ContentTypeOptions    bool
	XSSProtection         bool
}

func NewSecurityMiddleware(cfg *config.Security) *ServerSecurity {
	if cfg == nil {
		cfg = &config.Security{}
	}
	return &ServerSecurity{
		HSTS:                  cfg.HSTS,
		HSTSMaxAge:            cfg.HSTSMaxAge,
		HSTSIncludeSubDomains: cfg.HSTSIncludeSubDomains,
		HSTSPreload:           cfg.HSTSPreload,
		FrameOptions:          cfg.FrameOptions,
		ContentTypeOptions:    cfg.ContentTypeOptions,
		XSSProtection:         cfg.XSSProtection,
	}
}

// Middleware sets the configured security headers. Responses are never cached
// since they may carry tokens or account data.
func (s *ServerSecurity) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		if s.HSTS {
			value := fmt.Sprintf("max-age=%d", s.HSTSMaxAge)
			if s.HSTSIncludeSubDomains {
				value += "; includeSubDomains"
			}
			if s.HSTSPreload {
				value += "; preload"
			}
			h.Set("Strict-Transport-Security", value)
		}
		if s.FrameOptions != "" {
			h.Set("X-Frame-Options", s.FrameOptions)
		}
		if s.ContentTypeOptions {
			h.Set("X-Content-Type-Options", "nosniff")
		}
		if s.XSSProtection {
			h.Set("X-XSS-Protection", "1; mode=block")
		}
		h.Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}
