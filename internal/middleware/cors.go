package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/victorgomez09/supportportal/internal/config"
)

type CORS struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
	anyOrigin        bool
}

// NewCORSMiddleware builds the CORS handler. The token header is always exposed
// so browser clients can read it after login.
func NewCORSMiddleware(cfg *config.CORS, tokenHeader string) *CORS {
	c := &CORS{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   cfg.AllowedHeaders,
		ExposedHeaders:   cfg.ExposedHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	}
	if len(c.AllowedMethods) == 0 {
		c.AllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}
	}
	if tokenHeader != "" && !containsFold(c.ExposedHeaders, tokenHeader) {
		c.ExposedHeaders = append(append([]string(nil), c.ExposedHeaders...), tokenHeader)
	}
	if tokenHeader != "" && len(c.AllowedHeaders) > 0 && !containsFold(c.AllowedHeaders, tokenHeader) {
		c.AllowedHeaders = append(append([]string(nil), c.AllowedHeaders...), tokenHeader)
	}
	for _, o := range c.AllowedOrigins {
		if o == "*" {
			c.anyOrigin = true
		}
	}
	return c
}

func (c *CORS) allowOrigin(origin string) string {
	if origin == "" {
		return ""
	}
	if c.anyOrigin && !c.AllowCredentials {
		return "*"
	}
	if c.anyOrigin || containsFold(c.AllowedOrigins, origin) {
		return origin
	}
	return ""
}

func (c *CORS) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Add("Vary", "Origin")

		allowed := c.allowOrigin(r.Header.Get("Origin"))
		if allowed != "" {
			h.Set("Access-Control-Allow-Origin", allowed)
			if len(c.ExposedHeaders) > 0 {
				h.Set("Access-Control-Expose-Headers", strings.Join(c.ExposedHeaders, ", "))
			}
			if c.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if allowed != "" {
				h.Set("Access-Control-Allow-Methods", strings.Join(c.AllowedMethods, ", "))
				if len(c.AllowedHeaders) > 0 {
					h.Set("Access-Control-Allow-Headers", strings.Join(c.AllowedHeaders, ", "))
				} else if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
					h.Set("Access-Control-Allow-Headers", req)
				}
				if c.MaxAge > 0 {
					h.Set("Access-Control-Max-Age", strconv.Itoa(c.MaxAge))
				}
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
