package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/victorgomez09/supportportal/pkg/trace"
)

// Headers never written to the access log, in addition to the token header.
var redactedHeaders = []string{"authorization", "cookie", "jwt-token"}

type LoggingMiddleware struct {
	logger         *zap.Logger
	redacted       map[string]struct{}
	includeHeaders bool
	includeQuery   bool
	excludePaths   []string
}

type LoggingOption func(*LoggingMiddleware)

func WithHeaders(enabled bool) LoggingOption {
	return func(l *LoggingMiddleware) {
		l.includeHeaders = enabled
	}
}

func WithQueryParams(enabled bool) LoggingOption {
	return func(l *LoggingMiddleware) {
		l.includeQuery = enabled
	}
}

// WithExcludePaths skips requests whose path starts with any of paths.
func WithExcludePaths(paths []string) LoggingOption {
	return func(l *LoggingMiddleware) {
		l.excludePaths = paths
	}
}

// NewLoggingMiddleware logs one line per request. tokenHeader is redacted
// along with the credential headers.
func NewLoggingMiddleware(logger *zap.Logger, tokenHeader string, opts ...LoggingOption) *LoggingMiddleware {
	lm := &LoggingMiddleware{logger: logger, redacted: make(map[string]struct{}, len(redactedHeaders)+1)}
	for _, h := range redactedHeaders {
		lm.redacted[h] = struct{}{}
	}
	if tokenHeader != "" {
		lm.redacted[strings.ToLower(tokenHeader)] = struct{}{}
	}
	for _, opt := range opts {
		opt(lm)
	}
	return lm
}

func (l *LoggingMiddleware) excluded(path string) bool {
	for _, p := range l.excludePaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func (l *LoggingMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.excluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		sw := newStatusWriter(w)
		next.ServeHTTP(sw, r)

		fields := []zap.Field{
			zap.String("request_id", trace.GetRequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("ip", remoteIP(r)),
			zap.String("user_agent", r.UserAgent()),
			zap.Int("response_size", sw.length),
		}

		if l.includeQuery && r.URL.RawQuery != "" {
			query := make(map[string]string)
			for key, values := range r.URL.Query() {
				query[key] = strings.Join(values, ",")
			}
			fields = append(fields, zap.Any("query_params", query))
		}

		if l.includeHeaders {
			headers := make(map[string]string)
			for key, values := range r.Header {
				if _, skip := l.redacted[strings.ToLower(key)]; skip {
					continue
				}
				headers[key] = strings.Join(values, ",")
			}
			fields = append(fields, zap.Any("headers", headers))
		}

		switch status := sw.Status(); {
		case status >= 500:
			l.logger.Error("Server error", fields...)
		case status >= 400:
			l.logger.Warn("Client error", fields...)
		default:
			l.logger.Info("Request completed", fields...)
		}
	})
}

// remoteIP is the peer address; forwarding headers are not trusted.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
