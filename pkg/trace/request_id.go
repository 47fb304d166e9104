package trace

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ContextKey is the type of context keys set by this package.
type ContextKey string

const (
	RequestIDKey    ContextKey = "request_id"
	RequestIDHeader            = "X-Request-ID"
)

type RequestID struct {
	trustIncoming bool
}

// WithRequestID returns the request-ID middleware. When trustIncoming is set, a
// well formed UUID sent by the client is kept instead of generating a new one.
func WithRequestID(trustIncoming bool) *RequestID {
	return &RequestID{trustIncoming: trustIncoming}
}

func (m *RequestID) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if m.trustIncoming {
			if parsed, err := uuid.Parse(r.Header.Get(RequestIDHeader)); err == nil {
				id = parsed.String()
			}
		}
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), RequestIDKey, id)))
	})
}

// GetRequestID returns the request ID stored in ctx, or "".
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// Logger returns l annotated with the request ID from ctx when there is one.
func Logger(ctx context.Context, l *zap.Logger) *zap.Logger {
	if id := GetRequestID(ctx); id != "" {
		return l.With(zap.String("request_id", id))
	}
	return l
}
