package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	apierr "github.com/victorgomez09/supportportal/internal/auth"
)

// IPFilter admits only clients whose peer address is in the allow list.
// Entries are single addresses or CIDR ranges.
type IPFilter struct {
	nets   []*net.IPNet
	logger *zap.Logger
}

func NewIPFilter(allowed []string, logger *zap.Logger) (*IPFilter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &IPFilter{logger: logger}
	for _, entry := range allowed {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("invalid allowed ip %q", entry)
			}
			bits := 128
			if ip.To4() != nil {
				ip = ip.To4()
				bits = 32
			}
			f.nets = append(f.nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed cidr %q: %w", entry, err)
		}
		f.nets = append(f.nets, n)
	}
	return f, nil
}

func (f *IPFilter) Allowed(ip net.IP) bool {
	if len(f.nets) == 0 {
		return true
	}
	for _, n := range f.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func (f *IPFilter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := remoteIP(r)
		ip := net.ParseIP(addr)
		if ip == nil || !f.Allowed(ip) {
			f.logger.Warn("Access denied: ip not allowed", zap.String("client_ip", addr))
			apierr.WriteStatus(w, http.StatusForbidden, "access denied")
			return
		}
		next.ServeHTTP(w, r)
	})
}
