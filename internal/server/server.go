package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/victorgomez09/supportportal/internal/config"
	"github.com/victorgomez09/supportportal/internal/logger"
)

const TLSMinVersion = tls.VersionTLS12

// Ciphers enabled for TLS 1.2 connections. TLS 1.3 suites are not configurable.
var Ciphers = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
}

// Server runs the portal's HTTP listener.
type Server struct {
	http     *http.Server
	useTLS   bool
	logger   *zap.Logger
	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
	leaf     *x509.Certificate
	now      func() time.Time
}

// New prepares the listener described by cfg. Certificates are loaded here so
// a bad key pair fails at startup.
func New(cfg config.Server, handler http.Handler, zLog *zap.Logger) (*Server, error) {
	if zLog == nil {
		zLog = zap.NewNop()
	}

	s := &Server{
		http: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
			ErrorLog:     logger.StdLogger(zLog, zapcore.WarnLevel, "http.server"),
		},
		logger: zLog,
		ready:  make(chan struct{}),
		now:    time.Now,
	}

	if cfg.TLS != nil && cfg.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load server certificate: %w", err)
		}
		leaf, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return nil, fmt.Errorf("failed to parse server certificate: %w", err)
		}
		if s.now().After(leaf.NotAfter) {
			return nil, fmt.Errorf("server certificate expired on %s", leaf.NotAfter.Format(time.RFC3339))
		}
		s.leaf = leaf
		s.http.TLSConfig = &tls.Config{
			MinVersion:   TLSMinVersion,
			CipherSuites: Ciphers,
			Certificates: []tls.Certificate{cert},
		}
		s.useTLS = true
	} else if !cfg.Insecure {
		return nil, errors.New("TLS not configured and insecure mode is disabled; set 'insecure' to serve plain HTTP")
	}

	return s, nil
}

// Start listens on the configured address and blocks until the server stops.
// A graceful Shutdown makes it return nil.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.http.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	if s.useTLS {
		ln = tls.NewListener(ln, s.http.TLSConfig)
	}

	s.mu.Lock()
	s.listener = ln
	close(s.ready)
	s.mu.Unlock()

	s.logger.Info("Server started", zap.String("listen_on", ln.Addr().String()), zap.Bool("tls", s.useTLS))

	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("Server stopped with error", zap.Error(err))
		return err
	}
	s.logger.Info("Server stopped gracefully")
	return nil
}

// Ready is closed once the server accepts connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.http.Addr
}

func (s *Server) TLS() bool {
	return s.useTLS
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// CertificateProbe fails once the served certificate expires within threshold.
// Without TLS it always passes.
func (s *Server) CertificateProbe(threshold time.Duration) func(context.Context) error {
	return func(context.Context) error {
		if s.leaf == nil {
			return nil
		}
		left := s.leaf.NotAfter.Sub(s.now())
		if left < threshold {
			s.logger.Warn("Server certificate expires soon",
				zap.String("subject", s.leaf.Subject.CommonName),
				zap.Time("not_after", s.leaf.NotAfter),
				zap.Duration("remaining", left))
			return fmt.Errorf("certificate %q expires in %s", s.leaf.Subject.CommonName, left.Round(time.Hour))
		}
		return nil
	}
}
