package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victorgomez09/supportportal/internal/config"
)

func TestNewRequiresTLSOrInsecure(t *testing.T) {
	_, err := New(config.Server{Port: 8081}, http.NotFoundHandler(), nil)
	assert.Error(t, err)

	_, err = New(config.Server{Port: 8081, TLS: &config.TLS{Enabled: true, CertFile: "missing.pem", KeyFile: "missing.key"}}, http.NotFoundHandler(), nil)
	assert.Error(t, err)

	s, err := New(config.Server{Port: 8081, Insecure: true}, http.NotFoundHandler(), nil)
	require.NoError(t, err)
	assert.False(t, s.TLS())
	assert.Equal(t, ":8081", s.Addr())
}

func TestServeAndShutdown(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "pong")
	})
	s, err := New(config.Server{Insecure: true, ReadTimeout: time.Second, WriteTimeout: time.Second}, handler, nil)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()
	<-s.Ready()

	resp, err := http.Get("http://" + s.Addr() + "/ping")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "pong", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.NoError(t, <-done)
}

func writeCert(t *testing.T, notAfter time.Time) *config.TLS {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "portal.local"},
		NotBefore:    time.Now().Add(-48 * time.Hour),
		NotAfter:     notAfter,
		DNSNames:     []string{"portal.local"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	dir := t.TempDir()
	certFile := filepath.Join(dir, "server.pem")
	keyFile := filepath.Join(dir, "server.key")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return &config.TLS{Enabled: true, CertFile: certFile, KeyFile: keyFile}
}

func TestCertificateProbe(t *testing.T) {
	s, err := New(config.Server{Port: 8443, TLS: writeCert(t, time.Now().Add(10*24*time.Hour))}, http.NotFoundHandler(), nil)
	require.NoError(t, err)
	assert.True(t, s.TLS())

	assert.Error(t, s.CertificateProbe(30*24*time.Hour)(context.Background()))
	assert.NoError(t, s.CertificateProbe(24*time.Hour)(context.Background()))

	plain, err := New(config.Server{Insecure: true}, http.NotFoundHandler(), nil)
	require.NoError(t, err)
	assert.NoError(t, plain.CertificateProbe(time.Hour)(context.Background()))
}

func TestNewRejectsExpiredCertificate(t *testing.T) {
	_, err := New(config.Server{Port: 8443, TLS: writeCert(t, time.Now().Add(-time.Hour))}, http.NotFoundHandler(), nil)
	assert.Error(t, err)
}
