package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victorgomez09/supportportal/internal/auth/models"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
server:
  insecure: true
auth:
  jwt_secret: ` + secret + `
`))
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, 5*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "Get Arrays, LLC", cfg.Auth.Issuer)
	assert.Equal(t, "User Management Portal", cfg.Auth.Audience)
	assert.Equal(t, "JWT-Token", cfg.Auth.TokenHeader)
	assert.Equal(t, 5, cfg.Auth.MaxLoginAttempts)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AttemptWindow)
	assert.Equal(t, 10, cfg.Auth.BcryptCost)
	assert.Equal(t, 10, cfg.Auth.PasswordLength)
	assert.Equal(t, "mandatory", cfg.Mail.TLSPolicy)
	assert.Equal(t, ":8081", cfg.Addr())
	require.NotNil(t, cfg.Middleware.LoginRateLimit)

	table, err := cfg.RoleTable()
	require.NoError(t, err)
	auths, err := table.Authorities(models.RoleSuperAdmin)
	require.NoError(t, err)
	assert.Contains(t, auths, models.AuthorityDelete)
}

func TestParseDurationsAndSections(t *testing.T) {
	cfg, err := Parse([]byte(`
server:
  port: 9443
  tls:
    enabled: true
    cert_file: cert.pem
    key_file: key.pem
auth:
  jwt_secret: ` + secret + `
  token_ttl: 2h
  attempt_window: 30m
  max_login_attempts: 3
mail:
  enabled: true
  host: smtp.example.com
  from: portal@example.com
  tls_policy: opportunistic
  response_wait: 500ms
middleware:
  rate_limit:
    requests_per_second: 50
    burst: 100
`))
	require.NoError(t, err)

	assert.True(t, cfg.TLSEnabled())
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 30*time.Minute, cfg.Auth.AttemptWindow)
	assert.Equal(t, 3, cfg.Auth.MaxLoginAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Mail.ResponseWait)
	assert.Equal(t, 100, cfg.Middleware.RateLimit.Burst)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte(`
server:
  insecure: true
  prot: 80
auth:
  jwt_secret: ` + secret + `
`))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Defaults()
		cfg.Server.Insecure = true
		cfg.Auth.JWTSecret = secret
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing secret", func(c *Config) { c.Auth.JWTSecret = "" }},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }},
		{"non-positive ttl", func(c *Config) { c.Auth.TokenTTL = -time.Second }},
		{"zero threshold", func(c *Config) { c.Auth.MaxLoginAttempts = 0 }},
		{"missing role", func(c *Config) { delete(c.Roles, "HR") }},
		{"duplicated authority", func(c *Config) { c.Roles["USER"] = []string{"read", "read"} }},
		{"unknown role", func(c *Config) { c.Roles["JANITOR"] = []string{"read"} }},
		{"unknown tls policy", func(c *Config) { c.Mail.TLSPolicy = "sometimes" }},
		{"mail without host", func(c *Config) { c.Mail.Enabled = true; c.Mail.From = "a@b.c" }},
		{"plain http without insecure", func(c *Config) { c.Server.Insecure = false }},
		{"tls without files", func(c *Config) { c.Server.TLS = &TLS{Enabled: true} }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRoleTableAcceptsPrefixedNames(t *testing.T) {
	cfg := Defaults()
	cfg.Roles = map[string][]string{
		"ROLE_USER":        {"read"},
		"ROLE_HR":          {"read", "update"},
		"ROLE_MANAGER":     {"read", "update"},
		"ROLE_ADMIN":       {"read", "update", "create"},
		"ROLE_SUPER_ADMIN": {"read", "update", "create", "delete"},
	}
	table, err := cfg.RoleTable()
	require.NoError(t, err)
	assert.True(t, table.Has(models.RoleHR))

	cfg.Roles["user"] = []string{"read"}
	_, err = cfg.RoleTable()
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvJWTSecret:    "ffffffffffffffffffffffffffffffff",
		EnvSMTPPassword: "relay-pass",
		EnvDBPath:       "/var/lib/portal.db",
	}
	cfg := Defaults()
	cfg.Auth.JWTSecret = secret
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	assert.Equal(t, env[EnvJWTSecret], cfg.Auth.JWTSecret)
	assert.Equal(t, "relay-pass", cfg.Mail.Password)
	assert.Equal(t, "/var/lib/portal.db", cfg.Database.Path)
}

func TestLoadFromFileWithEnvSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  insecure: true\n"), 0o600))

	t.Setenv(EnvJWTSecret, secret)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, secret, cfg.Auth.JWTSecret)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestExampleConfigLoads(t *testing.T) {
	t.Setenv(EnvJWTSecret, secret)
	cfg, err := Load(filepath.Join("..", "..", "config.example.yaml"))
	require.NoError(t, err)

	assert.False(t, cfg.Mail.Enabled)
	assert.Equal(t, 5*time.Hour, cfg.Auth.TokenTTL)
	require.NotNil(t, cfg.Middleware.CORS)
	assert.Equal(t, []string{"http://localhost:4200"}, cfg.Middleware.CORS.AllowedOrigins)

	table, err := cfg.RoleTable()
	require.NoError(t, err)
	auths, err := table.Authorities(models.RoleSuperAdmin)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"read", "update", "create", "delete"}, auths)
}
