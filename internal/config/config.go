package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/victorgomez09/supportportal/internal/auth/models"
	"github.com/victorgomez09/supportportal/internal/auth/roles"
	"github.com/victorgomez09/supportportal/internal/auth/token"
	"github.com/victorgomez09/supportportal/internal/mail"
)

// Environment variables that override values from the config file.
const (
	EnvJWTSecret    = "SUPPORTPORTAL_JWT_SECRET"
	EnvSMTPPassword = "SUPPORTPORTAL_SMTP_PASSWORD"
	EnvDBPath       = "SUPPORTPORTAL_DB_PATH"
)

// Config is the root of config.yaml.
type Config struct {
	Server     Server              `yaml:"server"`     // HTTP listener settings.
	Database   Database            `yaml:"database"`   // Account store settings.
	Auth       Auth                `yaml:"auth"`       // Token and login-attempt settings.
	Roles      map[string][]string `yaml:"roles"`      // Role to authority table. Defaults to the stock table.
	Mail       Mail                `yaml:"mail"`       // Outbound mail settings.
	Middleware Middleware          `yaml:"middleware"` // Global HTTP middleware.
}

type Server struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	TLS             *TLS          `yaml:"tls"`
	Insecure        bool          `yaml:"insecure"`    // Allows plain HTTP when TLS is not configured.
	AllowedIPs      []string      `yaml:"allowed_ips"` // Optional client allow list (IPs or CIDRs).
}

type TLS struct {
	Enabled       bool          `yaml:"enabled"`
	CertFile      string        `yaml:"cert_file"`
	KeyFile       string        `yaml:"key_file"`
	ExpiryWarning time.Duration `yaml:"expiry_warning"` // Health degrades when the certificate expires sooner.
}

type Database struct {
	Path        string        `yaml:"path"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

type Auth struct {
	JWTSecret            string        `yaml:"jwt_secret"`
	TokenTTL             time.Duration `yaml:"token_ttl"`
	Issuer               string        `yaml:"issuer"`
	Audience             string        `yaml:"audience"`
	TokenHeader          string        `yaml:"token_header"`
	MaxLoginAttempts     int           `yaml:"max_login_attempts"`
	AttemptWindow        time.Duration `yaml:"attempt_window"`
	AttemptSweepInterval time.Duration `yaml:"attempt_sweep_interval"`
	AttemptShards        int           `yaml:"attempt_shards"`
	BcryptCost           int           `yaml:"bcrypt_cost"`
	PasswordLength       int           `yaml:"password_length"`
}

type Mail struct {
	Enabled      bool          `yaml:"enabled"` // When false messages are logged without their body.
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	From         string        `yaml:"from"`
	Subject      string        `yaml:"subject"`
	TLSPolicy    string        `yaml:"tls_policy"` // mandatory, opportunistic or none
	Workers      int           `yaml:"workers"`
	QueueSize    int           `yaml:"queue_size"`
	SendTimeout  time.Duration `yaml:"send_timeout"`
	ResponseWait time.Duration `yaml:"response_wait"` // How long a request waits for the delivery outcome.
	Breaker      Breaker       `yaml:"breaker"`
}

type Breaker struct {
	MaxRequests  uint32        `yaml:"max_requests"`
	Interval     time.Duration `yaml:"interval"`
	Timeout      time.Duration `yaml:"timeout"`
	FailureRatio float64       `yaml:"failure_ratio"`
	MinRequests  uint32        `yaml:"min_requests"`
}

type Middleware struct {
	RateLimit      *RateLimit  `yaml:"rate_limit"`       // Global limit for all requests.
	LoginRateLimit *RateLimit  `yaml:"login_rate_limit"` // Per-client limit on POST /user/login.
	Security       *Security   `yaml:"security"`
	CORS           *CORS       `yaml:"cors"`
	Logging        *LogOptions `yaml:"logging"`
}

type RateLimit struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type Security struct {
	HSTS                  bool   `yaml:"hsts"`
	HSTSMaxAge            int    `yaml:"hsts_max_age"`
	HSTSIncludeSubDomains bool   `yaml:"hsts_include_subdomains"`
	HSTSPreload           bool   `yaml:"hsts_preload"`
	FrameOptions          string `yaml:"frame_options"`
	ContentTypeOptions    bool   `yaml:"content_type_options"`
	XSSProtection         bool   `yaml:"xss_protection"`
}

type CORS struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	ExposedHeaders   []string `yaml:"exposed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
	MaxAge           int      `yaml:"max_age"`
}

type LogOptions struct {
	Headers      bool     `yaml:"headers"`
	QueryParams  bool     `yaml:"query_params"`
	ExcludePaths []string `yaml:"exclude_paths"`
}

// Defaults returns a configuration with every default applied and no secret.
func Defaults() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// Load reads path, applies defaults and environment overrides, then validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML strictly; unknown keys are errors.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.ApplyDefaults()
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) ApplyDefaults() {
	s := &cfg.Server
	if s.Port == 0 {
		s.Port = 8081
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = 15 * time.Second
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = 30 * time.Second
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = 60 * time.Second
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = 15 * time.Second
	}
	if s.TLS != nil && s.TLS.ExpiryWarning == 0 {
		s.TLS.ExpiryWarning = 30 * 24 * time.Hour
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "supportportal.db"
	}
	if cfg.Database.BusyTimeout == 0 {
		cfg.Database.BusyTimeout = 5 * time.Second
	}

	a := &cfg.Auth
	if a.TokenTTL == 0 {
		a.TokenTTL = token.DefaultTTL
	}
	if a.Issuer == "" {
		a.Issuer = "Get Arrays, LLC"
	}
	if a.Audience == "" {
		a.Audience = "User Management Portal"
	}
	if a.TokenHeader == "" {
		a.TokenHeader = "JWT-Token"
	}
	if a.MaxLoginAttempts == 0 {
		a.MaxLoginAttempts = 5
	}
	if a.AttemptWindow == 0 {
		a.AttemptWindow = 15 * time.Minute
	}
	if a.AttemptSweepInterval == 0 {
		a.AttemptSweepInterval = time.Minute
	}
	if a.AttemptShards == 0 {
		a.AttemptShards = 32
	}
	if a.BcryptCost == 0 {
		a.BcryptCost = 10
	}
	if a.PasswordLength == 0 {
		a.PasswordLength = 10
	}

	if len(cfg.Roles) == 0 {
		cfg.Roles = make(map[string][]string)
		for role, authorities := range roles.DefaultMapping() {
			cfg.Roles[string(role)] = authorities
		}
	}

	m := &cfg.Mail
	if m.Port == 0 {
		m.Port = 587
	}
	if m.Subject == "" {
		m.Subject = "Support Portal - New Password"
	}
	if m.TLSPolicy == "" {
		m.TLSPolicy = "mandatory"
	}
	if m.Workers == 0 {
		m.Workers = 2
	}
	if m.QueueSize == 0 {
		m.QueueSize = 100
	}
	if m.SendTimeout == 0 {
		m.SendTimeout = 30 * time.Second
	}
	if m.ResponseWait == 0 {
		m.ResponseWait = 3 * time.Second
	}

	if cfg.Middleware.LoginRateLimit == nil {
		cfg.Middleware.LoginRateLimit = &RateLimit{RequestsPerSecond: 1, Burst: 5}
	}
}

// ApplyEnv overrides secrets and the database path from the environment.
func (cfg *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvJWTSecret); ok && v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v, ok := lookup(EnvSMTPPassword); ok && v != "" {
		cfg.Mail.Password = v
	}
	if v, ok := lookup(EnvDBPath); ok && v != "" {
		cfg.Database.Path = v
	}
}

// RoleTable builds the immutable role table from the roles section.
func (cfg *Config) RoleTable() (*roles.Table, error) {
	mapping := make(map[models.Role][]string, len(cfg.Roles))
	for name, authorities := range cfg.Roles {
		role := models.Role(strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "ROLE_"))
		if _, dup := mapping[role]; dup {
			return nil, fmt.Errorf("role %s listed more than once", role)
		}
		mapping[role] = authorities
	}
	return roles.NewTable(mapping)
}

// Validate reports every problem found, joined into one error.
func (cfg *Config) Validate() error {
	var errs []error

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", cfg.Server.Port))
	}
	if t := cfg.Server.TLS; t != nil && t.Enabled && (t.CertFile == "" || t.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires cert_file and key_file"))
	}
	if !cfg.TLSEnabled() && !cfg.Server.Insecure {
		errs = append(errs, errors.New("server.tls must be enabled unless server.insecure is set"))
	}

	if cfg.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}

	a := cfg.Auth
	if a.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("auth.jwt_secret is required (or set %s)", EnvJWTSecret))
	} else if len(a.JWTSecret) < token.MinSecretLength {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least %d bytes", token.MinSecretLength))
	}
	if a.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if a.MaxLoginAttempts < 1 {
		errs = append(errs, errors.New("auth.max_login_attempts must be at least 1"))
	}
	if a.AttemptWindow <= 0 {
		errs = append(errs, errors.New("auth.attempt_window must be positive"))
	}
	if a.AttemptShards < 1 {
		errs = append(errs, errors.New("auth.attempt_shards must be at least 1"))
	}
	if a.BcryptCost < 4 || a.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("auth.bcrypt_cost %d out of range 4..31", a.BcryptCost))
	}
	if a.PasswordLength < 8 || a.PasswordLength > 64 {
		errs = append(errs, fmt.Errorf("auth.password_length %d out of range 8..64", a.PasswordLength))
	}

	if _, err := cfg.RoleTable(); err != nil {
		errs = append(errs, fmt.Errorf("roles: %w", err))
	}

	if _, err := mail.ParseTLSPolicy(cfg.Mail.TLSPolicy); err != nil {
		errs = append(errs, fmt.Errorf("mail.tls_policy: %w", err))
	}
	if cfg.Mail.Enabled {
		if cfg.Mail.Host == "" {
			errs = append(errs, errors.New("mail.host is required when mail is enabled"))
		}
		if cfg.Mail.From == "" {
			errs = append(errs, errors.New("mail.from is required when mail is enabled"))
		}
	}
	if cfg.Mail.ResponseWait < 0 {
		errs = append(errs, errors.New("mail.response_wait must not be negative"))
	}

	for _, rl := range []*RateLimit{cfg.Middleware.RateLimit, cfg.Middleware.LoginRateLimit} {
		if rl != nil && (rl.RequestsPerSecond < 0 || rl.Burst < 0) {
			errs = append(errs, errors.New("middleware rate limits must not be negative"))
			break
		}
	}

	return errors.Join(errs...)
}

// TLSEnabled reports whether the listener serves HTTPS.
func (cfg *Config) TLSEnabled() bool {
	return cfg.Server.TLS != nil && cfg.Server.TLS.Enabled
}

// Addr is the listen address.
func (cfg *Config) Addr() string {
	return fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
}
