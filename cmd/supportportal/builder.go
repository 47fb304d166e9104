package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/victorgomez09/supportportal/internal/auth/attempts"
	"github.com/victorgomez09/supportportal/internal/auth/database"
	"github.com/victorgomez09/supportportal/internal/auth/handlers"
	authmw "github.com/victorgomez09/supportportal/internal/auth/middleware"
	"github.com/victorgomez09/supportportal/internal/auth/passwords"
	"github.com/victorgomez09/supportportal/internal/auth/service"
	"github.com/victorgomez09/supportportal/internal/auth/token"
	"github.com/victorgomez09/supportportal/internal/config"
	"github.com/victorgomez09/supportportal/internal/health"
	"github.com/victorgomez09/supportportal/internal/logger"
	"github.com/victorgomez09/supportportal/internal/mail"
	"github.com/victorgomez09/supportportal/internal/middleware"
	"github.com/victorgomez09/supportportal/internal/server"
	"github.com/victorgomez09/supportportal/internal/shutdown"
	"github.com/victorgomez09/supportportal/pkg/trace"
)

// Shutdown stages, run in ascending order.
const (
	stageListener = iota
	stageWorkers
	stageStorage
)

const limiterPruneInterval = time.Minute

type ServerBuilder struct {
	config   *config.Config
	logs     *logger.Manager
	logger   *zap.Logger
	shutdown *shutdown.Manager
}

func NewServerBuilder(cfg *config.Config, logs *logger.Manager, stages *shutdown.Manager) *ServerBuilder {
	return &ServerBuilder{
		config:   cfg,
		logs:     logs,
		logger:   logs.Get(logger.RootLogger),
		shutdown: stages,
	}
}

// BuildServer constructs every component and registers its shutdown hook.
// Background loops stop when ctx ends.
func (sb *ServerBuilder) BuildServer(ctx context.Context) (*server.Server, error) {
	authLog := sb.logs.Get(logger.AuthLogger)
	httpLog := sb.logs.Get(logger.HTTPLogger)

	table, err := sb.config.RoleTable()
	if err != nil {
		return nil, fmt.Errorf("invalid role table: %w", err)
	}

	db, err := database.NewSQLiteDB(ctx, database.Options{
		Path:        sb.config.Database.Path,
		BusyTimeout: sb.config.Database.BusyTimeout,
	}, table)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	sb.shutdown.Register(stageStorage, "database", func(context.Context) error {
		return db.Close()
	})

	tokens, err := token.NewService(sb.buildTokenConfig())
	if err != nil {
		return nil, err
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	sb.shutdown.Register(stageWorkers, "background loops", func(context.Context) error {
		stopWorkers()
		return nil
	})

	tracker := attempts.NewTracker(
		attempts.WithThreshold(sb.config.Auth.MaxLoginAttempts),
		attempts.WithWindow(sb.config.Auth.AttemptWindow),
		attempts.WithShards(sb.config.Auth.AttemptShards),
		attempts.WithLogger(authLog),
	)
	go tracker.Run(workerCtx, sb.config.Auth.AttemptSweepInterval)

	sender, probe, err := sb.buildSender()
	if err != nil {
		return nil, err
	}
	dispatcher := mail.NewDispatcher(sender, mail.DispatcherConfig{
		Workers:     sb.config.Mail.Workers,
		QueueSize:   sb.config.Mail.QueueSize,
		SendTimeout: sb.config.Mail.SendTimeout,
	}, sb.logs.Get(logger.MailLogger))
	sb.shutdown.Register(stageWorkers, "mail dispatcher", dispatcher.Close)

	users := service.NewAuthService(service.Dependencies{
		Accounts: db,
		Attempts: tracker,
		Tokens:   tokens,
		Roles:    table,
		Encoder:  passwords.NewBcryptEncoder(sb.config.Auth.BcryptCost),
		Mailer:   dispatcher,
		Logger:   authLog,
	}, service.AuthConfig{
		PasswordLength: sb.config.Auth.PasswordLength,
		MailSubject:    sb.config.Mail.Subject,
	})

	authMiddleware := authmw.NewAuthMiddleware(tokens, sb.config.Auth.TokenHeader, authLog)
	var loginLimiter *authmw.RateLimiter
	if rl := sb.config.Middleware.LoginRateLimit; rl != nil && rl.RequestsPerSecond > 0 {
		loginLimiter = authmw.NewRateLimiter(rl.RequestsPerSecond, rl.Burst)
		go loginLimiter.Run(workerCtx, limiterPruneInterval)
	}

	mux := http.NewServeMux()
	handlers.NewUserHandler(users, table, handlers.Options{
		TokenHeader:  sb.config.Auth.TokenHeader,
		ResponseWait: sb.config.Mail.ResponseWait,
	}, httpLog).Register(mux, authMiddleware, loginLimiter)

	checker := health.NewChecker(2*time.Second, sb.logger)
	checker.Register("database", true, db.Ping)
	if probe != nil {
		checker.Register("mail", false, probe)
	}
	mux.Handle("GET /health", checker.Handler())

	chain := middleware.NewChain(
		trace.WithRequestID(false),
		middleware.NewLoggingMiddleware(httpLog, sb.config.Auth.TokenHeader, sb.loggingOptions()...),
	)
	if err := chain.AddConfigured(sb.config.Server, sb.config.Middleware, sb.config.Auth.TokenHeader, httpLog); err != nil {
		return nil, fmt.Errorf("failed to configure middleware: %w", err)
	}

	srv, err := server.New(sb.config.Server, chain.Then(mux), httpLog)
	if err != nil {
		return nil, err
	}
	sb.shutdown.Register(stageListener, "http server", srv.Shutdown)
	if sb.config.TLSEnabled() {
		checker.Register("tls_certificate", false, srv.CertificateProbe(sb.config.Server.TLS.ExpiryWarning))
	}

	sb.logger.Info("Server components initialized",
		zap.Int("middlewares", chain.Len()),
		zap.Strings("loggers", sb.logs.Names()))
	return srv, nil
}

func (sb *ServerBuilder) buildTokenConfig() token.Config {
	return token.Config{
		Secret:   []byte(sb.config.Auth.JWTSecret),
		TTL:      sb.config.Auth.TokenTTL,
		Issuer:   sb.config.Auth.Issuer,
		Audience: sb.config.Auth.Audience,
	}
}

// buildSender returns the SMTP sender behind a circuit breaker, or a log-only
// sender when mail is disabled. The probe is nil for the log sender.
func (sb *ServerBuilder) buildSender() (mail.Sender, health.Probe, error) {
	mailLog := sb.logs.Get(logger.MailLogger)
	m := sb.config.Mail
	if !m.Enabled {
		mailLog.Warn("Mail delivery disabled; messages are only logged")
		return mail.NewLogSender(mailLog), nil, nil
	}

	smtp, err := mail.NewSMTPSender(mail.SMTPConfig{
		Host:      m.Host,
		Port:      m.Port,
		Username:  m.Username,
		Password:  m.Password,
		From:      m.From,
		TLSPolicy: m.TLSPolicy,
		Timeout:   m.SendTimeout,
	}, mailLog)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize smtp sender: %w", err)
	}

	breaker := mail.NewBreakerSender(smtp, mail.BreakerConfig{
		MaxRequests:  m.Breaker.MaxRequests,
		Interval:     m.Breaker.Interval,
		Timeout:      m.Breaker.Timeout,
		FailureRatio: m.Breaker.FailureRatio,
		MinRequests:  m.Breaker.MinRequests,
	}, mailLog)
	return breaker, breaker.Probe, nil
}

func (sb *ServerBuilder) loggingOptions() []middleware.LoggingOption {
	opts := sb.config.Middleware.Logging
	if opts == nil {
		return nil
	}
	return []middleware.LoggingOption{
		middleware.WithHeaders(opts.Headers),
		middleware.WithQueryParams(opts.QueryParams),
		middleware.WithExcludePaths(opts.ExcludePaths),
	}
}
