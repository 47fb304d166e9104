package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	apierr "github.com/victorgomez09/supportportal/internal/auth"
	"github.com/victorgomez09/supportportal/internal/auth/models"
	"github.com/victorgomez09/supportportal/internal/auth/passwords"
	"github.com/victorgomez09/supportportal/internal/auth/roles"
	"github.com/victorgomez09/supportportal/internal/auth/uniqueness"
	"github.com/victorgomez09/supportportal/internal/mail"
)

// AccountRepository is the durable store of identities.
type AccountRepository interface {
	FindByUsername(ctx context.Context, username string) (*models.Identity, error)
	FindByEmail(ctx context.Context, email string) (*models.Identity, error)
	List(ctx context.Context) ([]models.Identity, error)
	Create(ctx context.Context, identity *models.Identity) error
	Update(ctx context.Context, identity *models.Identity) error
	SetLocked(ctx context.Context, id int64, locked bool) error
	SetPasswordHash(ctx context.Context, id int64, hash string) error
	RecordLogin(ctx context.Context, id int64, at time.Time, unlock bool) (*models.Identity, error)
	Delete(ctx context.Context, username string) error
}

// LoginAttempts counts failed logins per key.
type LoginAttempts interface {
	RecordFailure(key string)
	HasExceededMaxAttempts(key string) bool
	Failures(key string) int
	Evict(key string)
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(identity *models.Identity) (string, error)
}

// Mailer queues outbound mail.
type Mailer interface {
	Dispatch(msg mail.Message) *mail.Delivery
}

// AuthConfig holds the tunables of the authentication service.
type AuthConfig struct {
	PasswordLength int              // Length of generated passwords.
	MailSubject    string           // Subject of the password email.
	Clock          func() time.Time // Source of login timestamps.
}

// AuthService implements login, registration and account management on top of
// the account store, the attempt tracker and the token service.
type AuthService struct {
	accounts   AccountRepository
	attempts   LoginAttempts
	tokens     TokenIssuer
	roles      *roles.Table
	encoder    passwords.Encoder
	generator  *passwords.Generator
	uniqueness *uniqueness.Validator
	mailer     Mailer
	config     AuthConfig
	logger     *zap.Logger
}

// Dependencies groups the collaborators of AuthService.
type Dependencies struct {
	Accounts AccountRepository
	Attempts LoginAttempts
	Tokens   TokenIssuer
	Roles    *roles.Table
	Encoder  passwords.Encoder
	Mailer   Mailer
	Logger   *zap.Logger
}

func NewAuthService(deps Dependencies, config AuthConfig) *AuthService {
	if config.PasswordLength == 0 {
		config.PasswordLength = passwords.DefaultLength
	}
	if config.MailSubject == "" {
		config.MailSubject = "Support Portal - New Password"
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if deps.Roles == nil {
		deps.Roles = roles.Default()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return &AuthService{
		accounts:   deps.Accounts,
		attempts:   deps.Attempts,
		tokens:     deps.Tokens,
		roles:      deps.Roles,
		encoder:    deps.Encoder,
		generator:  passwords.NewGenerator(config.PasswordLength),
		uniqueness: uniqueness.NewValidator(deps.Accounts),
		mailer:     deps.Mailer,
		config:     config,
		logger:     deps.Logger,
	}
}

// attemptKey normalizes usernames so case variants share one attempt record.
func attemptKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Login authenticates username and password and returns the identity with a fresh token.
//
// A locked identity with live failure history is rejected and its history cleared,
// so the next correct attempt unlocks it. Every failure reason is logged but callers
// only see the sentinel error, which the API layer collapses further.
func (s *AuthService) Login(ctx context.Context, username, password string) (*models.Identity, string, error) {
	key := attemptKey(username)

	identity, err := s.accounts.FindByUsername(ctx, username)
	if errors.Is(err, apierr.ErrIdentityNotFound) {
		s.attempts.RecordFailure(key)
		s.rejectLogin(key, apierr.ErrInvalidCredentials, "unknown username")
		return nil, "", apierr.ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", err
	}

	if identity.IsLocked {
		if s.attempts.Failures(key) > 0 {
			s.attempts.Evict(key)
			s.rejectLogin(key, apierr.ErrAccountLocked, "locked with recent failures")
			return nil, "", apierr.ErrAccountLocked
		}
	} else if s.attempts.HasExceededMaxAttempts(key) {
		if err := s.lock(ctx, identity); err != nil {
			return nil, "", err
		}
		s.rejectLogin(key, apierr.ErrAccountLocked, "attempt threshold reached")
		return nil, "", apierr.ErrAccountLocked
	}

	if !identity.IsActive {
		s.rejectLogin(key, apierr.ErrAccountInactive, "inactive account")
		return nil, "", apierr.ErrAccountInactive
	}

	if !s.encoder.Matches(password, identity.PasswordHash) {
		s.attempts.RecordFailure(key)
		if !identity.IsLocked && s.attempts.HasExceededMaxAttempts(key) {
			if err := s.lock(ctx, identity); err != nil {
				return nil, "", err
			}
		}
		s.rejectLogin(key, apierr.ErrInvalidCredentials, "wrong password")
		return nil, "", apierr.ErrInvalidCredentials
	}

	s.attempts.Evict(key)
	unlock := identity.IsLocked
	stored, err := s.accounts.RecordLogin(ctx, identity.ID, s.config.Clock(), unlock)
	if err != nil {
		return nil, "", fmt.Errorf("record login: %w", err)
	}
	// Flags changed by a write that landed after the lookup still apply.
	if !stored.IsActive {
		s.rejectLogin(key, apierr.ErrAccountInactive, "deactivated during login")
		return nil, "", apierr.ErrAccountInactive
	}
	if stored.IsLocked {
		s.rejectLogin(key, apierr.ErrAccountLocked, "locked during login")
		return nil, "", apierr.ErrAccountLocked
	}
	if unlock {
		s.logger.Info("Account unlocked by successful login", zap.String("username", stored.Username))
	}
	identity = stored

	token, err := s.tokens.Issue(identity)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}

	s.logger.Info("Login succeeded", zap.String("username", identity.Username))
	return identity, token, nil
}

func (s *AuthService) lock(ctx context.Context, identity *models.Identity) error {
	if err := s.accounts.SetLocked(ctx, identity.ID, true); err != nil {
		return fmt.Errorf("lock account: %w", err)
	}
	identity.IsLocked = true
	s.logger.Warn("Account locked after repeated login failures", zap.String("username", identity.Username))
	return nil
}

func (s *AuthService) rejectLogin(key string, err error, detail string) {
	s.logger.Info("Login rejected",
		zap.String("username", key),
		zap.String("reason", apierr.Reason(err)),
		zap.String("detail", detail))
}

// Register creates a USER identity with a generated password that is only
// revealed through email. The returned delivery reports the mail outcome.
func (s *AuthService) Register(ctx context.Context, profile models.Profile) (*models.Identity, *mail.Delivery, error) {
	return s.create(ctx, models.AccountChanges{
		Profile:  profile,
		Role:     models.RoleUser,
		IsActive: true,
	})
}

// AddUser creates an identity with caller-chosen role and flags.
func (s *AuthService) AddUser(ctx context.Context, changes models.AccountChanges) (*models.Identity, *mail.Delivery, error) {
	return s.create(ctx, changes)
}

func (s *AuthService) create(ctx context.Context, changes models.AccountChanges) (*models.Identity, *mail.Delivery, error) {
	authorities, err := s.roles.Authorities(changes.Role)
	if err != nil {
		return nil, nil, err
	}

	if _, err := s.uniqueness.Validate(ctx, "", changes.Username, changes.Email); err != nil {
		return nil, nil, err
	}

	password, err := s.generator.Password(changes.Username)
	if err != nil {
		return nil, nil, err
	}
	userID, err := s.generator.UserID()
	if err != nil {
		return nil, nil, err
	}
	hash, err := s.encoder.Encode(password)
	if err != nil {
		return nil, nil, err
	}

	identity := &models.Identity{
		UserID:       userID,
		FirstName:    changes.FirstName,
		LastName:     changes.LastName,
		Username:     changes.Username,
		Email:        changes.Email,
		PasswordHash: hash,
		Role:         changes.Role,
		Authorities:  authorities,
		IsActive:     changes.IsActive,
		IsLocked:     changes.IsLocked,
		JoinDate:     s.config.Clock(),
	}

	// The store's unique constraints decide races the check above cannot see.
	if err := s.accounts.Create(ctx, identity); err != nil {
		return nil, nil, err
	}

	s.logger.Info("Account created",
		zap.String("username", identity.Username),
		zap.String("user_id", identity.UserID),
		zap.String("role", string(identity.Role)))

	delivery := s.mailer.Dispatch(mail.PasswordMessage(identity.Email, s.config.MailSubject, identity.FirstName, password))
	return identity, delivery, nil
}

// Update applies changes to the identity currently named currentUsername.
func (s *AuthService) Update(ctx context.Context, currentUsername string, changes models.AccountChanges) (*models.Identity, error) {
	if strings.TrimSpace(currentUsername) == "" {
		return nil, apierr.ErrIdentityNotFound
	}

	authorities, err := s.roles.Authorities(changes.Role)
	if err != nil {
		return nil, err
	}

	identity, err := s.uniqueness.Validate(ctx, currentUsername, changes.Username, changes.Email)
	if err != nil {
		return nil, err
	}

	wasLocked := identity.IsLocked
	identity.FirstName = changes.FirstName
	identity.LastName = changes.LastName
	identity.Username = changes.Username
	identity.Email = changes.Email
	identity.Role = changes.Role
	identity.Authorities = authorities
	identity.IsActive = changes.IsActive
	identity.IsLocked = changes.IsLocked

	if err := s.accounts.Update(ctx, identity); err != nil {
		return nil, err
	}

	if wasLocked && !identity.IsLocked {
		s.attempts.Evict(attemptKey(currentUsername))
		s.attempts.Evict(attemptKey(identity.Username))
		s.logger.Info("Account unlocked by update", zap.String("username", identity.Username))
	}

	return identity, nil
}

// ResetPassword assigns a new generated password to the identity owning email
// and mails it.
func (s *AuthService) ResetPassword(ctx context.Context, email string) (*mail.Delivery, error) {
	identity, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	password, err := s.generator.Password(identity.Username)
	if err != nil {
		return nil, err
	}
	hash, err := s.encoder.Encode(password)
	if err != nil {
		return nil, err
	}

	if err := s.accounts.SetPasswordHash(ctx, identity.ID, hash); err != nil {
		return nil, err
	}

	s.logger.Info("Password reset", zap.String("username", identity.Username))
	return s.mailer.Dispatch(mail.PasswordMessage(identity.Email, s.config.MailSubject, identity.FirstName, password)), nil
}

// DeleteUser removes the identity owning username along with its attempt history.
func (s *AuthService) DeleteUser(ctx context.Context, username string) error {
	if err := s.accounts.Delete(ctx, username); err != nil {
		return err
	}
	s.attempts.Evict(attemptKey(username))
	s.logger.Info("Account deleted", zap.String("username", username))
	return nil
}

func (s *AuthService) FindUser(ctx context.Context, username string) (*models.Identity, error) {
	return s.accounts.FindByUsername(ctx, username)
}

func (s *AuthService) ListUsers(ctx context.Context) ([]models.Identity, error) {
	return s.accounts.List(ctx)
}
