// Package token issues and validates the signed bearer tokens handed out on login.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	apierr "github.com/victorgomez09/supportportal/internal/auth"
	"github.com/victorgomez09/supportportal/internal/auth/models"
)

const (
	DefaultTTL      = 5 * time.Hour
	MinSecretLength = 32
)

// Config holds the settings of a token Service.
type Config struct {
	Secret   []byte        // HMAC key shared by every instance.
	TTL      time.Duration // Lifetime of issued tokens.
	Issuer   string        // Optional iss claim, checked on validation when set.
	Audience string        // Optional aud claim, checked on validation when set.
	Clock    func() time.Time
}

// claims is the wire form of a token.
type claims struct {
	Authorities []string `json:"authorities"`
	jwt.RegisteredClaims
}

// Service signs tokens with HS256. It holds no mutable state.
type Service struct {
	secret   []byte
	ttl      time.Duration
	issuer   string
	audience string
	now      func() time.Time
	parser   *jwt.Parser
}

func NewService(cfg Config) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token: signing secret is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Service{
		secret:   append([]byte(nil), cfg.Secret...),
		ttl:      cfg.TTL,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		now:      cfg.Clock,
		// Time based claims are checked against the service clock below.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// TTL returns the lifetime of issued tokens.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue returns a signed token for identity carrying its username and authorities.
func (s *Service) Issue(identity *models.Identity) (string, error) {
	if identity == nil || identity.Username == "" {
		return "", errors.New("token: identity without username")
	}

	now := s.now()
	c := claims{
		Authorities: append([]string{}, identity.Authorities...),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			Issuer:    s.issuer,
		},
	}
	if s.audience != "" {
		c.Audience = jwt.ClaimStrings{s.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// Validate checks the signature, then expiry, then the shape of the claims.
// Every error it returns matches apierr.ErrInvalidToken.
func (s *Service) Validate(raw string) (*models.Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, apierr.ErrTokenMalformed
	}

	c := &claims{}
	_, err := s.parser.ParseWithClaims(raw, c, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrTokenUnverifiable) {
			return nil, apierr.ErrTokenSignatureInvalid
		}
		return nil, apierr.ErrTokenMalformed
	}

	if c.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing exp", apierr.ErrTokenMalformed)
	}
	if !s.now().Before(c.ExpiresAt.Time) {
		return nil, apierr.ErrTokenExpired
	}

	switch {
	case c.Subject == "":
		return nil, fmt.Errorf("%w: missing sub", apierr.ErrTokenMalformed)
	case c.IssuedAt == nil:
		return nil, fmt.Errorf("%w: missing iat", apierr.ErrTokenMalformed)
	case c.Authorities == nil:
		return nil, fmt.Errorf("%w: missing authorities", apierr.ErrTokenMalformed)
	case s.issuer != "" && !c.VerifyIssuer(s.issuer, true):
		return nil, fmt.Errorf("%w: issuer mismatch", apierr.ErrTokenMalformed)
	case s.audience != "" && !c.VerifyAudience(s.audience, true):
		return nil, fmt.Errorf("%w: audience mismatch", apierr.ErrTokenMalformed)
	}

	return &models.Claims{
		Subject:     c.Subject,
		Authorities: c.Authorities,
		IssuedAt:    c.IssuedAt.Time,
		ExpiresAt:   c.ExpiresAt.Time,
	}, nil
}

// SubjectOf returns the username carried by a valid token.
func (s *Service) SubjectOf(raw string) (string, error) {
	c, err := s.Validate(raw)
	if err != nil {
		return "", err
	}
	return c.Subject, nil
}

// IsValid reports whether raw passes Validate.
func (s *Service) IsValid(raw string) bool {
	_, err := s.Validate(raw)
	return err == nil
}
