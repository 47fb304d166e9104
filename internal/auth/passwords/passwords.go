// Package passwords hashes credentials and generates the random passwords and
// external identifiers handed to new accounts.
package passwords

import (
	"errors"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/victorgomez09/supportportal/internal/auth/validation"
)

const (
	alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	digits       = "0123456789"

	DefaultLength       = 10
	UserIDLength        = 10
	maxGenerateAttempts = 64
)

// Encoder is a one-way password encoder.
type Encoder interface {
	Encode(raw string) (string, error)
	Matches(raw, encoded string) bool
}

// BcryptEncoder implements Encoder with bcrypt.
type BcryptEncoder struct {
	cost int
}

func NewBcryptEncoder(cost int) *BcryptEncoder {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptEncoder{cost: cost}
}

func (e *BcryptEncoder) Encode(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), e.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (e *BcryptEncoder) Matches(raw, encoded string) bool {
	return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(raw)) == nil
}

// Generator produces random passwords that satisfy a policy.
type Generator struct {
	length int
	policy validation.PasswordPolicy
}

func NewGenerator(length int) *Generator {
	if length < 8 {
		length = DefaultLength
	}
	return &Generator{length: length, policy: validation.GeneratedPasswordPolicy(length)}
}

// Password returns a random alphanumeric password that passes the policy for username.
func (g *Generator) Password(username string) (string, error) {
	for i := 0; i < maxGenerateAttempts; i++ {
		candidate, err := gonanoid.Generate(alphanumeric, g.length)
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		if g.policy.Check(candidate, username) == nil {
			return candidate, nil
		}
	}
	return "", errors.New("generate password: no candidate satisfied the policy")
}

// UserID returns a random numeric external identifier.
func (g *Generator) UserID() (string, error) {
	id, err := gonanoid.Generate(digits, UserIDLength)
	if err != nil {
		return "", fmt.Errorf("generate user id: %w", err)
	}
	return id, nil
}
