// Package uniqueness decides whether a username and email pair may be committed.
//
// The checks here are a fast path that produces friendly errors. The account
// store enforces the same rule with unique constraints, which is what actually
// protects concurrent writers.
package uniqueness

import (
	"context"
	"errors"
	"strings"

	apierr "github.com/victorgomez09/supportportal/internal/auth"
	"github.com/victorgomez09/supportportal/internal/auth/models"
)

// Lookup is the read side of the account repository used by the validator.
type Lookup interface {
	FindByUsername(ctx context.Context, username string) (*models.Identity, error)
	FindByEmail(ctx context.Context, email string) (*models.Identity, error)
}

type Validator struct {
	accounts Lookup
}

func NewValidator(accounts Lookup) *Validator {
	return &Validator{accounts: accounts}
}

// Validate checks newUsername and newEmail against existing identities.
//
// With an empty currentUsername the pair is for a new registration and the result
// is nil on success. Otherwise the identity owning currentUsername is resolved and
// returned, and the pair may only collide with that identity.
func (v *Validator) Validate(ctx context.Context, currentUsername, newUsername, newEmail string) (*models.Identity, error) {
	byUsername, err := v.find(ctx, v.accounts.FindByUsername, newUsername)
	if err != nil {
		return nil, err
	}
	byEmail, err := v.find(ctx, v.accounts.FindByEmail, newEmail)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(currentUsername) == "" {
		if byUsername != nil {
			return nil, apierr.ErrUsernameTaken
		}
		if byEmail != nil {
			return nil, apierr.ErrEmailTaken
		}
		return nil, nil
	}

	current, err := v.find(ctx, v.accounts.FindByUsername, currentUsername)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, apierr.ErrIdentityNotFound
	}
	if byUsername != nil && byUsername.ID != current.ID {
		return nil, apierr.ErrUsernameTaken
	}
	if byEmail != nil && byEmail.ID != current.ID {
		return nil, apierr.ErrEmailTaken
	}

	return current, nil
}

// find turns a not-found result into a nil identity.
func (v *Validator) find(ctx context.Context, lookup func(context.Context, string) (*models.Identity, error), key string) (*models.Identity, error) {
	if key == "" {
		return nil, nil
	}
	identity, err := lookup(ctx, key)
	if errors.Is(err, apierr.ErrIdentityNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return identity, nil
}
