package uniqueness

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierr "github.com/victorgomez09/supportportal/internal/auth"
	"github.com/victorgomez09/supportportal/internal/auth/models"
)

type memoryLookup struct {
	users []*models.Identity
	err   error
}

func (m *memoryLookup) FindByUsername(_ context.Context, username string) (*models.Identity, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.users {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return nil, apierr.ErrIdentityNotFound
}

func (m *memoryLookup) FindByEmail(_ context.Context, email string) (*models.Identity, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, apierr.ErrIdentityNotFound
}

func fixture() *memoryLookup {
	return &memoryLookup{users: []*models.Identity{
		{ID: 1, Username: "alice", Email: "alice@x.com"},
		{ID: 2, Username: "bob", Email: "bob@x.com"},
	}}
}

func TestRegistration(t *testing.T) {
	v := NewValidator(fixture())
	ctx := context.Background()

	got, err := v.Validate(ctx, "", "carol", "carol@x.com")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = v.Validate(ctx, "", "alice", "new@x.com")
	assert.ErrorIs(t, err, apierr.ErrUsernameTaken)

	_, err = v.Validate(ctx, "", "carol", "bob@x.com")
	assert.ErrorIs(t, err, apierr.ErrEmailTaken)

	// Username is reported before email when both collide.
	_, err = v.Validate(ctx, "", "alice", "bob@x.com")
	assert.ErrorIs(t, err, apierr.ErrUsernameTaken)
}

func TestUpdate(t *testing.T) {
	v := NewValidator(fixture())
	ctx := context.Background()

	got, err := v.Validate(ctx, "alice", "alice", "alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)

	got, err = v.Validate(ctx, "alice", "alicia", "alicia@x.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)

	_, err = v.Validate(ctx, "alice", "alice", "bob@x.com")
	assert.ErrorIs(t, err, apierr.ErrEmailTaken)

	_, err = v.Validate(ctx, "alice", "bob", "alice@x.com")
	assert.ErrorIs(t, err, apierr.ErrUsernameTaken)

	_, err = v.Validate(ctx, "ghost", "ghost", "ghost@x.com")
	assert.ErrorIs(t, err, apierr.ErrIdentityNotFound)
}

func TestLookupFailurePropagates(t *testing.T) {
	boom := errors.New("disk on fire")
	v := NewValidator(&memoryLookup{err: boom})

	_, err := v.Validate(context.Background(), "", "carol", "carol@x.com")
	assert.ErrorIs(t, err, boom)
}
