package passwords

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/victorgomez09/supportportal/internal/auth/validation"
)

func TestBcryptEncoder(t *testing.T) {
	enc := NewBcryptEncoder(bcrypt.MinCost)

	hash, err := enc.Encode("Xq7mPz2kLw")
	require.NoError(t, err)
	assert.NotEqual(t, "Xq7mPz2kLw", hash)
	assert.True(t, enc.Matches("Xq7mPz2kLw", hash))
	assert.False(t, enc.Matches("wrong", hash))
	assert.False(t, enc.Matches("Xq7mPz2kLw", "not-a-hash"))
}

func TestGeneratedPasswordsSatisfyPolicy(t *testing.T) {
	gen := NewGenerator(10)
	policy := validation.GeneratedPasswordPolicy(10)

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		pw, err := gen.Password("jdoe")
		require.NoError(t, err)
		assert.Len(t, pw, 10)
		assert.NoError(t, policy.Check(pw, "jdoe"))
		seen[pw] = struct{}{}
	}
	assert.Greater(t, len(seen), 45)
}

func TestUserID(t *testing.T) {
	gen := NewGenerator(DefaultLength)

	id, err := gen.UserID()
	require.NoError(t, err)
	assert.Len(t, id, UserIDLength)
	for _, r := range id {
		assert.True(t, r >= '0' && r <= '9')
	}
}
