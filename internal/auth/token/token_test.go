package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierr "github.com/victorgomez09/supportportal/internal/auth"
	"github.com/victorgomez09/supportportal/internal/auth/models"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTestService(t *testing.T, c *clock) *Service {
	t.Helper()
	svc, err := NewService(Config{
		Secret:   testSecret,
		TTL:      time.Hour,
		Issuer:   "Get Arrays, LLC",
		Audience: "User Management Portal",
		Clock:    c.Now,
	})
	require.NoError(t, err)
	return svc
}

func testIdentity() *models.Identity {
	return &models.Identity{
		Username:    "jdoe",
		Role:        models.RoleAdmin,
		Authorities: []string{"read", "update", "create"},
	}
}

func TestIssueValidateRoundTrip(t *testing.T) {
	c := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := newTestService(t, c)

	signed, err := svc.Issue(testIdentity())
	require.NoError(t, err)

	claims, err := svc.Validate(signed)
	require.NoError(t, err)
	assert.Equal(t, "jdoe", claims.Subject)
	assert.Equal(t, []string{"read", "update", "create"}, claims.Authorities)
	assert.True(t, claims.IssuedAt.Equal(c.now))
	assert.True(t, claims.ExpiresAt.Equal(c.now.Add(time.Hour)))

	subject, err := svc.SubjectOf(signed)
	require.NoError(t, err)
	assert.Equal(t, "jdoe", subject)
	assert.True(t, svc.IsValid(signed))
}

func TestValidateExpiry(t *testing.T) {
	c := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := newTestService(t, c)

	signed, err := svc.Issue(testIdentity())
	require.NoError(t, err)

	c.now = c.now.Add(time.Hour - time.Second)
	assert.True(t, svc.IsValid(signed))

	c.now = c.now.Add(2 * time.Second)
	_, err = svc.Validate(signed)
	assert.ErrorIs(t, err, apierr.ErrTokenExpired)
	assert.ErrorIs(t, err, apierr.ErrInvalidToken)

	outcome, msg := apierr.Classify(err)
	assert.Equal(t, apierr.Unauthenticated, outcome)
	assert.Equal(t, "unauthenticated", msg)
}

func TestExpiryBoundaryIsExclusive(t *testing.T) {
	c := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := newTestService(t, c)

	signed, err := svc.Issue(testIdentity())
	require.NoError(t, err)

	c.now = c.now.Add(time.Hour)
	_, err = svc.Validate(signed)
	assert.ErrorIs(t, err, apierr.ErrTokenExpired)
}

func TestSignatureCheckedBeforeExpiry(t *testing.T) {
	c := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	other, err := NewService(Config{Secret: []byte("another-secret-another-secret-xx"), TTL: time.Hour, Clock: c.Now})
	require.NoError(t, err)

	forged, err := other.Issue(testIdentity())
	require.NoError(t, err)

	svc := newTestService(t, c)
	c.now = c.now.Add(48 * time.Hour)

	_, err = svc.Validate(forged)
	assert.ErrorIs(t, err, apierr.ErrTokenSignatureInvalid)
	assert.NotErrorIs(t, err, apierr.ErrTokenExpired)
}

func TestTamperedPayloadIsRejected(t *testing.T) {
	c := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := newTestService(t, c)

	user := testIdentity()
	user.Authorities = []string{"read"}
	signed, err := svc.Issue(user)
	require.NoError(t, err)

	elevated := testIdentity()
	elevated.Authorities = []string{"read", "update", "create", "delete"}
	other, err := svc.Issue(elevated)
	require.NoError(t, err)

	// Graft the elevated payload onto the original signature.
	parts := strings.Split(signed, ".")
	otherParts := strings.Split(other, ".")
	grafted := parts[0] + "." + otherParts[1] + "." + parts[2]

	_, err = svc.Validate(grafted)
	assert.ErrorIs(t, err, apierr.ErrTokenSignatureInvalid)
}

func TestMalformedTokens(t *testing.T) {
	c := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := newTestService(t, c)

	for _, raw := range []string{"", "   ", "abc", "a.b.c", "Bearer"} {
		_, err := svc.Validate(raw)
		assert.ErrorIs(t, err, apierr.ErrTokenMalformed, raw)
	}
}

func TestRejectsOtherAlgorithms(t *testing.T) {
	c := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := newTestService(t, c)

	c512 := claims{
		Authorities: []string{"read"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "jdoe",
			IssuedAt:  jwt.NewNumericDate(c.now),
			ExpiresAt: jwt.NewNumericDate(c.now.Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, c512).SignedString(testSecret)
	require.NoError(t, err)

	_, err = svc.Validate(signed)
	assert.ErrorIs(t, err, apierr.ErrTokenSignatureInvalid)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, c512).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.Validate(unsigned)
	assert.ErrorIs(t, err, apierr.ErrInvalidToken)
}

func TestStructuralChecks(t *testing.T) {
	c := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := newTestService(t, c)

	sign := func(cl jwt.Claims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, cl).SignedString(testSecret)
		require.NoError(t, err)
		return s
	}

	valid := jwt.RegisteredClaims{
		Subject:   "jdoe",
		Issuer:    "Get Arrays, LLC",
		Audience:  jwt.ClaimStrings{"User Management Portal"},
		IssuedAt:  jwt.NewNumericDate(c.now),
		ExpiresAt: jwt.NewNumericDate(c.now.Add(time.Hour)),
	}

	noAuthorities := sign(valid)
	_, err := svc.Validate(noAuthorities)
	assert.ErrorIs(t, err, apierr.ErrTokenMalformed)

	noSubject := valid
	noSubject.Subject = ""
	_, err = svc.Validate(sign(claims{Authorities: []string{"read"}, RegisteredClaims: noSubject}))
	assert.ErrorIs(t, err, apierr.ErrTokenMalformed)

	noExpiry := valid
	noExpiry.ExpiresAt = nil
	_, err = svc.Validate(sign(claims{Authorities: []string{"read"}, RegisteredClaims: noExpiry}))
	assert.ErrorIs(t, err, apierr.ErrTokenMalformed)

	wrongIssuer := valid
	wrongIssuer.Issuer = "someone else"
	_, err = svc.Validate(sign(claims{Authorities: []string{"read"}, RegisteredClaims: wrongIssuer}))
	assert.ErrorIs(t, err, apierr.ErrTokenMalformed)

	wrongAudience := valid
	wrongAudience.Audience = jwt.ClaimStrings{"another portal"}
	_, err = svc.Validate(sign(claims{Authorities: []string{"read"}, RegisteredClaims: wrongAudience}))
	assert.ErrorIs(t, err, apierr.ErrTokenMalformed)

	empty := sign(claims{Authorities: []string{}, RegisteredClaims: valid})
	parsed, err := svc.Validate(empty)
	require.NoError(t, err)
	assert.Empty(t, parsed.Authorities)
}

func TestNewServiceRequiresSecret(t *testing.T) {
	_, err := NewService(Config{})
	assert.Error(t, err)

	svc, err := NewService(Config{Secret: testSecret})
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, svc.TTL())
}

func TestSecretSwapInvalidatesTokens(t *testing.T) {
	c := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := newTestService(t, c)
	signed, err := svc.Issue(testIdentity())
	require.NoError(t, err)

	rotated, err := NewService(Config{Secret: []byte("rotated-secret-rotated-secret-xx"), TTL: time.Hour, Clock: c.Now})
	require.NoError(t, err)
	assert.False(t, rotated.IsValid(signed))
}
