package validation

import (
	"errors"
	"strings"
	"unicode"
)

var (
	ErrPasswordTooShort = errors.New("password is too short")
	ErrPasswordTooLong  = errors.New("password is too long")
	ErrMissingUppercase = errors.New("password must contain at least one uppercase letter")
	ErrMissingLowercase = errors.New("password must contain at least one lowercase letter")
	ErrMissingNumber    = errors.New("password must contain at least one number")
	ErrContainsUsername = errors.New("password cannot contain the username")
	ErrConsecutiveChars = errors.New("password contains consecutive repeated characters")
	ErrSequentialChars  = errors.New("password contains sequential characters")
)

// PasswordPolicy is the quality bar a generated password has to meet before it is
// handed to a user.
type PasswordPolicy struct {
	MinLength           int
	MaxLength           int
	RequireUppercase    bool
	RequireLowercase    bool
	RequireNumbers      bool
	MaxRepeatingChars   int
	PreventSequential   bool
	PreventUsernamePart bool
}

// GeneratedPasswordPolicy returns the policy for alphanumeric passwords of length n.
func GeneratedPasswordPolicy(n int) PasswordPolicy {
	return PasswordPolicy{
		MinLength:           n,
		MaxLength:           128,
		RequireUppercase:    true,
		RequireLowercase:    true,
		RequireNumbers:      true,
		MaxRepeatingChars:   2,
		PreventSequential:   true,
		PreventUsernamePart: true,
	}
}

// Check returns the first rule password breaks, or nil.
func (p PasswordPolicy) Check(password, username string) error {
	if len(password) < p.MinLength {
		return ErrPasswordTooShort
	}
	if p.MaxLength > 0 && len(password) > p.MaxLength {
		return ErrPasswordTooLong
	}

	var hasUpper, hasLower, hasNumber bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		}
	}

	switch {
	case p.RequireUppercase && !hasUpper:
		return ErrMissingUppercase
	case p.RequireLowercase && !hasLower:
		return ErrMissingLowercase
	case p.RequireNumbers && !hasNumber:
		return ErrMissingNumber
	}

	if p.MaxRepeatingChars > 0 && repeats(password) > p.MaxRepeatingChars {
		return ErrConsecutiveChars
	}
	if p.PreventSequential && hasRun(password) {
		return ErrSequentialChars
	}
	if p.PreventUsernamePart && len(username) >= 3 &&
		strings.Contains(strings.ToLower(password), strings.ToLower(username)) {
		return ErrContainsUsername
	}

	return nil
}

// repeats returns the length of the longest run of one character.
func repeats(s string) int {
	longest, count := 0, 0
	var last rune
	for i, c := range s {
		if i > 0 && c == last {
			count++
		} else {
			count = 1
			last = c
		}
		if count > longest {
			longest = count
		}
	}
	return longest
}

// hasRun reports an ascending or descending run of three letters or digits, like "abc" or "321".
func hasRun(s string) bool {
	r := []rune(strings.ToLower(s))
	for i := 0; i+2 < len(r); i++ {
		a, b, c := r[i], r[i+1], r[i+2]
		if !sameClass(a, b, c) {
			continue
		}
		if (b-a == 1 && c-b == 1) || (a-b == 1 && b-c == 1) {
			return true
		}
	}
	return false
}

func sameClass(rs ...rune) bool {
	letters, digits := 0, 0
	for _, r := range rs {
		switch {
		case r >= 'a' && r <= 'z':
			letters++
		case r >= '0' && r <= '9':
			digits++
		}
	}
	return letters == len(rs) || digits == len(rs)
}
