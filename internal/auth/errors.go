package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrIdentityNotFound is returned when no identity matches the requested username or email.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrUsernameTaken is returned when another identity already owns the username.
	ErrUsernameTaken = errors.New("username already exists")
	// ErrEmailTaken is returned when another identity already owns the email address.
	ErrEmailTaken = errors.New("email already exists")
	// ErrInvalidCredentials is returned when a user provides incorrect authentication credentials.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned when an account is locked after excessive failed login attempts.
	ErrAccountLocked = errors.New("account is locked")
	// ErrAccountInactive is returned when an account has been deactivated.
	ErrAccountInactive = errors.New("account is inactive")
	// ErrInvalidToken is returned when a provided token is malformed, forged or expired.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrMailDeliveryFailed is returned when an outbound message could not be delivered.
	ErrMailDeliveryFailed = errors.New("mail delivery failed")
	// ErrStorageUnavailable is returned for transient storage failures.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrUnknownRole is returned when a role is not present in the role table.
	ErrUnknownRole = errors.New("unknown role")
	// ErrForbidden is returned when an authenticated caller lacks the required authority.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation is returned when a request fails field validation.
	ErrValidation = errors.New("validation failed")
)

// Token failure kinds. They are distinguished for logging and all match ErrInvalidToken.
var (
	ErrTokenMalformed        = fmt.Errorf("%w: malformed", ErrInvalidToken)
	ErrTokenSignatureInvalid = fmt.Errorf("%w: signature invalid", ErrInvalidToken)
	ErrTokenExpired          = fmt.Errorf("%w: expired", ErrInvalidToken)
)

// Outcome is the caller-visible class of a failure.
type Outcome int

const (
	Internal Outcome = iota
	Unauthenticated
	Forbidden
	Conflict
	NotFound
	BadRequest
	Unavailable
)

// Status returns the HTTP status code used for the outcome.
func (o Outcome) Status() int {
	switch o {
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case Conflict:
		return http.StatusConflict
	case NotFound:
		return http.StatusNotFound
	case BadRequest:
		return http.StatusBadRequest
	case Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (o Outcome) String() string {
	switch o {
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	case Conflict:
		return "conflict"
	case NotFound:
		return "not_found"
	case BadRequest:
		return "bad_request"
	case Unavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Classify maps err to the outcome exposed at the API boundary along with a message
// that is safe to disclose. Credential and token failures collapse into a single
// "unauthenticated" message so callers cannot tell them apart.
func Classify(err error) (Outcome, string) {
	switch {
	case err == nil:
		return Internal, ""
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrAccountLocked),
		errors.Is(err, ErrAccountInactive),
		errors.Is(err, ErrInvalidToken):
		return Unauthenticated, "unauthenticated"
	case errors.Is(err, ErrForbidden):
		return Forbidden, "forbidden"
	case errors.Is(err, ErrUsernameTaken):
		return Conflict, ErrUsernameTaken.Error()
	case errors.Is(err, ErrEmailTaken):
		return Conflict, ErrEmailTaken.Error()
	case errors.Is(err, ErrIdentityNotFound):
		return NotFound, ErrIdentityNotFound.Error()
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUnknownRole):
		return BadRequest, err.Error()
	case errors.Is(err, ErrStorageUnavailable):
		return Unavailable, "service temporarily unavailable, retry later"
	case errors.Is(err, ErrMailDeliveryFailed):
		return Unavailable, "mail delivery failed, retry later"
	default:
		return Internal, "an internal error occurred"
	}
}

// Reason returns a short internal label for logging. It must never be sent to clients.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrTokenSignatureInvalid):
		return "token_signature_invalid"
	case errors.Is(err, ErrTokenMalformed):
		return "token_malformed"
	case errors.Is(err, ErrInvalidToken):
		return "token_invalid"
	case errors.Is(err, ErrAccountLocked):
		return "account_locked"
	case errors.Is(err, ErrAccountInactive):
		return "account_inactive"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	default:
		return "other"
	}
}
