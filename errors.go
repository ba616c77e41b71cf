package identity

import (
	"strings"

	"github.com/goliatone/go-errors"
)

// Stable machine-readable codes surfaced to clients alongside the HTTP status.
const (
	TextCodeEmailExists        = "EMAIL_ALREADY_EXISTS"
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	TextCodeAccountBlocked     = "ACCOUNT_BLOCKED"
	TextCodeNotVerified        = "NOT_VERIFIED"
	TextCodeTokenInvalid       = "TOKEN_INVALID"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeTokenAlreadyUsed   = "TOKEN_ALREADY_USED"
	TextCodeTokenPurpose       = "TOKEN_PURPOSE_MISMATCH"
	TextCodeInvalidTransition  = "INVALID_STATUS_TRANSITION"
	TextCodeForbidden          = "FORBIDDEN"
	TextCodeUnauthenticated    = "UNAUTHENTICATED"
	TextCodePasswordPolicy     = "PASSWORD_POLICY_VIOLATION"
	TextCodeTooManyAttempts    = "TOO_MANY_LOGIN_ATTEMPTS"
	TextCodeTransient          = "TRANSIENT"
)

// ErrEmailAlreadyExists is returned when a user with the email already exists.
var ErrEmailAlreadyExists = errors.New("email already exists", errors.CategoryConflict).
	WithTextCode(TextCodeEmailExists).
	WithCode(errors.CodeConflict)

// ErrInvalidCredentials is returned for unknown email, missing password, and
// password mismatch alike. The three cases are never distinguished to the
// caller.
var ErrInvalidCredentials = errors.New("invalid email or password", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrAccountBlocked is returned when the target account is blocked.
var ErrAccountBlocked = errors.New("account is blocked", errors.CategoryAuth).
	WithTextCode(TextCodeAccountBlocked).
	WithCode(errors.CodeForbidden)

// ErrNotVerified is returned when credential issuance is attempted before
// email verification.
var ErrNotVerified = errors.New("email address is not verified", errors.CategoryValidation).
	WithTextCode(TextCodeNotVerified).
	WithCode(errors.CodeBadRequest)

// ErrTokenInvalid is returned when a one-time token is unknown.
var ErrTokenInvalid = errors.New("token is invalid", errors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(errors.CodeBadRequest)

// ErrTokenExpired is returned when a one-time token is past its expiry.
var ErrTokenExpired = errors.New("token has expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeBadRequest)

// ErrTokenAlreadyUsed is returned on any consumption attempt after the first.
var ErrTokenAlreadyUsed = errors.New("token has already been used", errors.CategoryConflict).
	WithTextCode(TextCodeTokenAlreadyUsed).
	WithCode(errors.CodeConflict)

// ErrTokenPurposeMismatch is returned when a token is presented to a flow it
// was not minted for.
var ErrTokenPurposeMismatch = errors.New("token purpose mismatch", errors.CategoryAuth).
	WithTextCode(TextCodeTokenPurpose).
	WithCode(errors.CodeBadRequest)

// ErrInvalidStatusTransition is returned when a lead status change violates
// the pipeline graph.
var ErrInvalidStatusTransition = errors.New("invalid lead status transition", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(errors.CodeBadRequest)

// ErrForbidden is returned when the actor's role does not allow the
// operation, or the target is a super_admin account.
var ErrForbidden = errors.New("operation not allowed", errors.CategoryAuth).
	WithTextCode(TextCodeForbidden).
	WithCode(errors.CodeForbidden)

// ErrUnauthenticated is returned when the bearer token is absent, malformed,
// expired, or carries a bad signature.
var ErrUnauthenticated = errors.New("authentication required", errors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(errors.CodeUnauthorized)

// ErrPasswordPolicy is returned when a password fails the policy checks.
var ErrPasswordPolicy = errors.New(
	"password must be at least 8 characters and include upper case, lower case, a digit, and a symbol",
	errors.CategoryValidation).
	WithTextCode(TextCodePasswordPolicy).
	WithCode(errors.CodeBadRequest)

// ErrTooManyLoginAttempts is returned while an account is in its login
// cool-down window.
var ErrTooManyLoginAttempts = errors.New("too many login attempts", errors.CategoryAuth).
	WithTextCode(TextCodeTooManyAttempts).
	WithCode(errors.CodeUnauthorized)

// ErrTransient marks retryable failures (store timeouts, mail dispatch) as
// distinct from the permanent kinds above.
var ErrTransient = errors.New("temporary failure, retry the request", errors.CategoryOperation).
	WithTextCode(TextCodeTransient)

// isUniqueViolation matches the unique index failures surfaced by the
// postgres and sqlite drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
