package signin

import (
	"github.com/goliatone/go-errors"
)

// Text codes surfaced alongside structured errors so UIs and API clients can
// branch without string matching.
const (
	TextCodeInvalidCreds     = "INVALID_CREDENTIALS"
	TextCodeTooManyAttempts  = "TOO_MANY_ATTEMPTS"
	TextCodeEmptyPassword    = "EMPTY_PASSWORD"
	TextCodePasswordMismatch = "PASSWORD_MISMATCH"
	TextCodeTokenNotFound    = "TOKEN_NOT_FOUND"
)

// ErrInvalidCredentials covers both unknown username and wrong password so a
// caller cannot enumerate accounts from the error.
var ErrInvalidCredentials = errors.New("invalid username or password", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds)

// ErrMismatchedHashAndPassword is the bcrypt comparison failure.
var ErrMismatchedHashAndPassword = errors.New("the credentials provided are invalid", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds)

// ErrTooManyLoginAttempts is returned while a user is inside the cool down
// window after exhausting their attempts.
var ErrTooManyLoginAttempts = errors.New("too many login attempts", errors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts)

// ErrNoEmptyString rejects empty input to the password hasher.
var ErrNoEmptyString = errors.New("value cannot be empty", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword)

// ErrEmptyPassword is the admin bootstrap validation failure for a blank
// password.
var ErrEmptyPassword = errors.New("Password cannot be empty", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword)

// ErrPasswordMismatch is the admin bootstrap validation failure when the two
// password fields differ.
var ErrPasswordMismatch = errors.New("Passwords do not match", errors.CategoryValidation).
	WithTextCode(TextCodePasswordMismatch)

// ErrTokenNotFound is returned by operations that need an existing token,
// e.g. renewing one that was signed out underneath the caller.
var ErrTokenNotFound = errors.New("auth token not found", errors.CategoryNotFound).
	WithTextCode(TextCodeTokenNotFound)

// IsValidationError reports whether err is one of the recoverable, user
// facing validation failures meant to be redisplayed on the same form.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.Category == errors.CategoryValidation
}

// IsAuthError reports whether err is an authentication failure rather than a
// store or internal fault.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.Category == errors.CategoryAuth ||
		richErr.Category == errors.CategoryRateLimit
}
