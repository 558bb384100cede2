package signin_test

import (
	"fmt"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	signin "github.com/sessionware/go-signin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCategoriesAndTextCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      *goerrors.Error
		category goerrors.Category
		textCode string
	}{
		{
			name:     "invalid credentials",
			err:      signin.ErrInvalidCredentials,
			category: goerrors.CategoryAuth,
			textCode: signin.TextCodeInvalidCreds,
		},
		{
			name:     "mismatched hash",
			err:      signin.ErrMismatchedHashAndPassword,
			category: goerrors.CategoryAuth,
			textCode: signin.TextCodeInvalidCreds,
		},
		{
			name:     "too many attempts",
			err:      signin.ErrTooManyLoginAttempts,
			category: goerrors.CategoryRateLimit,
			textCode: signin.TextCodeTooManyAttempts,
		},
		{
			name:     "empty password",
			err:      signin.ErrEmptyPassword,
			category: goerrors.CategoryValidation,
			textCode: signin.TextCodeEmptyPassword,
		},
		{
			name:     "password mismatch",
			err:      signin.ErrPasswordMismatch,
			category: goerrors.CategoryValidation,
			textCode: signin.TextCodePasswordMismatch,
		},
		{
			name:     "token not found",
			err:      signin.ErrTokenNotFound,
			category: goerrors.CategoryNotFound,
			textCode: signin.TextCodeTokenNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotNil(t, tt.err)
			assert.Equal(t, tt.category, tt.err.Category)
			assert.Equal(t, tt.textCode, tt.err.TextCode)
		})
	}
}

func TestBootstrapValidationMessages(t *testing.T) {
	// These strings surface directly on the setup form.
	assert.Equal(t, "Password cannot be empty", signin.ErrEmptyPassword.Message)
	assert.Equal(t, "Passwords do not match", signin.ErrPasswordMismatch.Message)
}

func TestIsValidationError(t *testing.T) {
	assert.True(t, signin.IsValidationError(signin.ErrEmptyPassword))
	assert.True(t, signin.IsValidationError(signin.ErrPasswordMismatch))
	assert.False(t, signin.IsValidationError(signin.ErrInvalidCredentials))
	assert.False(t, signin.IsValidationError(nil))
	assert.False(t, signin.IsValidationError(fmt.Errorf("plain error")))
}

func TestIsAuthError(t *testing.T) {
	assert.True(t, signin.IsAuthError(signin.ErrInvalidCredentials))
	assert.True(t, signin.IsAuthError(signin.ErrTooManyLoginAttempts))
	assert.False(t, signin.IsAuthError(signin.ErrEmptyPassword))
	assert.False(t, signin.IsAuthError(nil))
}

func TestWrappedErrorsUnwrapToRichError(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", signin.ErrInvalidCredentials)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(wrapped, &richErr))
	assert.Equal(t, signin.TextCodeInvalidCreds, richErr.TextCode)
}
