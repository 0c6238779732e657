package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrEmailNotVerified   = errors.New("email not verified")

	ErrTokenInvalid = errors.New("invalid access token")
	ErrTokenExpired = errors.New("access token expired")

	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrRefreshTokenExpired still matches ErrInvalidRefreshToken under errors.Is.
	ErrRefreshTokenExpired = fmt.Errorf("%w: expired", ErrInvalidRefreshToken)

	// ErrInvalidOneTimeToken covers unknown, used and expired reset/invitation tokens.
	ErrInvalidOneTimeToken = errors.New("invalid or expired token")

	ErrForbidden   = errors.New("access forbidden")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("already exists")
	ErrInvalidRole = errors.New("invalid role")
)

// ValidationError reports bad client input. It is rendered as 400.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NewValidationError formats a ValidationError.
func NewValidationError(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}
