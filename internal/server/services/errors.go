package services

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the root of every input error the caller can correct.
	ErrValidation        = errors.New("validation failed")
	ErrDuplicateUsername = fmt.Errorf("%w: username already taken", ErrValidation)
	ErrDuplicateEmail    = fmt.Errorf("%w: email already registered", ErrValidation)

	// ErrAuthentication is the root of login and password-check denials.
	ErrAuthentication         = errors.New("authentication failed")
	ErrInvalidCredentials     = fmt.Errorf("%w: invalid credentials", ErrAuthentication)
	ErrAccountLocked          = fmt.Errorf("%w: account locked", ErrAuthentication)
	ErrInvalidCurrentPassword = fmt.Errorf("%w: current password is incorrect", ErrAuthentication)

	// ErrResetToken is the root of reset token rejections.
	ErrResetToken            = errors.New("reset token rejected")
	ErrResetTokenNotFound    = fmt.Errorf("%w: not found", ErrResetToken)
	ErrResetTokenAlreadyUsed = fmt.Errorf("%w: already used", ErrResetToken)
	ErrResetTokenExpired     = fmt.Errorf("%w: expired", ErrResetToken)

	ErrUnknownEmail              = errors.New("no account registered with this email")
	ErrUnknownRole               = errors.New("unknown role")
	ErrVerificationTokenNotFound = errors.New("email verification token not found")
)

// ValidationError describes a single rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// LoginError is returned by a rejected login. Err is ErrInvalidCredentials or
// ErrAccountLocked. Attempts is the post-failure counter, or -1 when the
// identifier did not resolve to an account.
type LoginError struct {
	Err         error
	Attempts    int
	MaxAttempts int
}

func (e *LoginError) Error() string { return e.Err.Error() }

func (e *LoginError) Unwrap() error { return e.Err }

// AttemptsRemaining is how many failures are left before lockout, or -1 when
// unknown.
func (e *LoginError) AttemptsRemaining() int {
	if e.Attempts < 0 {
		return -1
	}
	if left := e.MaxAttempts - e.Attempts; left > 0 {
		return left
	}
	return 0
}
