// Package common defines shared constants and sentinel errors used across
// the storefront layers. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("invalid credentials")
	ErrorForbidden    = errors.New("forbidden")
	ErrorValidation   = errors.New("validation failed")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Account state errors.
	ErrEmailNotVerified = errors.New("email not verified, please verify your email first")
	ErrAlreadyVerified  = errors.New("email already verified")

	// One-time passcode errors.
	ErrNoPendingCode     = errors.New("no pending verification code, please request a new one")
	ErrCodeExpired       = errors.New("verification code expired, please request a new one")
	ErrAttemptsExhausted = errors.New("maximum verification attempts exceeded, please request a new code")
	ErrInvalidCode       = errors.New("invalid verification code")

	// Cart errors.
	ErrInsufficientStock = errors.New("insufficient stock")

	// Outbound e-mail failed.
	ErrEmailDispatch = errors.New("failed to send email")
)

// OtpError reports a wrong passcode together with the attempts left before
// the code is invalidated. It matches ErrInvalidCode via errors.Is.
type OtpError struct {
	Remaining int
}

func (e *OtpError) Error() string {
	return fmt.Sprintf("%s, %d attempt(s) remaining", ErrInvalidCode.Error(), e.Remaining)
}

func (e *OtpError) Unwrap() error { return ErrInvalidCode }
