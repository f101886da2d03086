// Package common defines shared constants and sentinel errors used across
// repositories, services and transports. Callers should use errors.Is to
// match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal      = errors.New("internal error")
	ErrorUnauthorized  = errors.New("unauthorized")
	ErrVersionConflict = errors.New("version conflict")

	// Validation errors. Field-level detail is carried by ValidationError.
	ErrValidation = errors.New("validation error")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	ErrTokenNotFound       = errors.New("verification token not found")
	ErrTokenAlreadyUsed    = errors.New("verification token already used")
	ErrTokenInvalidated    = errors.New("verification token superseded by a newer one")
	ErrAlreadyVerified     = errors.New("account email already verified")

	// Account errors.
	ErrAccountInactive = errors.New("account is not active")

	// Payment transition errors.
	ErrInvalidTransition = errors.New("invalid payment transition")
	ErrAlreadySubmitted  = errors.New("payment already submitted")

	// Access control.
	ErrForbidden = errors.New("forbidden")

	// Proof artifact errors.
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")

	// Throttling.
	ErrTooManyRequests = errors.New("too many requests")
)

// ValidationError reports a single rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
