package service

import (
	"errors"
	"strings"
)

// Sentinel errors shared by all services. Handlers map these onto the HTTP
// envelope; cross-tenant reads intentionally collapse into ErrNotFound so
// existence never leaks.
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrIdMintingExhausted = errors.New("identifier minting exhausted")
	ErrInsufficientInputs = errors.New("insufficient inputs")
	ErrUpstream           = errors.New("upstream failure")
)

// ValidationError carries a caller-facing message plus optional per-field
// details. It maps to 400.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError builds a ValidationError with just a message.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsUniqueViolation reports whether err looks like a unique-constraint
// violation from postgres or sqlite. Minting code treats these as collisions
// and retries.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "SQLSTATE 23505")
}
