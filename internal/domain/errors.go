package domain

import "errors"

// Sentinel errors shared across services and repositories.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a guarded state transition lost against a
	// concurrent writer. Callers may reload and retry once.
	ErrConflict = errors.New("state changed concurrently")
	// ErrInvalidToken is returned when a confirmation or unsubscribe token does
	// not match any eligible row.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// ValidationError reports malformed caller input. It maps to a 400 response.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError returns a ValidationError with the given message.
func NewValidationError(message string) error {
	return &ValidationError{Message: message}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
