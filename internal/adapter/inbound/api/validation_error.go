package api

import "fmt"

// ValidationError reports a malformed request field.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}
