package entity

import (
	"errors"
	"fmt"
)

// ErrValidation is the sentinel for construction-time validation failures.
// Check with errors.Is; the concrete *ValidationError carries the field.
var ErrValidation = errors.New("bill validation failed")

// ValidationError reports a bill that violates its structural invariants.
// It is raised only at the normalization boundary; the reconciliation engine
// itself never rejects a bill.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a validation error for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid bill: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
