package model

import "fmt"

// ValidationError reports a change record with a malformed or missing field.
// The record is skipped and counted as failed; the rest of its batch proceeds.
type ValidationError struct {
	NaturalKey int64
	Field      string
	Reason     string
}

// NewValidationError builds a ValidationError for the given record key.
func NewValidationError(key int64, field, reason string) *ValidationError {
	return &ValidationError{NaturalKey: key, Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: record %d: %s %s", e.NaturalKey, e.Field, e.Reason)
}
