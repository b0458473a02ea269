package config

import "fmt"

// ValidationError reports a configuration value that was rejected.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s, got %q", e.Field, e.Reason, e.Value)
}

func invalid(field string, value any, reason string) *ValidationError {
	return &ValidationError{Field: field, Value: fmt.Sprint(value), Reason: reason}
}
