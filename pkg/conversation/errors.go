package conversation

import "fmt"

// ValidationError rejects a request before anything is read or written.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Msg)
}

// NewValidationError builds a ValidationError from a format string.
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// AuthorizationError is returned when there is no identity, or the identity
// does not own the target conversation.
type AuthorizationError struct {
	Msg string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorization error: %s", e.Msg)
}

func NewAuthorizationError(format string, args ...interface{}) *AuthorizationError {
	return &AuthorizationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError is returned at the point of a failed lookup.
type NotFoundError struct {
	Kind string // "conversation", "message", "model", "summary"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// DataIntegrityError signals a programmer or data bug, such as a split
// conversation whose origin message is missing. It is surfaced, never
// converted into a user-facing recoverable condition.
type DataIntegrityError struct {
	Msg string
	Err error
}

func (e *DataIntegrityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data integrity error: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("data integrity error: %s", e.Msg)
}

func (e *DataIntegrityError) Unwrap() error {
	return e.Err
}

// ConfigurationError is returned synchronously by the provider factory when
// no variant exists for a model's provider type, so callers can short-circuit
// before touching persistence.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Msg)
}

func NewConfigurationError(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}
