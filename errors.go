package docbind

import (
	"errors"
	"fmt"
)

// BindError represents a fatal binding failure.
//
// Binding errors are raised for:
//   - Invalid configuration: declared property type disagrees with the
//     doc/collection usage, or both (or a malformed path template) were
//     declared.
//   - Unknown listener kind: a config carries neither document nor
//     collection kind. Unreachable for configs built by a binder, but
//     guarded.
//   - Unknown change kind: the database client delivered a collection
//     change outside added/removed/modified.
//
// Missing dependency values are NOT errors: they defer the subscription
// and are normal steady-state during multi-property initialization.
type BindError struct {
	// Code identifies the error category.
	Code BindErrorCode

	// Message is a human-readable description.
	Message string

	// Component identifies the component definition, when known.
	Component string

	// Property identifies the affected bound property.
	Property string
}

// BindErrorCode categorizes binding errors.
type BindErrorCode string

const (
	// ErrCodeInvalidConfig indicates a property declaration that can
	// never bind. Raised eagerly at attach time, before any
	// subscription is attempted.
	ErrCodeInvalidConfig BindErrorCode = "INVALID_CONFIG"

	// ErrCodeUnknownKind indicates a config with neither document nor
	// collection kind at subscription-build time.
	ErrCodeUnknownKind BindErrorCode = "UNKNOWN_LISTENER_KIND"

	// ErrCodeUnknownChange indicates a collection change kind outside
	// added/removed/modified during reconciliation.
	ErrCodeUnknownChange BindErrorCode = "UNKNOWN_CHANGE_KIND"
)

// Error implements the error interface.
func (e *BindError) Error() string {
	switch {
	case e.Component != "" && e.Property != "":
		return fmt.Sprintf("%s: %s (component=%s, property=%s)", e.Code, e.Message, e.Component, e.Property)
	case e.Property != "":
		return fmt.Sprintf("%s: %s (property=%s)", e.Code, e.Message, e.Property)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// IsConfigError returns true if the error is an invalid-configuration
// error. Uses errors.As to handle wrapped errors.
func IsConfigError(err error) bool {
	var be *BindError
	if errors.As(err, &be) {
		return be.Code == ErrCodeInvalidConfig
	}
	return false
}

// IsUnknownChangeError returns true if the error is an unknown
// change-kind error. Uses errors.As to handle wrapped errors.
func IsUnknownChangeError(err error) bool {
	var be *BindError
	if errors.As(err, &be) {
		return be.Code == ErrCodeUnknownChange
	}
	return false
}

func newConfigError(component, property, message string) *BindError {
	return &BindError{
		Code:      ErrCodeInvalidConfig,
		Message:   message,
		Component: component,
		Property:  property,
	}
}
