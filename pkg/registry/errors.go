package registry

import (
	"errors"
	"fmt"
)

// ErrorKind classifies registry, binding and invocation failures.
type ErrorKind string

const (
	KindOperationNotFound   ErrorKind = "OPERATION_NOT_FOUND"
	KindDuplicateOperation  ErrorKind = "DUPLICATE_OPERATION"
	KindMissingArgument     ErrorKind = "MISSING_ARGUMENT"
	KindTypeMismatch        ErrorKind = "TYPE_MISMATCH"
	KindTimeout             ErrorKind = "TIMEOUT"
	KindCancelled           ErrorKind = "CANCELLED"
	KindImplementationError ErrorKind = "IMPLEMENTATION_ERROR"

	// Registration-time only.
	KindInvalidDescriptor ErrorKind = "INVALID_DESCRIPTOR"
	KindRegistryFrozen    ErrorKind = "REGISTRY_FROZEN"

	// Malformed references or request envelopes.
	KindInvalidArgument ErrorKind = "INVALID_ARGUMENT"
	KindMethodNotFound  ErrorKind = "METHOD_NOT_FOUND"
)

// Retryable reports whether a caller may reasonably retry a failure of this kind unchanged.
func (k ErrorKind) Retryable() bool {
	return k == KindTimeout || k == KindCancelled
}

// RegistryError is a structured error from the registry, binder or dispatcher.
type RegistryError struct {
	Code    ErrorKind   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *RegistryError) Error() string {
	return string(e.Code) + ": " + e.Message
}

// Is matches any *RegistryError with the same code, so errors.Is(err, &RegistryError{Code: KindTimeout}) works.
func (e *RegistryError) Is(target error) bool {
	t, ok := target.(*RegistryError)
	return ok && t.Code == e.Code
}

// NewRegistryError creates a new RegistryError.
func NewRegistryError(code ErrorKind, message string) *RegistryError {
	return &RegistryError{Code: code, Message: message}
}

// Errorf creates a RegistryError with a formatted message.
func Errorf(code ErrorKind, format string, args ...interface{}) *RegistryError {
	return &RegistryError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsRegistryError unwraps err to a *RegistryError if it carries one.
func AsRegistryError(err error) (*RegistryError, bool) {
	var regErr *RegistryError
	if errors.As(err, &regErr) {
		return regErr, true
	}
	return nil, false
}

// KindOf returns the ErrorKind carried by err, or KindImplementationError for foreign errors.
func KindOf(err error) ErrorKind {
	if regErr, ok := AsRegistryError(err); ok {
		return regErr.Code
	}
	return KindImplementationError
}

// MissingArgumentDetails is attached to MISSING_ARGUMENT errors.
type MissingArgumentDetails struct {
	Parameter string `json:"parameter"`
}

// TypeMismatchDetails is attached to TYPE_MISMATCH errors.
type TypeMismatchDetails struct {
	Parameter string `json:"parameter"`
	Expected  string `json:"expected"`
	Actual    string `json:"actual"`
}

// ImplementationErrorDetails is attached when an implementation reports a
// structured error of another kind. The reported kind is kept for diagnosis
// only; the failure itself is always IMPLEMENTATION_ERROR.
type ImplementationErrorDetails struct {
	ReportedCode ErrorKind `json:"reportedCode"`
}
