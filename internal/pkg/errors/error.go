package errors

import (
	"errors"
	"fmt"
)

// AppError is a tagged error: kind, the operation that failed, and the cause.
type AppError struct {
	Kind    Kind   // Error category
	Op      string // Operation that failed, e.g. "transfer.create"
	Err     error  // Underlying error (if any)
	Details string // Additional details safe to show to callers
}

// Error implements the error interface
func (e *AppError) Error() string {
	prefix := string(e.Kind)
	if e.Op != "" {
		prefix = e.Op + ": " + prefix
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", prefix, e.Details)
	}
	return prefix
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code for this error
func (e *AppError) HTTPStatus() int {
	return GetHTTPStatus(e.Kind)
}

// Code returns the business code for this error
func (e *AppError) Code() int {
	return GetCode(e.Kind).Code
}

// Retryable reports whether the operation may succeed if retried
func (e *AppError) Retryable() bool {
	return GetCode(e.Kind).Retryable
}

// New creates a new AppError with the given kind
func New(op string, kind Kind, details ...string) *AppError {
	detail := ""
	if len(details) > 0 {
		detail = details[0]
	}
	return &AppError{
		Kind:    kind,
		Op:      op,
		Details: detail,
	}
}

// Wrap wraps an existing error with a kind. An error that already carries a
// kind keeps it.
func Wrap(err error, op string, kind Kind, details ...string) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	detail := ""
	if len(details) > 0 {
		detail = details[0]
	}

	return &AppError{
		Kind:    kind,
		Op:      op,
		Err:     err,
		Details: detail,
	}
}

// Wrapf wraps an error with formatted details
func Wrapf(err error, op string, kind Kind, format string, args ...interface{}) *AppError {
	return Wrap(err, op, kind, fmt.Sprintf(format, args...))
}

// Storage wraps a persistence failure as STORAGE_UNAVAILABLE.
func Storage(op string, err error) *AppError {
	return Wrap(err, op, KindStorageUnavailable)
}

// Is checks if err is an AppError with the given kind
func Is(err error, kind Kind) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// KindOf extracts the kind from an error
func KindOf(err error) Kind {
	if err == nil {
		return KindOK
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsRetryable reports whether err is a retryable AppError
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable()
	}
	return false
}

// GetDetails extracts error details
func GetDetails(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Details
	}
	return ""
}
