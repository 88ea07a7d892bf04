// Structured error types for the catalog API.

package models

import (
	"fmt"
	"net/http"
	"time"
)

// ErrorCode classifies catalog failures.
type ErrorCode string

const (
	// ErrValidationFailed is returned when input data fails validation
	ErrValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrMissingField is returned when a required field is missing
	ErrMissingField ErrorCode = "MISSING_FIELD"
	// ErrInvalidFormat is returned when a field has an invalid format
	ErrInvalidFormat ErrorCode = "INVALID_FORMAT"

	// ErrNotFound is returned when a path or id does not resolve
	ErrNotFound ErrorCode = "NOT_FOUND"
	// ErrConflict is returned on a pre-existing resource, a stale revision
	// token, or a branch name collision
	ErrConflict ErrorCode = "CONFLICT"

	// ErrRateLimited is returned when the remote host is throttling and the
	// reset is further out than the gateway is willing to sleep through
	ErrRateLimited ErrorCode = "RATE_LIMITED"
	// ErrUpstream is returned when a remote call fails after retries
	ErrUpstream ErrorCode = "UPSTREAM_ERROR"
	// ErrUnauthorized is returned when the credential is missing or rejected
	ErrUnauthorized ErrorCode = "UNAUTHORIZED"

	// ErrDecodeFailed is returned when a stored document fails to parse.
	// The decode sub-kind is carried in the error details.
	ErrDecodeFailed ErrorCode = "DECODE_FAILED"

	// ErrInternal is returned when an unexpected server error occurs
	ErrInternal ErrorCode = "INTERNAL_ERROR"
)

// ErrorWithStatus is an error that includes an HTTP status code and error code.
type ErrorWithStatus interface {
	Error() string
	StatusCode() int
	Code() ErrorCode
	Details() map[string]any
}

// APIError is a concrete error type with status code, code, and optional details.
type APIError struct {
	statusCode int
	code       ErrorCode
	message    string
	details    map[string]any
	wrappedErr error
}

// NewAPIError creates a new APIError with the given status code and message.
func NewAPIError(statusCode int, code ErrorCode, message string) *APIError {
	return &APIError{
		statusCode: statusCode,
		code:       code,
		message:    message,
		details:    make(map[string]any),
	}
}

// WithDetail adds a single detail to the error.
func (e *APIError) WithDetail(key string, value any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
func (e *APIError) Wrap(err error) *APIError {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// StatusCode returns the HTTP status code.
func (e *APIError) StatusCode() int {
	return e.statusCode
}

// Code returns the error code.
func (e *APIError) Code() ErrorCode {
	return e.code
}

// Details returns additional error details.
func (e *APIError) Details() map[string]any {
	return e.details
}

// Unwrap returns the wrapped error if any.
func (e *APIError) Unwrap() error {
	return e.wrappedErr
}

// Predefined error constructors for common cases

// NotFound creates a 404 error naming the resource that did not resolve.
func NotFound(resource string) *APIError {
	return NewAPIError(http.StatusNotFound, ErrNotFound, fmt.Sprintf("%s not found", resource))
}

// Conflict creates a 409 error.
func Conflict(message string) *APIError {
	return NewAPIError(http.StatusConflict, ErrConflict, message)
}

// BadRequest creates a 400 validation error.
func BadRequest(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrValidationFailed, message)
}

// MissingField creates a 400 error for a missing field.
func MissingField(fieldName string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrMissingField, fmt.Sprintf("missing required field: %s", fieldName)).
		WithDetail("field", fieldName)
}

// InvalidFormat creates a 400 error for a malformed field value.
func InvalidFormat(fieldName, message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrInvalidFormat, message).WithDetail("field", fieldName)
}

// RateLimited creates a 429 error with a retry-after hint when known.
func RateLimited(retryAfter time.Duration) *APIError {
	e := NewAPIError(http.StatusTooManyRequests, ErrRateLimited, "remote host is rate limiting requests")
	if retryAfter > 0 {
		e = e.WithDetail("retry_after_seconds", int(retryAfter.Seconds()))
	}
	return e
}

// Upstream creates a 502 error wrapping a remote failure.
func Upstream(message string, err error) *APIError {
	return NewAPIError(http.StatusBadGateway, ErrUpstream, message).Wrap(err)
}

// Unauthorized creates a 401 error for a missing or rejected credential.
func Unauthorized(message string) *APIError {
	return NewAPIError(http.StatusUnauthorized, ErrUnauthorized, message)
}

// Internal returns a 500 error.
func Internal(message string) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrInternal, message)
}
