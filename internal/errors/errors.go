// Package errors provides shared error types for the VAT validation server.
package errors

import (
	"errors"
	"fmt"
)

// ValidationError indicates invalid tool or request parameters.
type ValidationError struct {
	Field   string // argument name that failed validation
	Value   string // the invalid value (may be empty)
	Message string // human-readable error message
}

func (e *ValidationError) Error() string {
	if e.Field != "" && e.Value != "" {
		return fmt.Sprintf("validation failed for %s=%q: %s", e.Field, e.Value, e.Message)
	}
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, value, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// UpstreamError indicates that a remote service could not produce a usable answer:
// a non-2xx status, an unreadable body or an unexpected payload.
type UpstreamError struct {
	Service    string // "vies"
	StatusCode int    // 0 when no HTTP response was received
	Message    string
	Retryable  bool
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s returned %d: %s", e.Service, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s request failed: %s", e.Service, e.Message)
}

// NewUpstreamError creates an UpstreamError. Server errors (5xx), 429 and
// transport failures (status 0) are marked retryable.
func NewUpstreamError(service string, statusCode int, message string) *UpstreamError {
	return &UpstreamError{
		Service:    service,
		StatusCode: statusCode,
		Message:    message,
		Retryable:  statusCode == 0 || statusCode == 429 || statusCode >= 500,
	}
}

// IsValidation returns true if err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsUpstream returns true if err is or wraps an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// IsRetryable reports whether err wraps an UpstreamError marked retryable.
func IsRetryable(err error) bool {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Retryable
	}
	return false
}
