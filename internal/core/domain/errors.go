package domain

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies failures for routing, metrics and retry decisions.
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryIntegration   ErrorCategory = "integration"
	CategoryTransport     ErrorCategory = "transport"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryIdempotency   ErrorCategory = "idempotency"
)

// Error is the typed failure carried through the delivery pipeline.
type Error struct {
	Category  ErrorCategory
	Message   string
	Retryable bool
	Cause     error

	// Violations holds every validation failure found in a message,
	// populated only for CategoryValidation.
	Violations []string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewValidationError reports a malformed message. Never retryable: the same
// bytes will fail the same way on every redelivery.
func NewValidationError(violations []string) *Error {
	msg := "message failed validation"
	if len(violations) > 0 {
		msg = fmt.Sprintf("message failed validation (%d violations): %s", len(violations), violations[0])
	}
	return &Error{
		Category:   CategoryValidation,
		Message:    msg,
		Retryable:  false,
		Violations: violations,
	}
}

// NewIntegrationError reports a downstream call failure.
func NewIntegrationError(service, message string, retryable bool, cause error) *Error {
	return &Error{
		Category:  CategoryIntegration,
		Message:   service + ": " + message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// NewTransportError reports a queue or connectivity failure.
func NewTransportError(message string, cause error) *Error {
	return &Error{
		Category:  CategoryTransport,
		Message:   message,
		Retryable: true,
		Cause:     cause,
	}
}

// NewConfigurationError reports a missing or invalid setting. Fatal at
// startup, never retried per message.
func NewConfigurationError(message string) *Error {
	return &Error{
		Category:  CategoryConfiguration,
		Message:   message,
		Retryable: false,
	}
}

// NewIdempotencyError reports an idempotency store failure.
func NewIdempotencyError(message string, cause error) *Error {
	return &Error{
		Category:  CategoryIdempotency,
		Message:   message,
		Retryable: false,
		Cause:     cause,
	}
}

// IsRetryable reports whether err may be retried. Unclassified errors are
// retryable: a downstream failure is transient unless marked otherwise.
func IsRetryable(err error) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Retryable
	}
	return true
}

// CategoryOf returns the error's category, or "unclassified" when the error
// carries none. Used for metric labels.
func CategoryOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return string(de.Category)
	}
	return "unclassified"
}
