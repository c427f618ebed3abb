// Package domain defines core types, interfaces, and errors for the SQL-Speak console.
package domain

import (
	"errors"
	"fmt"
)

// ErrInteractionRequired signals that a credential cannot be obtained silently
// and the user has to sign in (or consent) interactively.
var ErrInteractionRequired = errors.New("interaction required")

// ErrSubmissionInFlight is returned when a query is submitted while another
// submission of the same session is still running.
var ErrSubmissionInFlight = errors.New("a query is already running")

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// AcquisitionError wraps any credential acquisition failure that is not
// recoverable by an interactive sign-in.
type AcquisitionError struct {
	Err error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquire token: %v", e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// ServiceError is a non-success response from the query service.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string { return e.Message }

// NetworkError is a transport-level failure reaching a remote service.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// UserMessage renders err the way it is shown in the console: service errors
// keep their message verbatim, transport failures collapse to a generic text.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Message
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return "Could not reach the query service. Check your connection and try again."
	}
	msg := err.Error()
	if msg == "" {
		return "Unknown error"
	}
	return msg
}
