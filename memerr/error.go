// Package memerr provides structured error types for the mnemo memory
// service.
//
// This package defines standard error codes and a structured Error type
// that includes component context, operation details, error codes, and
// cause chains. It integrates with Go's standard errors package for
// error wrapping and unwrapping.
package memerr

import (
	"errors"
	"fmt"
	"strings"
)

// Standard error codes used across the service for consistent error
// reporting.
const (
	// ErrCodeValidation indicates invalid input: a bad persona, kind,
	// importance outside [0,1], or oversized content
	ErrCodeValidation = "VALIDATION"

	// ErrCodeAuthDenied indicates a missing, expired, or insufficient token
	ErrCodeAuthDenied = "AUTH_DENIED"

	// ErrCodeRateLimited indicates the caller exceeded its request budget
	ErrCodeRateLimited = "RATE_LIMITED"

	// ErrCodeNotFound indicates a requested item does not exist
	ErrCodeNotFound = "NOT_FOUND"

	// ErrCodeBackendUnavailable indicates a storage tier cannot be reached
	ErrCodeBackendUnavailable = "BACKEND_UNAVAILABLE"

	// ErrCodeTimeout indicates an operation exceeded its deadline
	ErrCodeTimeout = "TIMEOUT"

	// ErrCodeConflict indicates a write raced with a conflicting change
	ErrCodeConflict = "CONFLICT"

	// ErrCodeInternal indicates an unexpected internal failure
	ErrCodeInternal = "INTERNAL"
)

// Error is a structured error type for memory service operations.
// It provides context about which component and operation failed,
// includes a standard error code, and can wrap underlying errors.
type Error struct {
	// Component is the name of the component that generated the error
	Component string

	// Operation is the specific operation that failed
	Operation string

	// Code is a standard error code constant
	Code string

	// Message is a human-readable error message
	Message string

	// Details contains additional context as key-value pairs
	Details map[string]any

	// Cause is the underlying error that caused this error
	Cause error

	// Class categorizes the error by its nature for retry decisions
	Class ErrorClass `json:"class,omitempty"`
}

// New creates a new structured service error.
//
// Parameters:
//   - component: name of the component (e.g., "router", "fast_kv")
//   - operation: operation that failed (e.g., "remember", "search")
//   - code: error code constant (e.g., ErrCodeBackendUnavailable)
//   - message: human-readable error description
//
// Example:
//
//	err := memerr.New("fast_kv", "store", memerr.ErrCodeBackendUnavailable, "redis unreachable")
func New(component, operation, code, message string) *Error {
	return &Error{
		Component: component,
		Operation: operation,
		Code:      code,
		Message:   message,
	}
}

// WithCause adds an underlying error to this error.
// This method returns the same error instance for method chaining.
//
// Example:
//
//	err := memerr.New("fast_kv", "store", memerr.ErrCodeBackendUnavailable, "redis unreachable").
//	    WithCause(dialErr)
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithDetails adds additional context to this error.
// This method returns the same error instance for method chaining.
//
// Example:
//
//	err := memerr.New("ratelimit", "check", memerr.ErrCodeRateLimited, "budget exhausted").
//	    WithDetails(map[string]any{"client": "athena", "retry_after": "12s"})
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// WithClass sets the error classification used for retry decisions.
// This method returns the same error instance for method chaining.
//
// Example:
//
//	err := memerr.New("durable", "search", memerr.ErrCodeBackendUnavailable, "sqlite locked").
//	    WithClass(memerr.ErrorClassTransient)
func (e *Error) WithClass(class ErrorClass) *Error {
	e.Class = class
	return e
}

// Error implements the error interface.
// It formats the error as: "component [operation/code]: message: cause"
//
// Examples:
//   - "fast_kv [store/BACKEND_UNAVAILABLE]: redis unreachable"
//   - "access [authorize/AUTH_DENIED]: token expired: token issued 2026-08-01"
func (e *Error) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("%s [%s/%s]", e.Component, e.Operation, e.Code))

	if e.Message != "" {
		parts = append(parts, e.Message)
	}

	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause error.
// This enables errors.Is() and errors.As() to work with wrapped errors.
//
// Example:
//
//	err := memerr.New("fast_kv", "retrieve", memerr.ErrCodeTimeout, "lookup timed out").
//	    WithCause(context.DeadlineExceeded)
//	if errors.Is(err, context.DeadlineExceeded) {
//	    // Handle timeout
//	}
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements error equality checking for errors.Is().
// Two Error values are considered equal if they have the same Component,
// Operation, and Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Component == t.Component && e.Operation == t.Operation && e.Code == t.Code
}

// As implements error type assertion for errors.As().
// This allows errors.As() to extract the Error type from wrapped errors.
func (e *Error) As(target any) bool {
	t, ok := target.(**Error)
	if !ok {
		return false
	}
	*t = e
	return true
}

// CodeOf extracts the error code from any error in the chain.
// Returns ErrCodeInternal when no structured error is present.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
