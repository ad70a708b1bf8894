// Package errors provides structured error types for linkage.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the CLI, the HTTP API and the solvers
//   - Machine-readable error codes for programmatic handling
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Error codes follow a hierarchical naming convention:
//   - INVALID_*: Input validation failures (bad project JSON, bad expressions)
//   - NOT_FOUND / FILE_NOT_FOUND: Missing resources
//   - SOLVER_*, NOT_CONVERGED, INFEASIBLE: Numerical outcomes
//   - INTERNAL_*: Unexpected internal errors
//
// Numerical failures are usually not fatal. A missing accurate-solver backend
// is reported as ErrCodeSolverUnavailable so callers can fall back to the
// projection solver instead of aborting.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidModel, "link %d references unknown point %d", id, pid)
//	if errors.Is(err, errors.ErrCodeInvalidModel) {
//	    // Handle validation error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeFileNotFound, origErr, "open project %s", path)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput      Code = "INVALID_INPUT"
	ErrCodeInvalidModel      Code = "INVALID_MODEL"
	ErrCodeInvalidExpression Code = "INVALID_EXPRESSION"
	ErrCodeInvalidName       Code = "INVALID_NAME"
	ErrCodeInvalidPath       Code = "INVALID_PATH"

	// Resource not found errors
	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodeFileNotFound Code = "FILE_NOT_FOUND"

	// Solver outcomes
	ErrCodeSolverUnavailable Code = "SOLVER_UNAVAILABLE"
	ErrCodeNotConverged      Code = "NOT_CONVERGED"
	ErrCodeInfeasible        Code = "INFEASIBLE"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// Recoverable reports whether err describes a condition a caller may work
// around, such as a missing solver backend or a failed convergence. Sweeps
// use it to decide between falling back and aborting.
func Recoverable(err error) bool {
	switch GetCode(err) {
	case ErrCodeSolverUnavailable, ErrCodeNotConverged:
		return true
	}
	return false
}
