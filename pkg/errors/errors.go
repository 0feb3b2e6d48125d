// Package errors provides structured error types for the dataflow runtime.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the registry, network and evaluator
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages in the CLI and HTTP server
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Structural errors (converter registration, network edits) are returned
// synchronously and the caller can recover immediately by trying a different
// edit. Runtime errors raised by a processor are captured by the evaluator and
// wrapped in a [ProcessorError].
//
// # Usage
//
//	err := errors.New(errors.ErrCodeCyclicNetwork, "connecting %s would close a cycle", id)
//	if errors.Is(err, errors.ErrCodeCyclicNetwork) {
//	    // Try a different edit
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeInternal, origErr, "convert %s", key)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Representation errors
	ErrCodeNoConverterPath    Code = "NO_CONVERTER_PATH"
	ErrCodeDuplicateConverter Code = "DUPLICATE_CONVERTER"
	ErrCodeEmptyData          Code = "EMPTY_DATA"

	// Network structure errors
	ErrCodePortTypeMismatch    Code = "PORT_TYPE_MISMATCH"
	ErrCodeCyclicNetwork       Code = "CYCLIC_NETWORK"
	ErrCodeFanInExceeded       Code = "FAN_IN_EXCEEDED"
	ErrCodeDuplicateProcessor  Code = "DUPLICATE_PROCESSOR"
	ErrCodeDuplicateConnection Code = "DUPLICATE_CONNECTION"

	// Evaluation errors
	ErrCodeProcessorFailed Code = "PROCESSOR_FAILED"
	ErrCodeCanceled        Code = "CANCELED"

	// Input validation errors
	ErrCodeInvalidInput  Code = "INVALID_INPUT"
	ErrCodeInvalidConfig Code = "INVALID_CONFIG"

	// Resource errors
	ErrCodeNotFound Code = "NOT_FOUND"
	ErrCodeClosed   Code = "CLOSED"

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
// It walks the error chain and matches the first *Error or [ProcessorError]
// carrying the code, so a wrapped cause with a different code still matches.
func Is(err error, code Code) bool {
	for err != nil {
		switch e := err.(type) {
		case *Error:
			if e.Code == code {
				return true
			}
		case *ProcessorError:
			if code == ErrCodeProcessorFailed {
				return true
			}
		}
		err = errors.Unwrap(err)
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var pe *ProcessorError
	if errors.As(err, &pe) {
		return ErrCodeProcessorFailed
	}
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

// ProcessorError wraps a failure raised from a processor's computation,
// including recovered panics.
type ProcessorError struct {
	Processor string // Identifier of the failing processor
	Panic     bool   // True when the failure was a recovered panic
	Cause     error
}

// Error implements the error interface.
func (e *ProcessorError) Error() string {
	if e.Panic {
		return fmt.Sprintf("%s: processor %q panicked: %v", ErrCodeProcessorFailed, e.Processor, e.Cause)
	}
	return fmt.Sprintf("%s: processor %q: %v", ErrCodeProcessorFailed, e.Processor, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ProcessorError) Unwrap() error { return e.Cause }

// Code returns the error code for this error type.
func (e *ProcessorError) Code() Code {
	return ErrCodeProcessorFailed
}
