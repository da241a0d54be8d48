// Package errors provides structured error types for the studio explorer.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryFetch      ErrorCategory = "FETCH"
	ErrCategorySource     ErrorCategory = "SOURCE"
	ErrCategoryConfig     ErrorCategory = "CONFIG"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidSchema = "INVALID_SCHEMA"
	CodeUnknownField  = "UNKNOWN_FIELD"
	CodeInvalidBatch  = "INVALID_BATCH"
	CodeInvalidQuery  = "INVALID_QUERY"

	// Fetch codes
	CodeReadFailed  = "READ_FAILED"
	CodeBatchFailed = "BATCH_FAILED"

	// Source codes
	CodeTableNotFound     = "TABLE_NOT_FOUND"
	CodeSourceUnavailable = "SOURCE_UNAVAILABLE"
	CodeDecodeFailed      = "DECODE_FAILED"

	// Config codes
	CodeInvalidConfig = "INVALID_CONFIG"
	CodeUnknownView   = "UNKNOWN_VIEW"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// StudioError is the structured error type used throughout the system.
type StudioError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *StudioError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *StudioError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *StudioError) Is(target error) bool {
	var t *StudioError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new StudioError.
func New(category ErrorCategory, code, message string) *StudioError {
	return &StudioError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new StudioError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *StudioError {
	return &StudioError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *StudioError) WithDetails(details map[string]interface{}) *StudioError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var se *StudioError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a StudioError.
func GetCategory(err error) ErrorCategory {
	var se *StudioError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a StudioError.
func GetCode(err error) string {
	var se *StudioError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// isRetryable marks transient fetch and transport failures. A failed batch is
// never retried automatically; the flag only tells callers a forced reload may help.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryFetch && code == CodeReadFailed:
		return true
	case category == ErrCategoryFetch && code == CodeBatchFailed:
		return true
	case category == ErrCategorySource && code == CodeSourceUnavailable:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *StudioError {
	return New(ErrCategoryValidation, code, message)
}

func NewFetchError(code, message string, cause error) *StudioError {
	return Wrap(ErrCategoryFetch, code, message, cause)
}

func NewSourceError(code, message string, cause error) *StudioError {
	return Wrap(ErrCategorySource, code, message, cause)
}

func NewConfigError(code, message string) *StudioError {
	return New(ErrCategoryConfig, code, message)
}

func NewInternalError(message string, cause error) *StudioError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}

// Sentinel values for errors.Is matching by category and code.
var (
	ErrInvalidSchema     = New(ErrCategoryValidation, CodeInvalidSchema, "invalid schema")
	ErrUnknownField      = New(ErrCategoryValidation, CodeUnknownField, "unknown field")
	ErrInvalidBatch      = New(ErrCategoryValidation, CodeInvalidBatch, "invalid batch")
	ErrInvalidQuery      = New(ErrCategoryValidation, CodeInvalidQuery, "invalid query")
	ErrBatchFailed       = New(ErrCategoryFetch, CodeBatchFailed, "batch failed")
	ErrTableNotFound     = New(ErrCategorySource, CodeTableNotFound, "table not found")
	ErrSourceUnavailable = New(ErrCategorySource, CodeSourceUnavailable, "source unavailable")
	ErrUnknownView       = New(ErrCategoryConfig, CodeUnknownView, "unknown view")
)
