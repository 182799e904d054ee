// Package errors provides structured error types for eventhash.
// All errors include a category, code, message, and retryable flag so that
// transports can map them consistently.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryHashing    ErrorCategory = "HASHING"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryCache      ErrorCategory = "CACHE"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidPayload  = "INVALID_PAYLOAD"
	CodeInvalidSection  = "INVALID_SECTION"
	CodeInvalidArgument = "INVALID_ARGUMENT"

	// Hashing codes
	CodeNoHashableInput = "NO_HASHABLE_INPUT"

	// Storage codes
	CodeQueryFailed  = "QUERY_FAILED"
	CodeInsertFailed = "INSERT_FAILED"
	CodeUnavailable  = "UNAVAILABLE"

	// Cache codes
	CodeCacheRead  = "CACHE_READ_FAILED"
	CodeCacheWrite = "CACHE_WRITE_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// ErrNoHashableInput is returned when no capability of an event produced hash
// tokens and no fingerprint or checksum override was present. Callers decide
// whether to drop or reject the event; a hash is never synthesized.
var ErrNoHashableInput = New(ErrCategoryHashing, CodeNoHashableInput, "event has no hashable input")

// EventHashError is the structured error type used throughout the system.
type EventHashError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *EventHashError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *EventHashError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *EventHashError) Is(target error) bool {
	var t *EventHashError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new EventHashError.
func New(category ErrorCategory, code, message string) *EventHashError {
	return &EventHashError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new EventHashError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *EventHashError {
	return &EventHashError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *EventHashError) WithDetails(details map[string]interface{}) *EventHashError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var he *EventHashError
	if errors.As(err, &he) {
		return he.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not an EventHashError.
func GetCategory(err error) ErrorCategory {
	var he *EventHashError
	if errors.As(err, &he) {
		return he.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
func GetCode(err error) string {
	var he *EventHashError
	if errors.As(err, &he) {
		return he.Code
	}
	return ""
}

// IsNoHashableInput reports whether err carries ErrNoHashableInput.
func IsNoHashableInput(err error) bool {
	return errors.Is(err, ErrNoHashableInput)
}

// isRetryable marks transient store and cache failures as retryable for
// upstream callers. The pipeline itself never retries.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeUnavailable:
		return true
	case category == ErrCategoryCache && code == CodeCacheRead:
		return true
	case category == ErrCategoryCache && code == CodeCacheWrite:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *EventHashError {
	return New(ErrCategoryValidation, code, message)
}

func NewStorageError(code, message string, cause error) *EventHashError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewCacheError(code, message string, cause error) *EventHashError {
	return Wrap(ErrCategoryCache, code, message, cause)
}

func NewInternalError(message string, cause error) *EventHashError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
