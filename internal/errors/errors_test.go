package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestEventHashError_Error(t *testing.T) {
	err := New(ErrCategoryValidation, CodeInvalidPayload, "bad json")
	expected := "[VALIDATION:INVALID_PAYLOAD] bad json"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestEventHashError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCategoryStorage, CodeInsertFailed, "insert failed", cause)
	expected := "[STORAGE:INSERT_FAILED] insert failed: connection refused"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestEventHashError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ErrCategoryCache, CodeCacheRead, "read", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestEventHashError_Is(t *testing.T) {
	err1 := New(ErrCategoryStorage, CodeInsertFailed, "first")
	err2 := New(ErrCategoryStorage, CodeInsertFailed, "second")
	err3 := New(ErrCategoryStorage, CodeQueryFailed, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}
}

func TestNoHashableInput_Wrapped(t *testing.T) {
	err := fmt.Errorf("compute hashes: %w", ErrNoHashableInput)
	if !IsNoHashableInput(err) {
		t.Error("wrapped ErrNoHashableInput should still be detected")
	}
	if GetCategory(err) != ErrCategoryHashing {
		t.Errorf("expected HASHING category, got %q", GetCategory(err))
	}
	if IsNoHashableInput(NewValidationError(CodeInvalidPayload, "x")) {
		t.Error("validation error must not be reported as no hashable input")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category  ErrorCategory
		code      string
		retryable bool
	}{
		{ErrCategoryStorage, CodeUnavailable, true},
		{ErrCategoryStorage, CodeInsertFailed, false},
		{ErrCategoryCache, CodeCacheRead, true},
		{ErrCategoryCache, CodeCacheWrite, true},
		{ErrCategoryHashing, CodeNoHashableInput, false},
		{ErrCategoryValidation, CodeInvalidSection, false},
		{ErrCategoryInternal, CodeUnexpected, false},
	}

	for _, tt := range tests {
		err := New(tt.category, tt.code, "test")
		if err.Retryable != tt.retryable {
			t.Errorf("%s:%s retryable=%v, want %v", tt.category, tt.code, err.Retryable, tt.retryable)
		}
		if IsRetryable(err) != tt.retryable {
			t.Errorf("IsRetryable(%s:%s)=%v, want %v", tt.category, tt.code, IsRetryable(err), tt.retryable)
		}
	}
}

func TestGetCode_NonEventHashError(t *testing.T) {
	if GetCode(fmt.Errorf("plain")) != "" {
		t.Error("expected empty code for a plain error")
	}
	if GetCategory(fmt.Errorf("plain")) != "" {
		t.Error("expected empty category for a plain error")
	}
}

func TestWithDetails(t *testing.T) {
	base := NewValidationError(CodeInvalidArgument, "bad project")
	withDetails := base.WithDetails(map[string]interface{}{"project": "abc"})

	if base.Details != nil {
		t.Error("WithDetails must not mutate the original")
	}
	if withDetails.Details["project"] != "abc" {
		t.Error("details not attached")
	}
}
