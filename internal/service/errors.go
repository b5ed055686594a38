package service

import (
	"errors"
	"fmt"
)

const (
	CodeValidation = "VALIDATION_ERROR"
	CodeConflict   = "CONFLICT"
	CodeNotFound   = "NOT_FOUND"
)

// Sentinels for errors.Is; they match any BusinessError with the same code.
var (
	ErrValidation = &BusinessError{Code: CodeValidation}
	ErrConflict   = &BusinessError{Code: CodeConflict}
	ErrNotFound   = &BusinessError{Code: CodeNotFound}
)

// ErrStoreUnavailable aborts a sweep run.
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrUndeliverable is returned by a Sender when the messaging endpoint
// rejected the recipient and retrying cannot help.
var ErrUndeliverable = errors.New("recipient rejected message")

// BusinessError is reported synchronously to callers of the task and
// category services.
type BusinessError struct {
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (b *BusinessError) Error() string {
	if b.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", b.Code, b.Message, b.Err.Error())
	}
	return fmt.Sprintf("[%s] %s", b.Code, b.Message)
}

func (b *BusinessError) Unwrap() error { return b.Err }

func (b *BusinessError) Is(target error) bool {
	t, ok := target.(*BusinessError)
	return ok && t.Code == b.Code
}

func NewValidationError(field, reason string) *BusinessError {
	return &BusinessError{
		Code:    CodeValidation,
		Message: fmt.Sprintf("invalid value for %q: %s", field, reason),
		Details: map[string]any{
			"field":  field,
			"reason": reason,
		},
	}
}

func NewConflict(resource, field, value string) *BusinessError {
	return &BusinessError{
		Code:    CodeConflict,
		Message: fmt.Sprintf("%s with %s %q already exists", resource, field, value),
		Details: map[string]any{
			"resource": resource,
			"field":    field,
			"value":    value,
		},
	}
}

// NewNotFound does not say whether the record exists for another owner.
func NewNotFound(resource, id string) *BusinessError {
	return &BusinessError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %s not found", resource, id),
		Details: map[string]any{
			"resource": resource,
			"id":       id,
		},
	}
}

// TransientDispatchError means a reminder could not be delivered. The task
// keeps its reminder flag unset and is retried by the next sweep.
type TransientDispatchError struct {
	TaskID   string
	Attempts int
	Err      error
}

func (e *TransientDispatchError) Error() string {
	return fmt.Sprintf("dispatch task %s failed after %d attempt(s): %v", e.TaskID, e.Attempts, e.Err)
}

func (e *TransientDispatchError) Unwrap() error { return e.Err }
