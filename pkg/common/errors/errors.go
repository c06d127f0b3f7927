package errors

import (
	"errors"
	"fmt"
)

// Common error types used across slotflow

var (
	// ErrClosed indicates that an operation was attempted on a closed resource
	ErrClosed = errors.New("resource is closed")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrInvalidConfiguration indicates invalid configuration parameters
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidBatch indicates a batch that cannot be scheduled, such as one
	// with duplicate task names
	ErrInvalidBatch = errors.New("invalid batch")

	// ErrTaskFailed indicates that a task's work returned an error or panicked
	ErrTaskFailed = errors.New("task failed")

	// ErrNotAdmitted indicates that a queued task never received a slot
	ErrNotAdmitted = errors.New("task not admitted")
)

// ValidationError describes a rejected parameter.
type ValidationError struct {
	Module string
	Field  string
	Value  interface{}
	Reason string
	Hint   string

	kind error
}

// NewValidationError creates a ValidationError that unwraps to ErrInvalidConfiguration.
func NewValidationError(module, field string, value interface{}, reason string) *ValidationError {
	return &ValidationError{
		Module: module,
		Field:  field,
		Value:  value,
		Reason: reason,
	}
}

// NewBatchError creates a ValidationError that unwraps to ErrInvalidBatch.
func NewBatchError(module, field string, value interface{}, reason string) *ValidationError {
	err := NewValidationError(module, field, value, reason)
	err.kind = ErrInvalidBatch
	return err
}

// WithHint attaches a remediation hint and returns the same error for chaining.
func (e *ValidationError) WithHint(hint string) *ValidationError {
	e.Hint = hint
	return e
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: invalid %s=%v (%s)", e.Module, e.Field, e.Value, e.Reason)
	if e.Hint != "" {
		msg += " - " + e.Hint
	}
	return msg
}

// Unwrap returns the sentinel this validation error belongs to.
func (e *ValidationError) Unwrap() error {
	if e.kind != nil {
		return e.kind
	}
	return ErrInvalidConfiguration
}

// OperationError wraps a failure of a named operation.
type OperationError struct {
	Module    string
	Operation string
	Cause     error
	Context   string
}

// NewOperationError creates an OperationError.
func NewOperationError(module, operation string, cause error) *OperationError {
	return &OperationError{
		Module:    module,
		Operation: operation,
		Cause:     cause,
	}
}

// WithContext attaches extra detail and returns the same error for chaining.
func (e *OperationError) WithContext(context string) *OperationError {
	e.Context = context
	return e
}

func (e *OperationError) Error() string {
	msg := fmt.Sprintf("%s.%s failed: %v", e.Module, e.Operation, e.Cause)
	if e.Context != "" {
		msg += " (" + e.Context + ")"
	}
	return msg
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// TaskError is the per-task failure recorded in a run result.
// It matches both ErrTaskFailed and its cause under errors.Is.
type TaskError struct {
	Task  string
	Cause error
}

// NewTaskError creates a TaskError for the named task.
func NewTaskError(task string, cause error) *TaskError {
	return &TaskError{Task: task, Cause: cause}
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %q failed: %v", e.Task, e.Cause)
}

func (e *TaskError) Unwrap() []error {
	return []error{ErrTaskFailed, e.Cause}
}

// IsValidationError reports whether err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// IsInvalidBatch reports whether err rejects a batch.
func IsInvalidBatch(err error) bool {
	return errors.Is(err, ErrInvalidBatch)
}

// IsTemporary returns true if the error indicates a condition that might
// clear on its own, such as a timeout or a task that never got a slot
func IsTemporary(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrNotAdmitted)
}
