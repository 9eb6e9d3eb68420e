package domain

import (
	"errors"
	"fmt"
)

// Common domain errors that can occur during rollout operations.
var (
	// ErrModeMismatch indicates the shape of a prompt does not match the
	// engine's configured message mode (structured messages vs raw text).
	// It is a fatal configuration error for the owning rollout.
	ErrModeMismatch = errors.New("prompt shape does not match message mode")

	// ErrInvalidConfiguration indicates that configuration is invalid or
	// incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrNoResourceHandle indicates a resource-backed operation ran before
	// the rollout acquired its resource handle.
	ErrNoResourceHandle = errors.New("rollout has no resource handle")
)

// ValidationError reports structural problems with batch input, such as
// mismatched column lengths. It is fatal to the whole batch and raised
// before any rollout starts.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{Entity: entity, Errors: make([]string, 0)}
}

// ResourceError reports a sandbox lifecycle failure. It is fatal to the
// owning rollout only; sibling rollouts are unaffected.
type ResourceError struct {
	// ID is the resource handle involved, empty when creation itself failed.
	ID string

	// Op is the lifecycle operation that failed (create, wait, execute).
	Op string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface for ResourceError.
func (e *ResourceError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("resource %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("resource %s failed for %s: %v", e.Op, e.ID, e.Err)
}

// Unwrap returns the underlying error, supporting errors.Is/As matching.
func (e *ResourceError) Unwrap() error { return e.Err }

// NewResourceError creates a ResourceError for the given operation.
func NewResourceError(id, op string, err error) *ResourceError {
	return &ResourceError{ID: id, Op: op, Err: err}
}
