package store

import (
	"errors"
	"fmt"
)

// Standard storage error types that all implementations should use.
var (
	// ErrDefinitionNotFound indicates no workflow definition exists for the
	// given identifier.
	ErrDefinitionNotFound = errors.New("workflow definition not found")

	// ErrExecutionNotFound indicates no execution record exists for the
	// given identifier.
	ErrExecutionNotFound = errors.New("execution not found")
)

// DefinitionError wraps definition storage errors with operation context.
type DefinitionError struct {
	Op         string // Operation being performed (e.g. "DefinitionByID", "SaveDefinition")
	WorkflowID string
	Err        error
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("%s failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *DefinitionError) Unwrap() error {
	return e.Err
}

func (e *DefinitionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewDefinitionError creates a definition error with context.
func NewDefinitionError(op, workflowID string, err error) *DefinitionError {
	return &DefinitionError{Op: op, WorkflowID: workflowID, Err: err}
}

// ExecutionStoreError wraps execution storage errors with operation context.
type ExecutionStoreError struct {
	Op          string
	ExecutionID string
	Err         error
}

func (e *ExecutionStoreError) Error() string {
	return fmt.Sprintf("%s failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionStoreError) Unwrap() error {
	return e.Err
}

func (e *ExecutionStoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionStoreError creates an execution storage error with context.
func NewExecutionStoreError(op, executionID string, err error) *ExecutionStoreError {
	return &ExecutionStoreError{Op: op, ExecutionID: executionID, Err: err}
}

// IsDefinitionNotFound checks whether an error indicates a missing definition.
func IsDefinitionNotFound(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound)
}

// IsExecutionNotFound checks whether an error indicates a missing execution.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}
