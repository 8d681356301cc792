package models

import "fmt"

// ErrorCode classifies engine failures. GraphInvalid is surfaced
// synchronously to the definition author; everything else lands on the
// execution record.
type ErrorCode string

const (
	ErrCodeGraphInvalid        ErrorCode = "graph_invalid"
	ErrCodeUnsupportedOperator ErrorCode = "unsupported_operator"
	ErrCodeNoBranchMatched     ErrorCode = "no_branch_matched"
	ErrCodeInvalidDelayField   ErrorCode = "invalid_delay_field"
	ErrCodeDeliveryFailed      ErrorCode = "delivery_failed"
	ErrCodeRateLimited         ErrorCode = "rate_limited"
	ErrCodeTimeout             ErrorCode = "timeout"
	ErrCodeNodePanic           ErrorCode = "node_execution_panic"
	ErrCodeInvalidConfig       ErrorCode = "invalid_config"
	ErrCodeCancelled           ErrorCode = "cancelled"
)

// ExecutionError is a node- or execution-level failure. Recoverable drives
// whether the scheduler retries the node or fails the execution outright.
type ExecutionError struct {
	Code        ErrorCode `json:"code"`
	Message     string    `json:"message"`
	NodeID      string    `json:"node_id,omitempty"`
	Recoverable bool      `json:"recoverable"`
}

func (e *ExecutionError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s (node %s): %s", e.Code, e.NodeID, e.Message)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewExecutionError builds a non-recoverable error for the given node.
func NewExecutionError(code ErrorCode, nodeID, message string) *ExecutionError {
	return &ExecutionError{Code: code, Message: message, NodeID: nodeID}
}

// NewRecoverableError builds an error the scheduler may retry.
func NewRecoverableError(code ErrorCode, nodeID, message string) *ExecutionError {
	return &ExecutionError{Code: code, Message: message, NodeID: nodeID, Recoverable: true}
}
