// Package models defines the core domain models for node-based workflow automation.
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow definition.
type WorkflowStatus string

const (
	WorkflowStatusDraft  WorkflowStatus = "draft"  // Editable, not executable
	WorkflowStatusActive WorkflowStatus = "active" // Executable by the trigger router
	WorkflowStatusPaused WorkflowStatus = "paused" // Temporarily not executable
	WorkflowStatusError  WorkflowStatus = "error"  // Failed activation, not executable
)

// WorkflowDefinition is the immutable description of an automation graph.
// Definitions are replaced whole on every edit (no partial patches); Version
// is bumped on each replace so in-flight executions keep the version they
// started with.
type WorkflowDefinition struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"      validate:"required,min=3"`
	Version   int                 `json:"version"   validate:"min=1"`
	Nodes     []*WorkflowNode     `json:"nodes"`
	Edges     []*WorkflowEdge     `json:"edges"`
	Variables []*WorkflowVariable `json:"variables,omitempty"`
	Settings  WorkflowSettings    `json:"settings"`
	Status    WorkflowStatus      `json:"status"    validate:"required"`
	Owner     string              `json:"owner"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// TriggerNode returns the definition's trigger node, or nil when the graph
// has none. Validation guarantees exactly one for active definitions.
func (w *WorkflowDefinition) TriggerNode() *WorkflowNode {
	for _, node := range w.Nodes {
		if node.Kind == NodeKindTrigger {
			return node
		}
	}

	return nil
}

// NodeByID returns the node with the given id, or nil.
func (w *WorkflowDefinition) NodeByID(id string) *WorkflowNode {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// VariableScope controls the visibility of a workflow variable.
type VariableScope string

const (
	VariableScopeGlobal VariableScope = "global" // Shared by all executions of the definition
	VariableScopeLocal  VariableScope = "local"  // Owned by a single execution
)

// WorkflowVariable is a named, typed value resolved into the execution
// context when an execution starts.
type WorkflowVariable struct {
	ID           string        `json:"id"            validate:"required"`
	Name         string        `json:"name"          validate:"required"`
	Type         string        `json:"type"          validate:"oneof=string number boolean date array object"`
	Scope        VariableScope `json:"scope"         validate:"oneof=global local"`
	Value        any           `json:"value,omitempty"`
	DefaultValue any           `json:"default_value,omitempty"`
}

// ErrorHandlingMode is the workflow-level default applied when a node fails
// and carries no node-specific override.
type ErrorHandlingMode string

const (
	ErrorHandlingStop     ErrorHandlingMode = "stop"
	ErrorHandlingContinue ErrorHandlingMode = "continue"
	ErrorHandlingRetry    ErrorHandlingMode = "retry"
)

// RateLimitSettings caps how many executions a workflow may start within
// rolling hour/day windows. Zero means unlimited.
type RateLimitSettings struct {
	MaxExecutionsPerHour int `json:"max_executions_per_hour" validate:"min=0"`
	MaxExecutionsPerDay  int `json:"max_executions_per_day"  validate:"min=0"`
}

// WorkflowSettings holds execution policy for a definition.
type WorkflowSettings struct {
	MaxExecutionTime int               `json:"max_execution_time" validate:"min=0"` // seconds, wall clock
	RetryAttempts    int               `json:"retry_attempts"     validate:"min=0"`
	RetryDelay       int               `json:"retry_delay"        validate:"min=0"` // seconds between attempts
	ErrorHandling    ErrorHandlingMode `json:"error_handling"     validate:"omitempty,oneof=stop continue retry"`
	RateLimiting     RateLimitSettings `json:"rate_limiting"`
}

// MaxExecutionDuration returns the wall-clock budget, or zero when unset.
func (s WorkflowSettings) MaxExecutionDuration() time.Duration {
	return time.Duration(s.MaxExecutionTime) * time.Second
}

// RetryDelayDuration returns the per-node retry delay.
func (s WorkflowSettings) RetryDelayDuration() time.Duration {
	return time.Duration(s.RetryDelay) * time.Second
}

// DefaultSettings returns the policy applied when authors leave settings empty.
func DefaultSettings() WorkflowSettings {
	return WorkflowSettings{
		MaxExecutionTime: 3600,
		RetryAttempts:    3,
		RetryDelay:       30,
		ErrorHandling:    ErrorHandlingStop,
	}
}
