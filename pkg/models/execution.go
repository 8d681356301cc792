package models

import "time"

// ExecutionStatus is the scheduler-owned state machine for one execution.
// pending -> running -> {completed, failed, cancelled, timeout}; terminal
// states are final.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
	ExecutionStatusTimeout   ExecutionStatus = "timeout"
)

// IsTerminal reports whether the status is final.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled, ExecutionStatusTimeout:
		return true
	default:
		return false
	}
}

// StepStatus is the state of a single node attempt.
type StepStatus string

const (
	StepStatusRunning   StepStatus = "running" // includes suspended delay steps awaiting wake
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// ExecutionContext is the mutable per-execution state: resolved variables and
// accumulated node outputs keyed by node id. It is owned exclusively by its
// execution and never shared across goroutines.
type ExecutionContext struct {
	ExecutionID string         `json:"execution_id"`
	WorkflowID  string         `json:"workflow_id"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
	Variables   map[string]any `json:"variables,omitempty"`
	NodeOutputs map[string]any `json:"node_outputs,omitempty"`
}

// Field resolves a dotted path against trigger data, variables and node
// outputs, in that order. The second return reports whether the path exists.
func (c *ExecutionContext) Field(path string) (any, bool) {
	if v, ok := lookupPath(c.TriggerData, path); ok {
		return v, true
	}

	if v, ok := lookupPath(c.Variables, path); ok {
		return v, true
	}

	return lookupPath(c.NodeOutputs, path)
}

// Clone returns a deep-enough copy for loop sub-invocations: maps are copied
// one level down, values are shared.
func (c *ExecutionContext) Clone() *ExecutionContext {
	clone := &ExecutionContext{
		ExecutionID: c.ExecutionID,
		WorkflowID:  c.WorkflowID,
		TriggerData: copyMap(c.TriggerData),
		Variables:   copyMap(c.Variables),
		NodeOutputs: copyMap(c.NodeOutputs),
	}

	return clone
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}

	return out
}

func lookupPath(m map[string]any, path string) (any, bool) {
	if m == nil {
		return nil, false
	}

	if v, ok := m[path]; ok {
		return v, true
	}

	// Dotted traversal into nested objects.
	cur := any(m)

	start := 0
	for i := 0; i <= len(path); i++ {
		if i < len(path) && path[i] != '.' {
			continue
		}

		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}

		cur, ok = obj[path[start:i]]
		if !ok {
			return nil, false
		}

		start = i + 1
	}

	return cur, true
}

// WorkflowExecution is one run of a workflow definition, created by the
// trigger router and mutated exclusively by the scheduler. Immutable once the
// status is terminal.
type WorkflowExecution struct {
	ID              string            `json:"id"`
	WorkflowID      string            `json:"workflow_id"`
	WorkflowVersion int               `json:"workflow_version"`
	Status          ExecutionStatus   `json:"status"`
	TriggerData     map[string]any    `json:"trigger_data,omitempty"`
	Context         *ExecutionContext `json:"context,omitempty"`
	Steps           []*ExecutionStep  `json:"steps"` // append-only, one entry per attempt
	StartTime       time.Time         `json:"start_time"`
	EndTime         *time.Time        `json:"end_time,omitempty"`
	Error           *ExecutionError   `json:"error,omitempty"`
	Result          any               `json:"result,omitempty"`
}

// StepsForNode returns every attempt recorded for the node, oldest first.
func (e *WorkflowExecution) StepsForNode(nodeID string) []*ExecutionStep {
	var steps []*ExecutionStep

	for _, step := range e.Steps {
		if step.NodeID == nodeID {
			steps = append(steps, step)
		}
	}

	return steps
}

// ExecutionStep records one node attempt. Retries append a new step with an
// incremented RetryAttempt rather than mutating the prior one, preserving the
// full audit trail.
type ExecutionStep struct {
	NodeID       string          `json:"node_id"`
	NodeKind     NodeKind        `json:"node_kind"`
	Status       StepStatus      `json:"status"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      *time.Time      `json:"end_time,omitempty"`
	WakeAt       *time.Time      `json:"wake_at,omitempty"` // suspended delay steps only
	Input        map[string]any  `json:"input,omitempty"`
	Output       any             `json:"output,omitempty"`
	Error        *ExecutionError `json:"error,omitempty"`
	RetryAttempt int             `json:"retry_attempt"` // 0-based
}
