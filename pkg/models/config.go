package models

import (
	"encoding/json"
	"fmt"
)

// Node config variants. Raw node config is a JSON object keyed by the node's
// (kind, subtype); these structs are the closed set of shapes it may take.
// Decoding goes through a JSON round trip so the same tags serve the wire
// format and the stored definition.

// TriggerConfig is matched against inbound events by the router. A trigger
// node is never executed during graph traversal.
type TriggerConfig struct {
	EventType string `json:"event_type"`
	// Rules filter event payload fields; all must pass for the trigger to match.
	Rules []Rule `json:"rules,omitempty"`
}

// Rule is a single comparison inside a rule set. Rules combine left to right
// using each rule's own LogicalOperator (default AND).
type Rule struct {
	Field           string `json:"field"`
	Operator        string `json:"operator"`
	Value           any    `json:"value,omitempty"`
	LogicalOperator string `json:"logical_operator,omitempty"` // "and" (default) or "or"
}

// ConditionBranch is one arm of a condition node. Branches are evaluated in
// declared order; a default branch is chosen only when nothing else matched.
type ConditionBranch struct {
	ID        string `json:"id"`
	Rules     []Rule `json:"rules,omitempty"`
	IsDefault bool   `json:"is_default,omitempty"`
}

// ConditionConfig drives the condition executor. For if_then_else the branch
// ids are the "true"/"false" handles; for switch they are case ids.
type ConditionConfig struct {
	Branches []ConditionBranch `json:"branches"`
}

// DelayConfig covers the three delay subtypes. Fixed uses Duration+Unit,
// dynamic reads the duration from a context field, schedule wakes at an
// absolute timestamp.
type DelayConfig struct {
	Duration float64 `json:"duration,omitempty"`
	Unit     string  `json:"unit,omitempty"` // seconds, minutes, hours, days

	DurationField string `json:"duration_field,omitempty"` // dynamic: context field name

	ScheduleAt string `json:"schedule_at,omitempty"` // schedule: RFC3339 timestamp
	Timezone   string `json:"timezone,omitempty"`    // schedule: IANA zone name

	BusinessHoursOnly bool `json:"business_hours_only,omitempty"`
	SkipWeekends      bool `json:"skip_weekends,omitempty"`
}

// ActionConfig drives delivery actions. Fields holds channel-specific values
// (recipient, subject, body, url...) whose string values are rendered as
// templates against the execution context before the adapter call.
type ActionConfig struct {
	Channel string            `json:"channel"` // adapter id: email, sms, webhook, crm
	Fields  map[string]any    `json:"fields"`
	Mapping map[string]string `json:"mapping,omitempty"` // personalization: field -> context path
}

// LoopConfig drives the loop executor. Exactly one of the subtype field
// groups is used; validation rejects loops without a bound or a falsifiable
// stop condition.
type LoopConfig struct {
	ItemsField    string `json:"items_field,omitempty"`    // for_each: context field holding an array
	IndexVariable string `json:"index_variable,omitempty"` // for_each: local variable for the loop index

	Condition []Rule `json:"condition,omitempty"` // while: stop when rules no longer pass

	Count int `json:"count,omitempty"` // for: fixed iteration count

	MaxIterations int `json:"max_iterations,omitempty"` // hard bound for all subtypes
}

// MergeConfig lists the inbound branches the merge node waits for.
type MergeConfig struct {
	InboundEdges []string `json:"inbound_edges"` // edge ids that must have produced a step
}

// DecodeConfig unmarshals a raw node config map into the typed variant for
// the node's kind. Unknown kinds are a definition-time error.
func DecodeConfig(node *WorkflowNode, out any) error {
	raw, err := json.Marshal(node.Config)
	if err != nil {
		return fmt.Errorf("node %s: config not serializable: %w", node.ID, err)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("node %s: invalid %s config: %w", node.ID, node.Kind, err)
	}

	return nil
}
