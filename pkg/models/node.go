package models

// NodeKind is the structural role of a node in the workflow graph.
type NodeKind string

const (
	NodeKindTrigger   NodeKind = "trigger"
	NodeKindCondition NodeKind = "condition"
	NodeKindDelay     NodeKind = "delay"
	NodeKindAction    NodeKind = "action"
	NodeKindMerge     NodeKind = "merge"
	NodeKindLoop      NodeKind = "loop"
	NodeKindEnd       NodeKind = "end"
)

// Node subtypes, keyed under their kind. The (kind, subtype) pair selects the
// config variant a node carries.
const (
	TriggerSubtypeFormSubmission = "form_submission"
	TriggerSubtypeWebhook        = "webhook"
	TriggerSubtypeSchedule       = "schedule"
	TriggerSubtypeEmailOpen      = "email_open"

	ConditionSubtypeIfThenElse = "if_then_else"
	ConditionSubtypeSwitch     = "switch"

	DelaySubtypeFixed    = "fixed"
	DelaySubtypeDynamic  = "dynamic"
	DelaySubtypeSchedule = "schedule"

	ActionSubtypeEmail   = "email"
	ActionSubtypeSMS     = "sms"
	ActionSubtypeWebhook = "webhook"
	ActionSubtypeCRM     = "crm"

	LoopSubtypeForEach = "for_each"
	LoopSubtypeWhile   = "while"
	LoopSubtypeFor     = "for"
)

// WorkflowNode is a unit of work in the graph. Nodes carry no runtime state;
// per-attempt state lives in ExecutionStep.
type WorkflowNode struct {
	ID      string         `json:"id"      validate:"required"`
	Kind    NodeKind       `json:"kind"    validate:"required"`
	Subtype string         `json:"subtype,omitempty"`
	Name    string         `json:"name"    validate:"required,min=1"`
	Config  map[string]any `json:"config,omitempty"`

	// ErrorHandling overrides the workflow-level mode for this node only.
	ErrorHandling ErrorHandlingMode `json:"error_handling,omitempty" validate:"omitempty,oneof=stop continue retry"`
}

// Branch handles used as edge source handles on branching nodes.
const (
	BranchTrue  = "true"
	BranchFalse = "false"
	BranchBody  = "body" // loop body subgraph
	BranchDone  = "done" // loop exhausted
)

// WorkflowEdge is a directed connection between two nodes. SourceHandle tags
// the branch the edge belongs to ("true"/"false", a switch-case id, or a loop
// handle); empty means the node's single unconditional output.
type WorkflowEdge struct {
	ID           string `json:"id"     validate:"required"`
	Source       string `json:"source" validate:"required"`
	SourceHandle string `json:"source_handle,omitempty"`
	Target       string `json:"target" validate:"required"`
}
