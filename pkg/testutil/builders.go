// Package testutil provides test data builders shared across package tests.
package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/driptide/driptide/pkg/models"
)

// CreateTestNode builds an action node with defaults that overrides can
// adjust.
func CreateTestNode(overrides ...func(*models.WorkflowNode)) *models.WorkflowNode {
	node := &models.WorkflowNode{
		ID:      uuid.New().String(),
		Kind:    models.NodeKindAction,
		Subtype: models.ActionSubtypeEmail,
		Name:    "Test Node",
		Config: map[string]any{
			"channel": "email",
			"fields": map[string]any{
				"recipient": "test@example.com",
				"subject":   "Test",
			},
		},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithID sets the node id.
func WithID(id string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.ID = id
	}
}

// WithKind sets the node kind and subtype.
func WithKind(kind models.NodeKind, subtype string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Kind = kind
		n.Subtype = subtype
	}
}

// WithConfig sets the node configuration.
func WithConfig(config map[string]any) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Config = config
	}
}

// WithName sets the node name.
func WithName(name string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Name = name
	}
}

// WithErrorHandling sets the node-level error handling override.
func WithErrorHandling(mode models.ErrorHandlingMode) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.ErrorHandling = mode
	}
}

// TriggerNode builds a form submission trigger.
func TriggerNode(id string, overrides ...func(*models.WorkflowNode)) *models.WorkflowNode {
	node := &models.WorkflowNode{
		ID:      id,
		Kind:    models.NodeKindTrigger,
		Subtype: models.TriggerSubtypeFormSubmission,
		Name:    "Form Submitted",
		Config: map[string]any{
			"event_type": "form.submitted",
		},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// Edge builds an edge between two nodes.
func Edge(id, source, target string) *models.WorkflowEdge {
	return &models.WorkflowEdge{ID: id, Source: source, Target: target}
}

// BranchEdge builds an edge bound to a branch handle.
func BranchEdge(id, source, handle, target string) *models.WorkflowEdge {
	return &models.WorkflowEdge{ID: id, Source: source, SourceHandle: handle, Target: target}
}

// CreateTestDefinition builds an active definition with a trigger and the
// given extra nodes and edges. The trigger node has id "trigger".
func CreateTestDefinition(overrides ...func(*models.WorkflowDefinition)) *models.WorkflowDefinition {
	def := &models.WorkflowDefinition{
		ID:      "wf-" + uuid.New().String()[:8],
		Name:    "Test Workflow",
		Version: 1,
		Nodes: []*models.WorkflowNode{
			TriggerNode("trigger"),
		},
		Edges:     []*models.WorkflowEdge{},
		Settings:  models.DefaultSettings(),
		Status:    models.WorkflowStatusActive,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	for _, override := range overrides {
		override(def)
	}

	return def
}

// WithNodes appends nodes to the definition.
func WithNodes(nodes ...*models.WorkflowNode) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.Nodes = append(d.Nodes, nodes...)
	}
}

// WithEdges appends edges to the definition.
func WithEdges(edges ...*models.WorkflowEdge) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.Edges = append(d.Edges, edges...)
	}
}

// WithSettings replaces the definition settings.
func WithSettings(settings models.WorkflowSettings) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.Settings = settings
	}
}

// WithStatus sets the definition status.
func WithStatus(status models.WorkflowStatus) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.Status = status
	}
}

// WithVariables replaces the definition variables.
func WithVariables(variables ...*models.WorkflowVariable) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.Variables = variables
	}
}

// CreateTestExecution builds an execution for the definition.
func CreateTestExecution(def *models.WorkflowDefinition, triggerData map[string]any) *models.WorkflowExecution {
	return &models.WorkflowExecution{
		ID:              "exec-" + uuid.New().String()[:8],
		WorkflowID:      def.ID,
		WorkflowVersion: def.Version,
		Status:          models.ExecutionStatusPending,
		TriggerData:     triggerData,
		StartTime:       time.Now().UTC(),
	}
}

// CreateTestContext builds an execution context from trigger data and
// variables.
func CreateTestContext(triggerData, variables map[string]any) *models.ExecutionContext {
	if triggerData == nil {
		triggerData = map[string]any{}
	}

	if variables == nil {
		variables = map[string]any{}
	}

	return &models.ExecutionContext{
		ExecutionID: "exec-test",
		WorkflowID:  "wf-test",
		TriggerData: triggerData,
		Variables:   variables,
		NodeOutputs: map[string]any{},
	}
}
