package web

import "github.com/driptide/driptide/pkg/models"

// PutDefinitionRequest is the full-replacement body for a workflow
// definition. Definitions are always replaced whole; there is no partial
// patch surface.
type PutDefinitionRequest struct {
	Name      string                     `json:"name"      validate:"required,min=3"`
	Nodes     []*models.WorkflowNode     `json:"nodes"     validate:"required,dive"`
	Edges     []*models.WorkflowEdge     `json:"edges"     validate:"dive"`
	Variables []*models.WorkflowVariable `json:"variables,omitempty" validate:"omitempty,dive"`
	Settings  *models.WorkflowSettings   `json:"settings,omitempty"`
	Status    models.WorkflowStatus      `json:"status,omitempty" validate:"omitempty,oneof=draft active paused"`
	Owner     string                     `json:"owner,omitempty"`
}

// IngestEventRequest is the body for the event ingest endpoint.
type IngestEventRequest struct {
	Type         string         `json:"type"          validate:"required"`
	WorkflowHint string         `json:"workflow_hint,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
}
