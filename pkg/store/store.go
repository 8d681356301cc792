// Package store provides the storage abstraction for workflow definitions
// and execution records.
package store

import (
	"context"

	"github.com/driptide/driptide/pkg/models"
)

// DefinitionStore persists workflow definitions.
type DefinitionStore interface {
	Definitions(ctx context.Context) ([]*models.WorkflowDefinition, error)
	DefinitionByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	SaveDefinition(ctx context.Context, def *models.WorkflowDefinition) error
	DeleteDefinition(ctx context.Context, id string) error
}

// ExecutionStore persists execution records and their step logs.
type ExecutionStore interface {
	Executions(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error)
	ExecutionByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
	SaveExecution(ctx context.Context, execution *models.WorkflowExecution) error
}

// Store is the full storage contract the engine and the API depend on.
type Store interface {
	DefinitionStore
	ExecutionStore

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
