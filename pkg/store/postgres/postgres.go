// Package postgres provides the PostgreSQL-backed store.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// Registers the postgres database/sql driver.
	_ "github.com/lib/pq"

	"github.com/driptide/driptide/pkg/models"
	"github.com/driptide/driptide/pkg/store/sqlbase"
)

// Store implements store.Store on PostgreSQL.
type Store struct {
	db          *sql.DB
	logger      *slog.Logger
	definitions *DefinitionRepository
	executions  *ExecutionRepository
}

// NewStore connects to the database, runs migrations, and returns the store.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*Store, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{
		db:          database,
		logger:      logger,
		definitions: NewDefinitionRepository(database, logger),
		executions:  NewExecutionRepository(database, logger),
	}, nil
}

// HealthCheck verifies the database connection is healthy.
func (s *Store) HealthCheck(ctx context.Context) error {
	err := s.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Definitions returns all workflow definitions.
func (s *Store) Definitions(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	return s.definitions.GetAll(ctx)
}

// DefinitionByID returns a workflow definition by its ID.
func (s *Store) DefinitionByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	return s.definitions.GetByID(ctx, id)
}

// SaveDefinition upserts a workflow definition.
func (s *Store) SaveDefinition(ctx context.Context, def *models.WorkflowDefinition) error {
	return s.definitions.Save(ctx, def)
}

// DeleteDefinition soft deletes a definition by setting deleted_at.
func (s *Store) DeleteDefinition(ctx context.Context, id string) error {
	return s.definitions.Delete(ctx, id)
}

// Executions returns execution records for one workflow, newest first.
func (s *Store) Executions(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	return s.executions.ForWorkflow(ctx, workflowID)
}

// ExecutionByID returns an execution record by its ID.
func (s *Store) ExecutionByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	return s.executions.GetByID(ctx, id)
}

// SaveExecution upserts an execution record and its step log.
func (s *Store) SaveExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	return s.executions.Save(ctx, execution)
}

// Close closes the database connection.
func (s *Store) Close(ctx context.Context) error {
	if s.db != nil {
		err := s.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
