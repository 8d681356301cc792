package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/driptide/driptide/pkg/models"
	"github.com/driptide/driptide/pkg/store"
)

// ExecutionRepository handles execution record rows.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates an execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `
	id
  , workflow_id
  , workflow_version
  , status
  , trigger_data
  , context
  , steps
  , error
  , result
  , start_time
  , end_time
`

// ForWorkflow returns executions for one workflow, newest first. An empty
// workflowID returns all executions.
func (r *ExecutionRepository) ForWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM workflow_executions
		WHERE ($1 = '' OR workflow_id = $1)
		ORDER BY start_time DESC
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, store.NewExecutionStoreError("Executions", "", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.WorkflowExecution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, store.NewExecutionStoreError("Executions", "", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, store.NewExecutionStoreError("Executions", "", err)
	}

	return executions, nil
}

// GetByID returns one execution record.
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM workflow_executions
		WHERE id = $1
	`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NewExecutionStoreError("ExecutionByID", id, store.ErrExecutionNotFound)
		}

		return nil, store.NewExecutionStoreError("ExecutionByID", id, err)
	}

	return execution, nil
}

// Save upserts the execution record with its full step log.
func (r *ExecutionRepository) Save(ctx context.Context, execution *models.WorkflowExecution) error {
	triggerJSON, err := json.Marshal(execution.TriggerData)
	if err != nil {
		return store.NewExecutionStoreError("SaveExecution", execution.ID, fmt.Errorf("failed to marshal trigger data: %w", err))
	}

	contextJSON, err := json.Marshal(execution.Context)
	if err != nil {
		return store.NewExecutionStoreError("SaveExecution", execution.ID, fmt.Errorf("failed to marshal context: %w", err))
	}

	stepsJSON, err := json.Marshal(execution.Steps)
	if err != nil {
		return store.NewExecutionStoreError("SaveExecution", execution.ID, fmt.Errorf("failed to marshal steps: %w", err))
	}

	var errorJSON []byte
	if execution.Error != nil {
		errorJSON, err = json.Marshal(execution.Error)
		if err != nil {
			return store.NewExecutionStoreError("SaveExecution", execution.ID, fmt.Errorf("failed to marshal error: %w", err))
		}
	}

	var resultJSON []byte
	if execution.Result != nil {
		resultJSON, err = json.Marshal(execution.Result)
		if err != nil {
			return store.NewExecutionStoreError("SaveExecution", execution.ID, fmt.Errorf("failed to marshal result: %w", err))
		}
	}

	query := `
		INSERT INTO workflow_executions (
			id, workflow_id, workflow_version, status, trigger_data, context, steps, error, result, start_time, end_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			context = EXCLUDED.context,
			steps = EXCLUDED.steps,
			error = EXCLUDED.error,
			result = EXCLUDED.result,
			end_time = EXCLUDED.end_time
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID, execution.WorkflowID, execution.WorkflowVersion, execution.Status,
		triggerJSON, contextJSON, stepsJSON, nullableJSON(errorJSON), nullableJSON(resultJSON),
		execution.StartTime, execution.EndTime,
	)
	if err != nil {
		return store.NewExecutionStoreError("SaveExecution", execution.ID, err)
	}

	return nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}

	return b
}

func scanExecution(row rowScanner) (*models.WorkflowExecution, error) {
	var (
		execution   models.WorkflowExecution
		triggerJSON []byte
		contextJSON []byte
		stepsJSON   []byte
		errorJSON   []byte
		resultJSON  []byte
	)

	err := row.Scan(
		&execution.ID, &execution.WorkflowID, &execution.WorkflowVersion, &execution.Status,
		&triggerJSON, &contextJSON, &stepsJSON, &errorJSON, &resultJSON,
		&execution.StartTime, &execution.EndTime,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(triggerJSON, &execution.TriggerData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger data: %w", err)
	}

	if err := json.Unmarshal(contextJSON, &execution.Context); err != nil {
		return nil, fmt.Errorf("failed to unmarshal context: %w", err)
	}

	if err := json.Unmarshal(stepsJSON, &execution.Steps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
	}

	if len(errorJSON) > 0 {
		if err := json.Unmarshal(errorJSON, &execution.Error); err != nil {
			return nil, fmt.Errorf("failed to unmarshal error: %w", err)
		}
	}

	if len(resultJSON) > 0 {
		if err := json.Unmarshal(resultJSON, &execution.Result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}

	return &execution, nil
}
