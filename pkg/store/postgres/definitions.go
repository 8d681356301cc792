package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/driptide/driptide/pkg/models"
	"github.com/driptide/driptide/pkg/store"
)

// DefinitionRepository handles workflow definition rows.
type DefinitionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDefinitionRepository creates a definition repository.
func NewDefinitionRepository(db *sql.DB, logger *slog.Logger) *DefinitionRepository {
	return &DefinitionRepository{db: db, logger: logger}
}

const definitionColumns = `
	id
  , name
  , version
  , status
  , nodes
  , edges
  , variables
  , settings
  , owner
  , created_at
  , updated_at
`

// GetAll returns all non-deleted definitions, newest first.
func (r *DefinitionRepository) GetAll(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	query := `
		SELECT ` + definitionColumns + `
		FROM workflow_definitions
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, store.NewDefinitionError("Definitions", "", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	definitions := make([]*models.WorkflowDefinition, 0)

	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, store.NewDefinitionError("Definitions", "", err)
		}

		definitions = append(definitions, def)
	}

	if err := rows.Err(); err != nil {
		return nil, store.NewDefinitionError("Definitions", "", err)
	}

	return definitions, nil
}

// GetByID returns one definition.
func (r *DefinitionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	query := `
		SELECT ` + definitionColumns + `
		FROM workflow_definitions
		WHERE id = $1 AND deleted_at IS NULL
	`

	def, err := scanDefinition(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NewDefinitionError("DefinitionByID", id, store.ErrDefinitionNotFound)
		}

		return nil, store.NewDefinitionError("DefinitionByID", id, err)
	}

	return def, nil
}

// Save upserts the definition, stamping timestamps and generating an ID when
// missing.
func (r *DefinitionRepository) Save(ctx context.Context, def *models.WorkflowDefinition) error {
	now := time.Now().UTC()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}

	def.UpdatedAt = now

	if def.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return store.NewDefinitionError("SaveDefinition", "", fmt.Errorf("failed to generate workflow ID: %w", err))
		}

		def.ID = id.String()
	}

	nodesJSON, err := json.Marshal(def.Nodes)
	if err != nil {
		return store.NewDefinitionError("SaveDefinition", def.ID, fmt.Errorf("failed to marshal nodes: %w", err))
	}

	edgesJSON, err := json.Marshal(def.Edges)
	if err != nil {
		return store.NewDefinitionError("SaveDefinition", def.ID, fmt.Errorf("failed to marshal edges: %w", err))
	}

	variablesJSON, err := json.Marshal(def.Variables)
	if err != nil {
		return store.NewDefinitionError("SaveDefinition", def.ID, fmt.Errorf("failed to marshal variables: %w", err))
	}

	settingsJSON, err := json.Marshal(def.Settings)
	if err != nil {
		return store.NewDefinitionError("SaveDefinition", def.ID, fmt.Errorf("failed to marshal settings: %w", err))
	}

	query := `
		INSERT INTO workflow_definitions (
			id, name, version, status, nodes, edges, variables, settings, owner, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			version = EXCLUDED.version,
			status = EXCLUDED.status,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			variables = EXCLUDED.variables,
			settings = EXCLUDED.settings,
			owner = EXCLUDED.owner,
			updated_at = EXCLUDED.updated_at,
			deleted_at = NULL
	`

	_, err = r.db.ExecContext(ctx, query,
		def.ID, def.Name, def.Version, def.Status,
		nodesJSON, edgesJSON, variablesJSON, settingsJSON,
		def.Owner, def.CreatedAt, def.UpdatedAt,
	)
	if err != nil {
		return store.NewDefinitionError("SaveDefinition", def.ID, err)
	}

	return nil
}

// Delete soft deletes a definition. Deleting a missing definition is not an
// error.
func (r *DefinitionRepository) Delete(ctx context.Context, id string) error {
	query := `UPDATE workflow_definitions SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return store.NewDefinitionError("DeleteDefinition", id, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (*models.WorkflowDefinition, error) {
	var (
		def           models.WorkflowDefinition
		nodesJSON     []byte
		edgesJSON     []byte
		variablesJSON []byte
		settingsJSON  []byte
	)

	err := row.Scan(
		&def.ID, &def.Name, &def.Version, &def.Status,
		&nodesJSON, &edgesJSON, &variablesJSON, &settingsJSON,
		&def.Owner, &def.CreatedAt, &def.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(nodesJSON, &def.Nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}

	if err := json.Unmarshal(edgesJSON, &def.Edges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal edges: %w", err)
	}

	if err := json.Unmarshal(variablesJSON, &def.Variables); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
	}

	if err := json.Unmarshal(settingsJSON, &def.Settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	return &def, nil
}
