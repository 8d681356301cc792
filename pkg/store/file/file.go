// Package file provides a file-backed store for development and tests.
// Definitions and executions are stored as one JSON document per record.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/driptide/driptide/pkg/models"
	"github.com/driptide/driptide/pkg/store"
)

// Store persists definitions and executions under a filesystem root.
type Store struct {
	root string
	mu   sync.RWMutex
}

// NewStore creates a file store rooted at the given directory.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Definitions returns every stored workflow definition, newest first.
func (s *Store) Definitions(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.listIDs("definitions")
	if err != nil {
		return nil, store.NewDefinitionError("Definitions", "", err)
	}

	definitions := make([]*models.WorkflowDefinition, 0, len(ids))

	for _, id := range ids {
		def, err := s.readDefinition(id)
		if err != nil {
			return nil, err
		}

		definitions = append(definitions, def)
	}

	sort.Slice(definitions, func(i, j int) bool {
		return definitions[i].CreatedAt.After(definitions[j].CreatedAt)
	})

	return definitions, nil
}

// DefinitionByID retrieves one workflow definition.
func (s *Store) DefinitionByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.readDefinition(id)
}

// SaveDefinition writes the definition, stamping timestamps.
func (s *Store) SaveDefinition(ctx context.Context, def *models.WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}

	def.UpdatedAt = now

	if err := s.writeJSON("definitions", def.ID, def); err != nil {
		return store.NewDefinitionError("SaveDefinition", def.ID, err)
	}

	return nil
}

// DeleteDefinition removes a definition. Deleting a missing definition is
// not an error.
func (s *Store) DeleteDefinition(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.recordPath("definitions", id))
	if err != nil && !os.IsNotExist(err) {
		return store.NewDefinitionError("DeleteDefinition", id, err)
	}

	return nil
}

// Executions returns execution records for one workflow, newest first. An
// empty workflowID returns all executions.
func (s *Store) Executions(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.listIDs("executions")
	if err != nil {
		return nil, store.NewExecutionStoreError("Executions", "", err)
	}

	executions := make([]*models.WorkflowExecution, 0, len(ids))

	for _, id := range ids {
		execution, err := s.readExecution(id)
		if err != nil {
			return nil, err
		}

		if workflowID != "" && execution.WorkflowID != workflowID {
			continue
		}

		executions = append(executions, execution)
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartTime.After(executions[j].StartTime)
	})

	return executions, nil
}

// ExecutionByID retrieves one execution record.
func (s *Store) ExecutionByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.readExecution(id)
}

// SaveExecution writes the execution record and its step log.
func (s *Store) SaveExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeJSON("executions", execution.ID, execution); err != nil {
		return store.NewExecutionStoreError("SaveExecution", execution.ID, err)
	}

	return nil
}

// HealthCheck verifies the root directory is writable.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := os.MkdirAll(s.root, 0750); err != nil {
		return fmt.Errorf("store root not writable: %w", err)
	}

	return nil
}

// Close is a no-op for the file store.
func (s *Store) Close(ctx context.Context) error {
	return nil
}

func (s *Store) recordPath(kind, id string) string {
	return filepath.Clean(path.Join(s.root, kind, id+".json"))
}

func (s *Store) listIDs(kind string) ([]string, error) {
	dir := path.Join(s.root, kind)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	root := os.DirFS(dir)

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}

	ids := make([]string, 0, len(jsonFiles))
	for _, file := range jsonFiles {
		ids = append(ids, file[:len(file)-len(".json")])
	}

	return ids, nil
}

func (s *Store) readDefinition(id string) (*models.WorkflowDefinition, error) {
	body, err := os.ReadFile(s.recordPath("definitions", id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, store.NewDefinitionError("DefinitionByID", id, store.ErrDefinitionNotFound)
		}

		return nil, store.NewDefinitionError("DefinitionByID", id, err)
	}

	var def models.WorkflowDefinition

	if err := json.Unmarshal(body, &def); err != nil {
		return nil, store.NewDefinitionError("DefinitionByID", id, err)
	}

	return &def, nil
}

func (s *Store) readExecution(id string) (*models.WorkflowExecution, error) {
	body, err := os.ReadFile(s.recordPath("executions", id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, store.NewExecutionStoreError("ExecutionByID", id, store.ErrExecutionNotFound)
		}

		return nil, store.NewExecutionStoreError("ExecutionByID", id, err)
	}

	var execution models.WorkflowExecution

	if err := json.Unmarshal(body, &execution); err != nil {
		return nil, store.NewExecutionStoreError("ExecutionByID", id, err)
	}

	return &execution, nil
}

func (s *Store) writeJSON(kind, id string, record any) error {
	dir := path.Join(s.root, kind)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", kind, err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", kind, id, err)
	}

	return os.WriteFile(s.recordPath(kind, id), data, 0600)
}
