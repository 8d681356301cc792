package executors

import (
	"fmt"
	"log/slog"

	"github.com/driptide/driptide/pkg/models"
)

// Registry maps node kinds to their executors. Trigger and end nodes have no
// executor: triggers are matched by the router, end nodes complete with their
// input passed through.
type Registry struct {
	logger    *slog.Logger
	executors map[models.NodeKind]Executor
}

// NewRegistry creates an empty executor registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		executors: make(map[models.NodeKind]Executor),
	}
}

// Register adds an executor for its kind, replacing any previous one.
func (r *Registry) Register(executor Executor) {
	r.executors[executor.Kind()] = executor
}

// ExecutorFor returns the executor for the node kind.
func (r *Registry) ExecutorFor(kind models.NodeKind) (Executor, error) {
	executor, ok := r.executors[kind]
	if !ok {
		return nil, fmt.Errorf("node kind %q not registered", kind)
	}

	return executor, nil
}
