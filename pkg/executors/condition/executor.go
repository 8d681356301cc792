// Package condition implements the condition node executor, delegating rule
// evaluation to the rules package and emitting the selected branch handle.
package condition

import (
	"context"
	"errors"
	"log/slog"

	"github.com/driptide/driptide/pkg/executors"
	"github.com/driptide/driptide/pkg/models"
	"github.com/driptide/driptide/pkg/rules"
)

// Executor runs condition nodes.
type Executor struct{}

// NewExecutor creates the condition executor.
func NewExecutor() *Executor {
	return &Executor{}
}

// Kind returns the node kind this executor serves.
func (e *Executor) Kind() models.NodeKind {
	return models.NodeKindCondition
}

// Execute selects a branch and completes with its id; the scheduler follows
// the outgoing edges tagged with that handle. Evaluation failures
// (unsupported operator, no branch matched) surface as node errors for the
// error-handling policy.
func (e *Executor) Execute(ctx context.Context, req executors.Request, logger *slog.Logger) executors.Result {
	var cfg models.ConditionConfig
	if err := models.DecodeConfig(req.Node, &cfg); err != nil {
		return executors.Failed(models.NewExecutionError(models.ErrCodeInvalidConfig, req.Node.ID, err.Error()))
	}

	branch, err := rules.SelectBranch(cfg.Branches, req.Context)
	if err != nil {
		var execErr *models.ExecutionError
		if errors.As(err, &execErr) {
			scoped := *execErr
			scoped.NodeID = req.Node.ID

			return executors.Failed(&scoped)
		}

		return executors.Failed(models.NewExecutionError(models.ErrCodeInvalidConfig, req.Node.ID, err.Error()))
	}

	logger.DebugContext(ctx, "Condition node selected branch", "node_id", req.Node.ID, "branch", branch)

	return executors.CompletedBranch(branch, map[string]any{"branch": branch})
}
