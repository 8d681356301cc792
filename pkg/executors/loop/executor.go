// Package loop implements the loop node executor: bounded for_each, while
// and for iteration over the node's body subgraph.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/driptide/driptide/pkg/executors"
	"github.com/driptide/driptide/pkg/models"
	"github.com/driptide/driptide/pkg/rules"
)

const defaultIndexVariable = "loop_index"

// Executor runs loop nodes. Iteration progress lives in the execution
// context (one counter per loop node), so re-entry through the body's back
// edge resumes where the previous iteration left off. Bounds are guaranteed
// by definition-time validation.
type Executor struct{}

// NewExecutor creates the loop executor.
func NewExecutor() *Executor {
	return &Executor{}
}

// Kind returns the node kind this executor serves.
func (e *Executor) Kind() models.NodeKind {
	return models.NodeKindLoop
}

// Execute decides between another body iteration and loop exit. Each body
// iteration captures the loop index (and for for_each, the current element)
// in local-scope variables before completing on the body branch.
func (e *Executor) Execute(ctx context.Context, req executors.Request, logger *slog.Logger) executors.Result {
	var cfg models.LoopConfig
	if err := models.DecodeConfig(req.Node, &cfg); err != nil {
		return executors.Failed(models.NewExecutionError(models.ErrCodeInvalidConfig, req.Node.ID, err.Error()))
	}

	iteration := currentIteration(req.Context, req.Node.ID)

	proceed, output, execErr := e.shouldIterate(cfg, req, iteration)
	if execErr != nil {
		return executors.Failed(execErr)
	}

	if !proceed {
		delete(req.Context.Variables, stateKey(req.Node.ID))

		return executors.CompletedBranch(models.BranchDone, map[string]any{"iterations": iteration})
	}

	indexVariable := cfg.IndexVariable
	if indexVariable == "" {
		indexVariable = defaultIndexVariable
	}

	if req.Context.Variables == nil {
		req.Context.Variables = make(map[string]any)
	}

	req.Context.Variables[indexVariable] = iteration
	req.Context.Variables[stateKey(req.Node.ID)] = iteration + 1

	for k, v := range output {
		req.Context.Variables[k] = v
	}

	logger.DebugContext(ctx, "Loop node starting iteration", "node_id", req.Node.ID, "iteration", iteration)

	return executors.CompletedBranch(models.BranchBody, map[string]any{"iteration": iteration})
}

// shouldIterate applies the subtype rule for whether another body pass runs.
// The extra output map carries for_each's current element.
func (e *Executor) shouldIterate(cfg models.LoopConfig, req executors.Request, iteration int) (bool, map[string]any, *models.ExecutionError) {
	if cfg.MaxIterations > 0 && iteration >= cfg.MaxIterations {
		return false, nil, nil
	}

	switch req.Node.Subtype {
	case models.LoopSubtypeForEach:
		items, found := req.Context.Field(cfg.ItemsField)
		if !found {
			return false, nil, models.NewExecutionError(models.ErrCodeInvalidConfig, req.Node.ID,
				fmt.Sprintf("items_field %q not present in execution context", cfg.ItemsField))
		}

		array, ok := items.([]any)
		if !ok {
			return false, nil, models.NewExecutionError(models.ErrCodeInvalidConfig, req.Node.ID,
				fmt.Sprintf("items_field %q is not an array", cfg.ItemsField))
		}

		if iteration >= len(array) {
			return false, nil, nil
		}

		return true, map[string]any{"loop_item": array[iteration]}, nil

	case models.LoopSubtypeFor:
		return iteration < cfg.Count, nil, nil

	case models.LoopSubtypeWhile:
		keepGoing, err := rules.EvaluateRuleSet(cfg.Condition, req.Context)
		if err != nil {
			var execErr *models.ExecutionError
			if errors.As(err, &execErr) {
				scoped := *execErr
				scoped.NodeID = req.Node.ID

				return false, nil, &scoped
			}

			return false, nil, models.NewExecutionError(models.ErrCodeInvalidConfig, req.Node.ID, err.Error())
		}

		return keepGoing, nil, nil

	default:
		return false, nil, models.NewExecutionError(models.ErrCodeInvalidConfig, req.Node.ID,
			fmt.Sprintf("unknown loop subtype %q", req.Node.Subtype))
	}
}

func currentIteration(execCtx *models.ExecutionContext, nodeID string) int {
	raw, ok := execCtx.Variables[stateKey(nodeID)]
	if !ok {
		return 0
	}

	switch n := raw.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

// stateKey is the reserved variable slot holding a loop node's next
// iteration index.
func stateKey(nodeID string) string {
	return "__loop__" + nodeID
}
