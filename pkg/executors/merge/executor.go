// Package merge implements the merge node executor, joining the outputs of
// the inbound branches once the scheduler's edge counter releases the node.
package merge

import (
	"context"
	"log/slog"

	"github.com/driptide/driptide/pkg/executors"
	"github.com/driptide/driptide/pkg/models"
)

// Executor runs merge nodes. Inbound coordination is the scheduler's job: a
// merge node is only dispatched once every configured inbound edge has
// produced a step, so execution here is a plain join of available outputs.
type Executor struct{}

// NewExecutor creates the merge executor.
func NewExecutor() *Executor {
	return &Executor{}
}

// Kind returns the node kind this executor serves.
func (e *Executor) Kind() models.NodeKind {
	return models.NodeKindMerge
}

// Execute combines the outputs of the inbound branches' source nodes into a
// single map keyed by source node id.
func (e *Executor) Execute(ctx context.Context, req executors.Request, logger *slog.Logger) executors.Result {
	var cfg models.MergeConfig
	if err := models.DecodeConfig(req.Node, &cfg); err != nil {
		return executors.Failed(models.NewExecutionError(models.ErrCodeInvalidConfig, req.Node.ID, err.Error()))
	}

	required := make(map[string]bool, len(cfg.InboundEdges))
	for _, edgeID := range cfg.InboundEdges {
		required[edgeID] = true
	}

	merged := make(map[string]any)

	for _, edge := range req.Inbound {
		if !required[edge.ID] {
			continue
		}

		if output, ok := req.Context.NodeOutputs[edge.Source]; ok {
			merged[edge.Source] = output
		}
	}

	logger.DebugContext(ctx, "Merge node joined branches", "node_id", req.Node.ID, "branches", len(merged))

	return executors.Completed(merged)
}
