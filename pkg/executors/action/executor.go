// Package action implements the action node executor: field validation,
// personalization rendering and the delivery adapter call.
package action

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/driptide/driptide/pkg/delivery"
	"github.com/driptide/driptide/pkg/executors"
	"github.com/driptide/driptide/pkg/models"
	"github.com/driptide/driptide/pkg/template"
)

// requiredFields lists the fields each channel must carry before the adapter
// is invoked. Missing fields are permanent failures.
var requiredFields = map[string][]string{
	models.ActionSubtypeEmail:   {"recipient", "subject"},
	models.ActionSubtypeSMS:     {"recipient", "body"},
	models.ActionSubtypeWebhook: {"url"},
	models.ActionSubtypeCRM:     {"object"},
}

// Executor runs action nodes against the delivery adapter registry.
type Executor struct {
	adapters *delivery.Registry
}

// NewExecutor creates an action executor backed by the adapter registry.
func NewExecutor(adapters *delivery.Registry) *Executor {
	return &Executor{adapters: adapters}
}

// Kind returns the node kind this executor serves.
func (e *Executor) Kind() models.NodeKind {
	return models.NodeKindAction
}

// Execute validates required fields, resolves the personalization mapping and
// templates, and hands the rendered payload to the channel's adapter.
// Transient adapter failures come back recoverable so the scheduler's retry
// policy applies; permanent ones fail outright.
func (e *Executor) Execute(ctx context.Context, req executors.Request, logger *slog.Logger) executors.Result {
	var cfg models.ActionConfig
	if err := models.DecodeConfig(req.Node, &cfg); err != nil {
		return executors.Failed(models.NewExecutionError(models.ErrCodeInvalidConfig, req.Node.ID, err.Error()))
	}

	fields := resolveMapping(cfg, req.Context)

	for _, field := range requiredFields[cfg.Channel] {
		if _, ok := fields[field]; !ok {
			return executors.Failed(models.NewExecutionError(models.ErrCodeInvalidConfig, req.Node.ID,
				fmt.Sprintf("%s action missing required field %q", cfg.Channel, field)))
		}
	}

	rendered, err := template.RenderFields(fields, req.Context)
	if err != nil {
		return executors.Failed(models.NewExecutionError(models.ErrCodeInvalidConfig, req.Node.ID, err.Error()))
	}

	adapter, err := e.adapters.Adapter(cfg.Channel)
	if err != nil {
		return executors.Failed(models.NewExecutionError(models.ErrCodeInvalidConfig, req.Node.ID, err.Error()))
	}

	logger = logger.With("node_id", req.Node.ID, "channel", cfg.Channel)
	logger.InfoContext(ctx, "Executing action node")

	output, err := adapter.Send(ctx, rendered, logger)
	if err != nil {
		execErr := &models.ExecutionError{
			Code:        models.ErrCodeDeliveryFailed,
			Message:     err.Error(),
			NodeID:      req.Node.ID,
			Recoverable: delivery.IsRecoverable(err),
		}

		return executors.Failed(execErr)
	}

	return executors.Completed(output)
}

// resolveMapping merges literal fields with the personalization mapping:
// mapped fields read their value from a context path and win over literals of
// the same name.
func resolveMapping(cfg models.ActionConfig, execCtx *models.ExecutionContext) map[string]any {
	fields := make(map[string]any, len(cfg.Fields)+len(cfg.Mapping))

	for k, v := range cfg.Fields {
		fields[k] = v
	}

	for field, path := range cfg.Mapping {
		if value, ok := execCtx.Field(path); ok {
			fields[field] = value
		}
	}

	return fields
}
