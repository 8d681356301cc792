package main

import (
	"context"
	"fmt"

	"github.com/driptide/driptide/pkg/eventbus"
	"github.com/driptide/driptide/pkg/events"
)

// Analytics event handlers. The engine consumes its own lifecycle topic and
// writes one compact log line per terminal execution and per rate-limited
// drop, which is what dashboards tail in a single-process deployment.

// setupEventSubscriptions registers the analytics handlers. Call before
// Subscribe.
func (e *Engine) setupEventSubscriptions(bus eventbus.EventBus) error {
	if err := bus.Handle(events.ExecutionCompletedEvent, e.handleExecutionCompleted); err != nil {
		return fmt.Errorf("failed to subscribe to execution.completed events: %w", err)
	}

	if err := bus.Handle(events.ExecutionFailedEvent, e.handleExecutionFailed); err != nil {
		return fmt.Errorf("failed to subscribe to execution.failed events: %w", err)
	}

	if err := bus.Handle(events.ExecutionCancelledEvent, e.handleExecutionCancelled); err != nil {
		return fmt.Errorf("failed to subscribe to execution.cancelled events: %w", err)
	}

	if err := bus.Handle(events.ExecutionTimeoutEvent, e.handleExecutionTimeout); err != nil {
		return fmt.Errorf("failed to subscribe to execution.timeout events: %w", err)
	}

	if err := bus.Handle(events.RateLimitedEvent, e.handleRateLimited); err != nil {
		return fmt.Errorf("failed to subscribe to trigger.rate_limited events: %w", err)
	}

	e.logger.Info("Event subscriptions configured successfully")

	return nil
}

func (e *Engine) handleExecutionCompleted(ctx context.Context, eventData any) error {
	event, ok := eventData.(*events.ExecutionCompleted)
	if !ok {
		return fmt.Errorf("invalid event type for execution.completed: %T", eventData)
	}

	e.logger.InfoContext(ctx, "Execution completed",
		"workflow_id", event.WorkflowID,
		"execution_id", event.ExecutionID,
		"duration_ms", event.DurationMs,
		"steps_recorded", event.StepsRecorded)

	return nil
}

func (e *Engine) handleExecutionFailed(ctx context.Context, eventData any) error {
	event, ok := eventData.(*events.ExecutionFailed)
	if !ok {
		return fmt.Errorf("invalid event type for execution.failed: %T", eventData)
	}

	attrs := []any{
		"workflow_id", event.WorkflowID,
		"execution_id", event.ExecutionID,
		"duration_ms", event.DurationMs,
	}

	if event.Error != nil {
		attrs = append(attrs, "error_code", event.Error.Code, "node_id", event.Error.NodeID)
	}

	e.logger.WarnContext(ctx, "Execution failed", attrs...)

	return nil
}

func (e *Engine) handleExecutionCancelled(ctx context.Context, eventData any) error {
	event, ok := eventData.(*events.ExecutionCancelled)
	if !ok {
		return fmt.Errorf("invalid event type for execution.cancelled: %T", eventData)
	}

	e.logger.InfoContext(ctx, "Execution cancelled",
		"workflow_id", event.WorkflowID,
		"execution_id", event.ExecutionID,
		"duration_ms", event.DurationMs)

	return nil
}

func (e *Engine) handleExecutionTimeout(ctx context.Context, eventData any) error {
	event, ok := eventData.(*events.ExecutionTimeout)
	if !ok {
		return fmt.Errorf("invalid event type for execution.timeout: %T", eventData)
	}

	e.logger.WarnContext(ctx, "Execution timed out",
		"workflow_id", event.WorkflowID,
		"execution_id", event.ExecutionID,
		"duration_ms", event.DurationMs,
		"timeout_limit_ms", event.TimeoutLimitMs,
		"stuck_node", event.StuckNode)

	return nil
}

func (e *Engine) handleRateLimited(ctx context.Context, eventData any) error {
	event, ok := eventData.(*events.RateLimited)
	if !ok {
		return fmt.Errorf("invalid event type for trigger.rate_limited: %T", eventData)
	}

	e.logger.WarnContext(ctx, "Trigger rate limited",
		"workflow_id", event.WorkflowID,
		"event_type", event.EventType,
		"window", event.Window,
		"limit", event.Limit)

	return nil
}
