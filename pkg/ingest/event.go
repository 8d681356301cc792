// Package ingest defines the inbound event contract shared by every trigger
// source: webhook receivers, the schedule ticker and the queue consumer.
package ingest

import (
	"context"
	"time"
)

// Event is an external occurrence that may start executions. WorkflowHint
// optionally restricts matching to one definition, used by sources that are
// bound to a workflow (schedule ticks, addressed webhooks).
type Event struct {
	Type         string         `json:"type"`
	WorkflowHint string         `json:"workflow_hint,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Sink consumes inbound events. The trigger router is the engine's sink.
type Sink interface {
	Deliver(ctx context.Context, event Event) error
}
