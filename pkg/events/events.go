// Package events defines the lifecycle events the engine publishes for
// external analytics and monitoring.
package events

import (
	"time"

	"github.com/driptide/driptide/pkg/models"
	"github.com/google/uuid"
)

// EventType identifies a lifecycle event on the bus.
type EventType string

// Topic carries every engine lifecycle event.
const Topic = "driptide.engine.events"

const EventKeyMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"
	ExecutionTimeoutEvent   EventType = "execution.timeout"
	StepCompletedEvent      EventType = "execution.step.completed"
	RateLimitedEvent        EventType = "trigger.rate_limited"
)

// BaseEvent carries the fields every lifecycle event shares.
type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent builds the shared envelope for a lifecycle event.
func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}

// ExecutionStarted is published when the router creates an execution.
type ExecutionStarted struct {
	BaseEvent

	ExecutionID     string         `json:"execution_id"`
	WorkflowVersion int            `json:"workflow_version"`
	TriggerType     string         `json:"trigger_type"`
	TriggerData     map[string]any `json:"trigger_data,omitempty"`
}

func (e ExecutionStarted) GetType() EventType { return ExecutionStartedEvent }

// ExecutionCompleted is published on the completed terminal transition.
type ExecutionCompleted struct {
	BaseEvent

	ExecutionID   string `json:"execution_id"`
	DurationMs    int64  `json:"duration_ms"`
	StepsRecorded int    `json:"steps_recorded"`
	Result        any    `json:"result,omitempty"`
}

func (e ExecutionCompleted) GetType() EventType { return ExecutionCompletedEvent }

// ExecutionFailed is published on the failed terminal transition.
type ExecutionFailed struct {
	BaseEvent

	ExecutionID   string                 `json:"execution_id"`
	DurationMs    int64                  `json:"duration_ms"`
	Error         *models.ExecutionError `json:"error"`
	StepsRecorded int                    `json:"steps_recorded"`
}

func (e ExecutionFailed) GetType() EventType { return ExecutionFailedEvent }

// ExecutionCancelled is published when an external cancel lands.
type ExecutionCancelled struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	DurationMs  int64  `json:"duration_ms"`
}

func (e ExecutionCancelled) GetType() EventType { return ExecutionCancelledEvent }

// ExecutionTimeout is published when the wall-clock budget is exceeded.
type ExecutionTimeout struct {
	BaseEvent

	ExecutionID    string `json:"execution_id"`
	DurationMs     int64  `json:"duration_ms"`
	TimeoutLimitMs int64  `json:"timeout_limit_ms"`
	StuckNode      string `json:"stuck_node,omitempty"`
}

func (e ExecutionTimeout) GetType() EventType { return ExecutionTimeoutEvent }

// StepCompleted is published for every finished node attempt, feeding the
// execution debugger view.
type StepCompleted struct {
	BaseEvent

	ExecutionID  string            `json:"execution_id"`
	NodeID       string            `json:"node_id"`
	NodeKind     models.NodeKind   `json:"node_kind"`
	Status       models.StepStatus `json:"status"`
	RetryAttempt int               `json:"retry_attempt"`
	DurationMs   int64             `json:"duration_ms"`
}

func (e StepCompleted) GetType() EventType { return StepCompletedEvent }

// RateLimited is the diagnostic recorded when a matching event is dropped by
// the workflow's rate limit. It is not a failure.
type RateLimited struct {
	BaseEvent

	EventType string `json:"event_type"`
	Window    string `json:"window"` // "hour" or "day"
	Limit     int    `json:"limit"`
}

func (e RateLimited) GetType() EventType { return RateLimitedEvent }
