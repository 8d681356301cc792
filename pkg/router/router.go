// Package router matches inbound events against the trigger nodes of active
// workflow definitions and starts executions, enforcing per-workflow rate
// limits.
package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/driptide/driptide/pkg/eventbus"
	"github.com/driptide/driptide/pkg/events"
	"github.com/driptide/driptide/pkg/ingest"
	"github.com/driptide/driptide/pkg/models"
	"github.com/driptide/driptide/pkg/otelhelper"
	"github.com/driptide/driptide/pkg/rules"
	"github.com/driptide/driptide/pkg/store"
)

// Submitter hands a new execution to the scheduler.
type Submitter interface {
	Submit(ctx context.Context, def *models.WorkflowDefinition, execution *models.WorkflowExecution) error
}

// Router is the engine's ingest sink. Each matching active definition yields
// an independent execution bound to the definition version current at match
// time; later edits never affect it.
type Router struct {
	logger    *slog.Logger
	store     store.DefinitionStore
	scheduler Submitter
	bus       eventbus.EventBus
	limiter   *RateLimiter
	tracer    trace.Tracer
	now       func() time.Time
}

// Option customizes a router.
type Option func(*Router)

// WithEventBus enables lifecycle and diagnostic event publishing.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(r *Router) {
		r.bus = bus
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		r.now = now
	}
}

// WithTracer enables tracing spans around routing.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Router) {
		r.tracer = tracer
	}
}

// NewRouter creates a router over the definition store and scheduler.
func NewRouter(logger *slog.Logger, st store.DefinitionStore, scheduler Submitter, opts ...Option) *Router {
	r := &Router{
		logger:    logger.With("module", "router"),
		store:     st,
		scheduler: scheduler,
		limiter:   NewRateLimiter(),
		now:       func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Deliver implements ingest.Sink.
func (r *Router) Deliver(ctx context.Context, event ingest.Event) error {
	_, err := r.Route(ctx, event)

	return err
}

// Route matches the event against every active definition and starts one
// execution per match. It returns the started execution ids. A definition
// that fails to match or start never blocks the others.
func (r *Router) Route(ctx context.Context, event ingest.Event) ([]string, error) {
	if r.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, r.tracer, "router.route",
			attribute.String(otelhelper.EventTypeKey, event.Type))
		defer span.End()
	}

	definitions, err := r.store.Definitions(ctx)
	if err != nil {
		return nil, err
	}

	now := r.now()

	var started []string

	for _, def := range definitions {
		if def.Status != models.WorkflowStatusActive {
			continue
		}

		if event.WorkflowHint != "" && def.ID != event.WorkflowHint {
			continue
		}

		if !r.matches(def, event) {
			continue
		}

		allowed, window, limit := r.limiter.Allow(def.ID, def.Settings.RateLimiting, now)
		if !allowed {
			r.logger.Warn("execution dropped by rate limit",
				"workflow_id", def.ID, "event_type", event.Type, "window", window, "limit", limit)
			r.publishRateLimited(ctx, def.ID, event.Type, window, limit)

			continue
		}

		execution := &models.WorkflowExecution{
			ID:              newExecutionID(),
			WorkflowID:      def.ID,
			WorkflowVersion: def.Version,
			TriggerData:     event.Payload,
			StartTime:       now,
		}

		if err := r.scheduler.Submit(ctx, def, execution); err != nil {
			r.logger.Error("failed to start execution",
				"workflow_id", def.ID, "event_type", event.Type, "error", err)

			continue
		}

		r.publishStarted(ctx, def, execution, event)
		started = append(started, execution.ID)

		r.logger.Info("execution started",
			"workflow_id", def.ID,
			"execution_id", execution.ID,
			"workflow_version", def.Version,
			"event_type", event.Type)
	}

	return started, nil
}

// matches checks the definition's trigger node against the event: type
// equality plus the trigger's field rules over the payload.
func (r *Router) matches(def *models.WorkflowDefinition, event ingest.Event) bool {
	trigger := def.TriggerNode()
	if trigger == nil {
		return false
	}

	var config models.TriggerConfig
	if err := models.DecodeConfig(trigger, &config); err != nil {
		r.logger.Error("invalid trigger config", "workflow_id", def.ID, "node_id", trigger.ID, "error", err)

		return false
	}

	if config.EventType != event.Type {
		return false
	}

	if len(config.Rules) == 0 {
		return true
	}

	matched, err := rules.EvaluateRuleSet(config.Rules, &models.ExecutionContext{
		WorkflowID:  def.ID,
		TriggerData: event.Payload,
	})
	if err != nil {
		r.logger.Error("trigger rule evaluation failed", "workflow_id", def.ID, "error", err)

		return false
	}

	return matched
}

func (r *Router) publishStarted(ctx context.Context, def *models.WorkflowDefinition, execution *models.WorkflowExecution, event ingest.Event) {
	if r.bus == nil {
		return
	}

	started := events.ExecutionStarted{
		BaseEvent:       events.NewBaseEvent(events.ExecutionStartedEvent, def.ID),
		ExecutionID:     execution.ID,
		WorkflowVersion: def.Version,
		TriggerType:     event.Type,
		TriggerData:     event.Payload,
	}

	if err := r.bus.Publish(ctx, def.ID, started); err != nil {
		r.logger.Error("failed to publish started event", "execution_id", execution.ID, "error", err)
	}
}

func (r *Router) publishRateLimited(ctx context.Context, workflowID, eventType, window string, limit int) {
	if r.bus == nil {
		return
	}

	limited := events.RateLimited{
		BaseEvent: events.NewBaseEvent(events.RateLimitedEvent, workflowID),
		EventType: eventType,
		Window:    window,
		Limit:     limit,
	}

	if err := r.bus.Publish(ctx, workflowID, limited); err != nil {
		r.logger.Error("failed to publish rate limited event", "workflow_id", workflowID, "error", err)
	}
}

func newExecutionID() string {
	return "exec-" + uuid.New().String()[:8]
}
