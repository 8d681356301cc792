// Package webhook exposes the HTTP surface external systems push trigger
// events to: a generic event endpoint plus per-workflow webhook URLs.
package webhook

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/driptide/driptide/pkg/ingest"
)

// EventType tagged on events received through per-workflow webhook URLs.
const EventType = "webhook.received"

// Receiver is a small fiber app accepting inbound events.
type Receiver struct {
	logger *slog.Logger
	sink   ingest.Sink
	app    *fiber.App
	port   int
}

// NewReceiver creates a receiver delivering into the sink.
func NewReceiver(logger *slog.Logger, sink ingest.Sink, port int) *Receiver {
	r := &Receiver{
		logger: logger.With("module", "webhook_receiver"),
		sink:   sink,
		port:   port,
	}

	app := fiber.New()

	app.Post("/events", r.handleEvent)
	app.Post("/webhooks/:workflowId", r.handleWebhook)

	r.app = app

	return r
}

// App returns the fiber app, for tests.
func (r *Receiver) App() *fiber.App {
	return r.app
}

// Start listens on the configured port. Blocks until shutdown.
func (r *Receiver) Start(ctx context.Context) error {
	r.logger.InfoContext(ctx, "Starting webhook receiver", "port", r.port)

	return r.app.Listen(":" + strconv.Itoa(r.port))
}

// Stop gracefully shuts the listener down.
func (r *Receiver) Stop(ctx context.Context) error {
	return r.app.ShutdownWithContext(ctx)
}

type eventRequest struct {
	Type         string         `json:"type"`
	WorkflowHint string         `json:"workflow_hint,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// handleEvent accepts a typed event document.
func (r *Receiver) handleEvent(c fiber.Ctx) error {
	var req eventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if req.Type == "" {
		return badRequest(c, "Event type is required")
	}

	event := ingest.Event{
		Type:         req.Type,
		WorkflowHint: req.WorkflowHint,
		Payload:      req.Payload,
		Timestamp:    time.Now().UTC(),
	}

	if err := r.sink.Deliver(c.Context(), event); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
}

// handleWebhook accepts an arbitrary JSON body addressed to one workflow.
func (r *Receiver) handleWebhook(c fiber.Ctx) error {
	workflowID := c.Params("workflowId")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var payload map[string]any
	if err := c.Bind().JSON(&payload); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	event := ingest.Event{
		Type:         EventType,
		WorkflowHint: workflowID,
		Payload:      payload,
		Timestamp:    time.Now().UTC(),
	}

	if err := r.sink.Deliver(c.Context(), event); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
}

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}
