// Package web provides the REST authoring and observability API: workflow
// definition management, execution inspection and event ingest.
package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/driptide/driptide/pkg/graph"
	"github.com/driptide/driptide/pkg/ingest"
	"github.com/driptide/driptide/pkg/models"
	"github.com/driptide/driptide/pkg/store"
)

// Canceller requests cancellation of a live execution.
type Canceller interface {
	Cancel(executionID string) error
}

// APIHandlers serves the REST surface over the store, the ingest sink and
// the scheduler's cancel hook. Sink and canceller may be nil on read-only
// deployments.
type APIHandlers struct {
	store     store.Store
	validator *validator.Validate
	sink      ingest.Sink
	canceller Canceller
}

// NewAPIHandlers creates the handler set.
func NewAPIHandlers(st store.Store, validate *validator.Validate, sink ingest.Sink, canceller Canceller) *APIHandlers {
	return &APIHandlers{
		store:     st,
		validator: validate,
		sink:      sink,
		canceller: canceller,
	}
}

// GetWorkflows lists definitions, optionally filtered by status.
func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	definitions, err := h.store.Definitions(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.WorkflowStatus(statusStr)

		filtered := make([]*models.WorkflowDefinition, 0, len(definitions))
		for _, def := range definitions {
			if def.Status == status {
				filtered = append(filtered, def)
			}
		}

		definitions = filtered
	}

	return c.JSON(fiber.Map{
		"workflows":   definitions,
		"total_count": len(definitions),
	})
}

// GetWorkflow returns one definition.
func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	def, err := h.store.DefinitionByID(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(def)
}

// PutWorkflow replaces a definition whole. The version is bumped on every
// replace; in-flight executions keep the version they started with. A
// definition cannot be stored as active unless its graph validates; every
// violation is reported at once.
func (h *APIHandlers) PutWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req PutDefinitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	version := 1
	created := true
	createdAt := time.Time{}

	existing, err := h.store.DefinitionByID(c.Context(), id)
	if err != nil && !store.IsDefinitionNotFound(err) {
		return internalError(c, err)
	}

	if existing != nil {
		version = existing.Version + 1
		created = false
		createdAt = existing.CreatedAt
	}

	status := req.Status
	if status == "" {
		status = models.WorkflowStatusDraft
	}

	settings := models.DefaultSettings()
	if req.Settings != nil {
		settings = *req.Settings
	}

	def := &models.WorkflowDefinition{
		ID:        id,
		Name:      req.Name,
		Version:   version,
		Nodes:     req.Nodes,
		Edges:     req.Edges,
		Variables: req.Variables,
		Settings:  settings,
		Status:    status,
		Owner:     req.Owner,
		CreatedAt: createdAt,
	}

	if status == models.WorkflowStatusActive {
		if result := graph.Validate(def); !result.Valid() {
			return unprocessable(c, result.Err().Error())
		}
	}

	if err := h.store.SaveDefinition(c.Context(), def); err != nil {
		return internalError(c, err)
	}

	if created {
		return c.Status(fiber.StatusCreated).JSON(def)
	}

	return c.JSON(def)
}

// DeleteWorkflow removes a definition.
func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if err := h.store.DeleteDefinition(c.Context(), id); err != nil {
		return handleStoreError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ActivateWorkflow validates the graph and flips the definition to active.
func (h *APIHandlers) ActivateWorkflow(c fiber.Ctx) error {
	return h.setStatus(c, models.WorkflowStatusActive)
}

// PauseWorkflow flips an active definition to paused; running executions are
// unaffected.
func (h *APIHandlers) PauseWorkflow(c fiber.Ctx) error {
	return h.setStatus(c, models.WorkflowStatusPaused)
}

func (h *APIHandlers) setStatus(c fiber.Ctx, status models.WorkflowStatus) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	def, err := h.store.DefinitionByID(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	if status == models.WorkflowStatusActive {
		if result := graph.Validate(def); !result.Valid() {
			def.Status = models.WorkflowStatusError
			_ = h.store.SaveDefinition(c.Context(), def)

			return unprocessable(c, result.Err().Error())
		}
	}

	def.Status = status

	if err := h.store.SaveDefinition(c.Context(), def); err != nil {
		return internalError(c, err)
	}

	return c.JSON(def)
}

// GetWorkflowExecutions lists the workflow's execution records, newest
// first.
func (h *APIHandlers) GetWorkflowExecutions(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	executions, err := h.store.Executions(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions":  executions,
		"total_count": len(executions),
	})
}

// GetExecution returns one execution record with its full step log.
func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.store.ExecutionByID(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(execution)
}

// CancelExecution requests cancellation; the scheduler observes it at the
// execution's next tick.
func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	if h.canceller == nil {
		return conflict(c, "cancellation is not available on this deployment")
	}

	if err := h.canceller.Cancel(id); err != nil {
		if store.IsExecutionNotFound(err) {
			return conflict(c, "execution is not running")
		}

		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "cancelling"})
}

// IngestEvent feeds an event into the trigger router.
func (h *APIHandlers) IngestEvent(c fiber.Ctx) error {
	if h.sink == nil {
		return conflict(c, "event ingest is not available on this deployment")
	}

	var req IngestEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	event := ingest.Event{
		Type:         req.Type,
		WorkflowHint: req.WorkflowHint,
		Payload:      req.Payload,
		Timestamp:    time.Now().UTC(),
	}

	if err := h.sink.Deliver(c.Context(), event); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
}

// HealthCheck reports store health.
func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "Driptide API is healthy"
	httpStatus := http.StatusOK

	checkCtx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	storeCheck := "ok"
	if err := h.store.HealthCheck(checkCtx); err != nil {
		status = "unhealthy"
		message = "Driptide API is unhealthy"
		httpStatus = http.StatusInternalServerError
		storeCheck = strings.TrimSpace(err.Error())
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"store": storeCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
