package engineapi

import (
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/flowbot-io/flowbot/engine"
	"github.com/flowbot-io/flowbot/engine/activeregistry"
	"github.com/flowbot-io/flowbot/engine/noderegistry"
	"github.com/flowbot-io/flowbot/engine/triggerhandler"
	"github.com/flowbot-io/flowbot/pkg/kernel"
)

// WorkflowHandler maneja las rutas de workflows con Fiber
type WorkflowHandler struct {
	workflowRepo   engine.WorkflowRepository
	logs           engine.ExecutionLogRepository
	registry       engine.ActiveWorkflowRegistry
	nodeRegistry   *noderegistry.Registry
	drift          *activeregistry.DriftDetector
	triggerHandler *triggerhandler.TriggerHandler
	baseURL        string
}

func NewWorkflowHandler(
	workflowRepo engine.WorkflowRepository,
	logs engine.ExecutionLogRepository,
	registry engine.ActiveWorkflowRegistry,
	nodeRegistry *noderegistry.Registry,
	drift *activeregistry.DriftDetector,
	triggerHandler *triggerhandler.TriggerHandler,
	baseURL string,
) *WorkflowHandler {
	return &WorkflowHandler{
		workflowRepo:   workflowRepo,
		logs:           logs,
		registry:       registry,
		nodeRegistry:   nodeRegistry,
		drift:          drift,
		triggerHandler: triggerHandler,
		baseURL:        baseURL,
	}
}

// RegisterRoutes registra las rutas de workflows en Fiber
func (h *WorkflowHandler) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api")

	workflows := api.Group("/workflows")
	workflows.Post("/", h.CreateWorkflow)
	workflows.Get("/", h.ListWorkflows)
	workflows.Post("/validate", h.ValidateWorkflow)
	workflows.Get("/:id", h.GetWorkflow)
	workflows.Put("/:id", h.UpdateWorkflow)
	workflows.Delete("/:id", h.DeleteWorkflow)
	workflows.Post("/:id/activate", h.ActivateWorkflow)
	workflows.Post("/:id/deactivate", h.DeactivateWorkflow)
	workflows.Post("/:id/execute", h.ExecuteWorkflow)
	workflows.Get("/:id/executions", h.GetExecutionLog)

	api.Get("/nodes", h.GetNodeCatalog)
	api.Post("/trigger/:workflowId", h.HandleWebhookTrigger)
	api.Post("/telegram/webhook/:workflowId", h.HandleTelegramTrigger)

	debug := api.Group("/debug")
	debug.Get("/workflows", h.DebugWorkflows)
	debug.Get("/workflow/:id", h.DebugWorkflow)
	debug.Post("/workflow/:id/reconcile", h.ReconcileWorkflow)
}

// ============================================================================
// CRUD
// ============================================================================

func (h *WorkflowHandler) CreateWorkflow(c *fiber.Ctx) error {
	var req engine.CreateWorkflowRequest
	if err := c.BodyParser(&req); err != nil {
		return engine.ErrInvalidWorkflowConfig().WithDetail("reason", "invalid request body")
	}

	now := time.Now()
	workflow := engine.Workflow{
		ID:          kernel.NewWorkflowID(uuid.NewString()),
		OwnerID:     req.OwnerID,
		Name:        req.Name,
		Description: req.Description,
		Nodes:       req.Nodes,
		Edges:       req.Edges,
		IsActive:    false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.nodeRegistry.ValidateWorkflow(&workflow); err != nil {
		return err
	}

	if err := h.workflowRepo.Save(c.Context(), workflow); err != nil {
		return err
	}

	log.Printf("✅ Workflow created: %s (%s)", workflow.Name, workflow.ID)
	return c.Status(fiber.StatusCreated).JSON(engine.WorkflowResponse{Workflow: workflow})
}

func (h *WorkflowHandler) GetWorkflow(c *fiber.Ctx) error {
	id := kernel.WorkflowID(c.Params("id"))

	workflow, err := h.workflowRepo.FindByID(c.Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(engine.WorkflowResponse{Workflow: *workflow})
}

func (h *WorkflowHandler) ListWorkflows(c *fiber.Ctx) error {
	req := engine.WorkflowListRequest{
		OwnerID: kernel.UserID(c.Query("owner_id")),
		Search:  c.Query("search"),
	}
	req.Page = c.QueryInt("page", 1)
	req.PageSize = c.QueryInt("page_size", 20)

	if raw := c.Query("is_active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return engine.ErrInvalidWorkflowConfig().WithDetail("reason", "is_active must be a boolean")
		}
		req.IsActive = &active
	}

	page, err := h.workflowRepo.List(c.Context(), req)
	if err != nil {
		return err
	}

	return c.JSON(page)
}

func (h *WorkflowHandler) UpdateWorkflow(c *fiber.Ctx) error {
	id := kernel.WorkflowID(c.Params("id"))

	var req engine.UpdateWorkflowRequest
	if err := c.BodyParser(&req); err != nil {
		return engine.ErrInvalidWorkflowConfig().WithDetail("reason", "invalid request body")
	}

	workflow, err := h.workflowRepo.FindByID(c.Context(), id)
	if err != nil {
		return err
	}

	if req.Name != nil {
		workflow.Name = *req.Name
	}
	if req.Description != nil {
		workflow.Description = *req.Description
	}
	if req.Nodes != nil {
		workflow.Nodes = *req.Nodes
	}
	if req.Edges != nil {
		workflow.Edges = *req.Edges
	}
	workflow.UpdatedAt = time.Now()

	if err := h.nodeRegistry.ValidateWorkflow(workflow); err != nil {
		return err
	}

	if err := h.workflowRepo.Save(c.Context(), *workflow); err != nil {
		return err
	}

	// Edits do not touch the running registration: that divergence is
	// what the debug drift surface reports
	return c.JSON(engine.WorkflowResponse{Workflow: *workflow})
}

func (h *WorkflowHandler) DeleteWorkflow(c *fiber.Ctx) error {
	id := kernel.WorkflowID(c.Params("id"))

	if err := h.workflowRepo.Delete(c.Context(), id); err != nil {
		return err
	}

	if h.registry.RemoveActiveWorkflow(id) {
		log.Printf("🗑️  Removed deleted workflow %s from active registry", id)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ============================================================================
// Activation
// ============================================================================

func (h *WorkflowHandler) ActivateWorkflow(c *fiber.Ctx) error {
	id := kernel.WorkflowID(c.Params("id"))

	workflow, err := h.workflowRepo.FindByID(c.Context(), id)
	if err != nil {
		return err
	}

	if err := h.nodeRegistry.ValidateWorkflow(workflow); err != nil {
		return err
	}

	if err := h.workflowRepo.SetActive(c.Context(), id, true); err != nil {
		return err
	}
	workflow.Activate()

	registration := h.registry.Activate(*workflow, h.buildTriggerURLs(workflow))
	log.Printf("🟢 Workflow activated: %s (%s)", workflow.Name, workflow.ID)

	return c.JSON(engine.ActivateWorkflowResponse{
		WorkflowID:   registration.WorkflowID,
		IsActive:     true,
		TriggerURLs:  registration.TriggerURLs,
		RegisteredAt: registration.RegisteredAt,
	})
}

func (h *WorkflowHandler) DeactivateWorkflow(c *fiber.Ctx) error {
	id := kernel.WorkflowID(c.Params("id"))

	if err := h.workflowRepo.SetActive(c.Context(), id, false); err != nil {
		return err
	}

	removed := h.registry.RemoveActiveWorkflow(id)
	log.Printf("🔴 Workflow deactivated: %s (was registered: %v)", id, removed)

	return c.JSON(engine.ActivateWorkflowResponse{
		WorkflowID: id,
		IsActive:   false,
	})
}

// buildTriggerURLs derives the public entry points from the trigger
// nodes present in the graph.
func (h *WorkflowHandler) buildTriggerURLs(workflow *engine.Workflow) []string {
	var urls []string
	for _, node := range workflow.Nodes {
		switch node.Type {
		case engine.NodeTypeWebhookTrigger:
			urls = append(urls, fmt.Sprintf("%s/api/trigger/%s", h.baseURL, workflow.ID))
		case engine.NodeTypeChatTrigger:
			urls = append(urls, fmt.Sprintf("%s/api/chat/webhook/%s", h.baseURL, workflow.ID))
		case engine.NodeTypeTelegramTrigger:
			urls = append(urls, fmt.Sprintf("%s/api/telegram/webhook/%s", h.baseURL, workflow.ID))
		}
	}
	return urls
}

// ============================================================================
// Execution
// ============================================================================

func (h *WorkflowHandler) ExecuteWorkflow(c *fiber.Ctx) error {
	id := kernel.WorkflowID(c.Params("id"))

	var req engine.ExecuteWorkflowRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return engine.ErrInvalidWorkflowConfig().WithDetail("reason", "invalid request body")
		}
	}

	result, err := h.triggerHandler.HandleManualTrigger(c.Context(), id, req.TriggerData)
	if err != nil {
		return err
	}

	return c.JSON(engine.NewWorkflowExecutionResponse(result))
}

func (h *WorkflowHandler) HandleWebhookTrigger(c *fiber.Ctx) error {
	workflowID := kernel.WorkflowID(c.Params("workflowId"))

	var payload map[string]any
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return engine.ErrInvalidTrigger().WithDetail("reason", "payload must be a JSON object")
		}
	}

	event := engine.TriggerEvent{
		Type:       engine.TriggerTypeWebhook,
		WorkflowID: workflowID,
		Data:       payload,
		ReceivedAt: time.Now(),
	}

	if err := h.triggerHandler.HandleEvent(c.Context(), event); err != nil {
		return err
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status":      "accepted",
		"workflow_id": workflowID,
	})
}

// HandleTelegramTrigger accepts a Telegram bot update and feeds it to
// the workflow as a trigger event. Telegram expects a 200 quickly, so
// errors about inactive workflows still ack with a log line.
func (h *WorkflowHandler) HandleTelegramTrigger(c *fiber.Ctx) error {
	workflowID := kernel.WorkflowID(c.Params("workflowId"))

	var update map[string]any
	if err := c.BodyParser(&update); err != nil {
		return engine.ErrInvalidTrigger().WithDetail("reason", "update must be a JSON object")
	}

	event := engine.TriggerEvent{
		Type:       engine.TriggerTypeTelegramUpdate,
		WorkflowID: workflowID,
		Data:       update,
		ReceivedAt: time.Now(),
	}

	if err := h.triggerHandler.HandleEvent(c.Context(), event); err != nil {
		log.Printf("⚠️  Telegram update for %s dropped: %v", workflowID, err)
	}

	return c.SendStatus(fiber.StatusOK)
}

func (h *WorkflowHandler) GetExecutionLog(c *fiber.Ctx) error {
	id := kernel.WorkflowID(c.Params("id"))
	limit := c.QueryInt("limit", 0)

	// 404 for unknown workflows instead of an empty log
	if _, err := h.workflowRepo.FindByID(c.Context(), id); err != nil {
		return err
	}

	entries, err := h.logs.Recent(c.Context(), id, limit)
	if err != nil {
		return err
	}

	return c.JSON(engine.ExecutionLogResponse{
		WorkflowID: id,
		Entries:    entries,
	})
}

// ============================================================================
// Validation and Catalog
// ============================================================================

func (h *WorkflowHandler) ValidateWorkflow(c *fiber.Ctx) error {
	var req engine.ValidateWorkflowRequest
	if err := c.BodyParser(&req); err != nil {
		return engine.ErrInvalidWorkflowConfig().WithDetail("reason", "invalid request body")
	}

	workflow := engine.Workflow{
		Name:  "validation-draft",
		Nodes: req.Nodes,
		Edges: req.Edges,
	}

	resp := engine.ValidateWorkflowResponse{IsValid: true}
	if err := h.nodeRegistry.ValidateWorkflow(&workflow); err != nil {
		resp.IsValid = false
		resp.Errors = append(resp.Errors, errorMessage(err))
	}

	return c.JSON(resp)
}

func (h *WorkflowHandler) GetNodeCatalog(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"nodes": h.nodeRegistry.Catalog(),
	})
}

// ============================================================================
// Debug
// ============================================================================

func (h *WorkflowHandler) DebugWorkflows(c *fiber.Ctx) error {
	return c.JSON(engine.DebugWorkflowsResponse{
		Stats:     h.registry.GetWorkflowStats(),
		Workflows: h.registry.GetActiveWorkflows(),
	})
}

func (h *WorkflowHandler) DebugWorkflow(c *fiber.Ctx) error {
	id := kernel.WorkflowID(c.Params("id"))

	report, err := h.drift.Check(c.Context(), id)
	if err != nil {
		return err
	}

	registration, _ := h.registry.Get(id)

	var persisted *engine.Workflow
	if wf, err := h.workflowRepo.FindByID(c.Context(), id); err == nil {
		persisted = wf
	} else if !errx.IsType(err, errx.TypeNotFound) {
		return err
	}

	if registration == nil && persisted == nil {
		return engine.ErrWorkflowNotFound().WithDetail("workflow_id", id.String())
	}

	return c.JSON(engine.DebugWorkflowResponse{
		Registration: registration,
		Persisted:    persisted,
		Drift:        report,
	})
}

func (h *WorkflowHandler) ReconcileWorkflow(c *fiber.Ctx) error {
	id := kernel.WorkflowID(c.Params("id"))

	var triggerURLs []string
	if wf, err := h.workflowRepo.FindByID(c.Context(), id); err == nil {
		triggerURLs = h.buildTriggerURLs(wf)
	}

	resp, err := h.drift.Reconcile(c.Context(), id, triggerURLs)
	if err != nil {
		return err
	}

	log.Printf("🔧 Reconciled workflow %s: %s -> %s (%s)", id, resp.Before, resp.After, resp.Action)
	return c.JSON(resp)
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
