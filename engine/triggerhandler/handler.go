package triggerhandler

import (
	"context"
	"log"

	"github.com/flowbot-io/flowbot/engine"
	"github.com/flowbot-io/flowbot/pkg/kernel"
)

// TriggerHandler routes incoming events to registered workflows. Only
// workflows present in the active registry receive events; the
// persisted active flag on its own is not enough.
type TriggerHandler struct {
	registry         engine.ActiveWorkflowRegistry
	workflowRepo     engine.WorkflowRepository
	workflowExecutor engine.WorkflowExecutor
}

func NewTriggerHandler(
	registry engine.ActiveWorkflowRegistry,
	workflowRepo engine.WorkflowRepository,
	workflowExecutor engine.WorkflowExecutor,
) *TriggerHandler {
	return &TriggerHandler{
		registry:         registry,
		workflowRepo:     workflowRepo,
		workflowExecutor: workflowExecutor,
	}
}

// ============================================================================
// Event Dispatch
// ============================================================================

// HandleEvent fires a workflow for an external event. Execution is
// asynchronous so webhook callers get their ack immediately.
func (h *TriggerHandler) HandleEvent(ctx context.Context, event engine.TriggerEvent) error {
	log.Printf("🔔 Handling trigger: type=%s, workflow=%s", event.Type, event.WorkflowID)

	registration, ok := h.registry.Get(event.WorkflowID)
	if !ok {
		return engine.ErrWorkflowInactive().
			WithDetail("workflow_id", event.WorkflowID.String())
	}

	workflow := workflowFromRegistration(registration)
	if workflow.FindTriggerNode(event) == nil {
		return engine.ErrNoTriggerNode().
			WithDetail("workflow_id", event.WorkflowID.String()).
			WithDetail("event_type", string(event.Type))
	}

	// Detach from the request context: the caller's HTTP request
	// finishes long before the run does
	go func() {
		log.Printf("▶️  Executing workflow: %s", workflow.Name)

		result, err := h.workflowExecutor.Execute(context.Background(), workflow, event)
		if err != nil {
			log.Printf("❌ Workflow %s execution failed: %v", workflow.Name, err)
			return
		}

		log.Printf("✅ Workflow %s executed (status=%s, nodes=%d)",
			workflow.Name, result.Status, len(result.NodeResults))
	}()

	return nil
}

// HandleManualTrigger runs a workflow synchronously regardless of its
// activation state. Used by the execute endpoint and by operators
// testing a draft workflow.
func (h *TriggerHandler) HandleManualTrigger(
	ctx context.Context,
	workflowID kernel.WorkflowID,
	triggerData map[string]any,
) (*engine.ExecutionResult, error) {
	workflow, err := h.workflowRepo.FindByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	event := engine.TriggerEvent{
		Type:       engine.TriggerTypeManual,
		WorkflowID: workflowID,
		Data:       triggerData,
	}

	result, err := h.workflowExecutor.Execute(ctx, *workflow, event)
	if err != nil {
		return nil, err
	}

	log.Printf("✅ Manual workflow executed: %s (status=%s)", workflow.Name, result.Status)
	return result, nil
}

func workflowFromRegistration(registration *engine.ActiveWorkflowRegistration) engine.Workflow {
	return engine.Workflow{
		ID:       registration.WorkflowID,
		Name:     registration.Name,
		IsActive: registration.IsActive,
		Nodes:    registration.Nodes,
		Edges:    registration.Edges,
	}
}
