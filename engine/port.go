package engine

import (
	"context"

	"github.com/flowbot-io/flowbot/pkg/kernel"
)

// ============================================================================
// Repository Interfaces
// ============================================================================

// WorkflowRepository persistencia de workflows
type WorkflowRepository interface {
	// CRUD básico
	Save(ctx context.Context, wf Workflow) error
	FindByID(ctx context.Context, id kernel.WorkflowID) (*Workflow, error)
	Delete(ctx context.Context, id kernel.WorkflowID) error

	// Búsquedas
	FindByOwner(ctx context.Context, ownerID kernel.UserID) ([]*Workflow, error)
	FindActive(ctx context.Context) ([]*Workflow, error)

	// List con paginación
	List(ctx context.Context, req WorkflowListRequest) (WorkflowListResponse, error)

	// Activation flag
	SetActive(ctx context.Context, id kernel.WorkflowID, isActive bool) error
}

// ExecutionLogRepository is the bounded per-workflow run log: newest
// first, capped (the cap is the store's, not the caller's, concern).
type ExecutionLogRepository interface {
	Append(ctx context.Context, entry ExecutionLogEntry) error
	Recent(ctx context.Context, workflowID kernel.WorkflowID, limit int) ([]ExecutionLogEntry, error)
}

// ============================================================================
// Executor Interfaces
// ============================================================================

// NodeExecutor is the uniform contract every node type implements.
// Execute must resolve templated config through the ExecutionContext
// first, fail fast on empty required fields without side effects, and
// map external failures into the result rather than panicking.
type NodeExecutor interface {
	Execute(ctx context.Context, node Node, input CascadingInput, execCtx *ExecutionContext) (*NodeResult, error)

	// SupportsType reports whether this executor handles the type
	SupportsType(nodeType NodeType) bool

	// ValidateConfig checks required fields and simple invariants.
	// Pure, no I/O; runs against the raw (unresolved) config.
	ValidateConfig(config map[string]any) error
}

// WorkflowExecutor ejecuta workflows
type WorkflowExecutor interface {
	// Execute runs the graph reachable from the trigger node matched
	// by the event.
	Execute(ctx context.Context, workflow Workflow, event TriggerEvent) (*ExecutionResult, error)

	// ValidateWorkflow checks structure plus per-node config
	ValidateWorkflow(ctx context.Context, workflow Workflow) error
}

// ============================================================================
// Registry Interfaces
// ============================================================================

// ActiveWorkflowRegistry tracks which workflows are registered with
// the executor, distinct from the persisted active flag. The two can
// drift; drift is surfaced, never silently healed.
type ActiveWorkflowRegistry interface {
	Activate(wf Workflow, triggerURLs []string) ActiveWorkflowRegistration
	RemoveActiveWorkflow(id kernel.WorkflowID) bool
	Get(id kernel.WorkflowID) (*ActiveWorkflowRegistration, bool)
	GetActiveWorkflows() []ActiveWorkflowRegistration
	GetWorkflowStats() RegistryStats
}
