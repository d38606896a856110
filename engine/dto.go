package engine

import (
	"fmt"
	"time"

	"github.com/Abraxas-365/craftable/storex"
	"github.com/flowbot-io/flowbot/pkg/kernel"
)

// ============================================================================
// Workflow DTOs
// ============================================================================

type CreateWorkflowRequest struct {
	OwnerID     kernel.UserID `json:"owner_id" validate:"required"`
	Name        string        `json:"name" validate:"required,min=2"`
	Description string        `json:"description,omitempty"`
	Nodes       []Node        `json:"nodes" validate:"required,min=1"`
	Edges       []Edge        `json:"edges,omitempty"`
}

type UpdateWorkflowRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Nodes       *[]Node `json:"nodes,omitempty"`
	Edges       *[]Edge `json:"edges,omitempty"`
}

type ExecuteWorkflowRequest struct {
	TriggerData map[string]any `json:"trigger_data,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type WorkflowResponse struct {
	Workflow Workflow `json:"workflow"`
}

type WorkflowListRequest struct {
	storex.PaginationOptions
	OwnerID  kernel.UserID `json:"owner_id,omitempty"`
	IsActive *bool         `json:"is_active,omitempty"`
	Search   string        `json:"search,omitempty"`
}

func (wlr WorkflowListRequest) GetOffset() int {
	return (wlr.Page - 1) * wlr.PageSize
}

type WorkflowListResponse = storex.Paginated[Workflow]

type WorkflowExecutionResponse struct {
	RunID      kernel.RunID      `json:"run_id"`
	WorkflowID kernel.WorkflowID `json:"workflow_id"`
	Status     RunStatus         `json:"status"`
	Success    bool              `json:"success"`
	Output     map[string]any    `json:"output,omitempty"`
	Error      string            `json:"error,omitempty"`
	Nodes      []NodeResult      `json:"nodes,omitempty"`
	Duration   string            `json:"duration,omitempty"`
}

func NewWorkflowExecutionResponse(result *ExecutionResult) WorkflowExecutionResponse {
	return WorkflowExecutionResponse{
		RunID:      result.RunID,
		WorkflowID: result.WorkflowID,
		Status:     result.Status,
		Success:    result.Success,
		Output:     result.Output,
		Error:      result.ErrorMessage,
		Nodes:      result.NodeResults,
		Duration:   fmt.Sprintf("%dms", result.Duration),
	}
}

// ============================================================================
// Validation DTOs
// ============================================================================

type ValidateWorkflowRequest struct {
	Nodes []Node `json:"nodes" validate:"required,min=1"`
	Edges []Edge `json:"edges,omitempty"`
}

type ValidateWorkflowResponse struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ============================================================================
// Activation DTOs
// ============================================================================

type ActivateWorkflowResponse struct {
	WorkflowID   kernel.WorkflowID `json:"workflow_id"`
	IsActive     bool              `json:"is_active"`
	TriggerURLs  []string          `json:"trigger_urls,omitempty"`
	RegisteredAt time.Time         `json:"registered_at"`
}

// ============================================================================
// Debug DTOs
// ============================================================================

type DebugWorkflowsResponse struct {
	Stats     RegistryStats                `json:"stats"`
	Workflows []ActiveWorkflowRegistration `json:"workflows"`
}

type DebugWorkflowResponse struct {
	Registration *ActiveWorkflowRegistration `json:"registration,omitempty"`
	Persisted    *Workflow                   `json:"persisted,omitempty"`
	Drift        DriftReport                 `json:"drift"`
}

type ReconcileResponse struct {
	WorkflowID kernel.WorkflowID `json:"workflow_id"`
	Before     DriftStatus       `json:"before"`
	After      DriftStatus       `json:"after"`
	Action     string            `json:"action"`
}

// ============================================================================
// Execution Log DTOs
// ============================================================================

type ExecutionLogResponse struct {
	WorkflowID kernel.WorkflowID   `json:"workflow_id"`
	Entries    []ExecutionLogEntry `json:"entries"`
}
