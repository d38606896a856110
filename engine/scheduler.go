package engine

import (
	"context"
	"time"

	"github.com/flowbot-io/flowbot/pkg/kernel"
)

// ============================================================================
// Delayed Continuations
// ============================================================================

// ContinuationKind what a scheduled continuation resumes
type ContinuationKind string

const (
	// ContinuationResumeRun resumes a paused workflow run after a
	// delay node.
	ContinuationResumeRun ContinuationKind = "RESUME_RUN"

	// ContinuationChatResponse delivers a delayed bot message to a
	// chat session.
	ContinuationChatResponse ContinuationKind = "CHAT_RESPONSE"
)

// WorkflowContinuation is the serialized state a delayed execution
// resumes from.
type WorkflowContinuation struct {
	ID           string            `json:"id"`
	Kind         ContinuationKind  `json:"kind"`
	WorkflowID   kernel.WorkflowID `json:"workflow_id,omitempty"`
	SessionID    kernel.SessionID  `json:"session_id,omitempty"`
	ResumeNodeID string            `json:"resume_node_id,omitempty"`
	Input        []NodeOutput      `json:"input,omitempty"`
	Payload      map[string]any    `json:"payload,omitempty"`
	ScheduledFor time.Time         `json:"scheduled_for"`
	CreatedAt    time.Time         `json:"created_at"`
}

// ContinuationHandler is invoked by the scheduler worker when a
// continuation comes due.
type ContinuationHandler func(ctx context.Context, continuation *WorkflowContinuation) error

// DelayScheduler schedules workflow continuations. Short delays run
// synchronously inside the node; anything above the async threshold is
// persisted and resumed by the worker.
type DelayScheduler interface {
	Schedule(ctx context.Context, continuation *WorkflowContinuation, delay time.Duration) error
	ShouldUseAsync(duration time.Duration) bool
	StartWorker(ctx context.Context)
	StopWorker()
}
