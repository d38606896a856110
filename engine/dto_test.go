package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowbot-io/flowbot/pkg/kernel"
)

func TestWorkflowExecutionResponseFormatsDuration(t *testing.T) {
	result := &ExecutionResult{
		RunID:      kernel.RunID("run-1"),
		WorkflowID: kernel.WorkflowID("wf-1"),
		Status:     RunStatusCompleted,
		Success:    true,
		Duration:   1234,
	}

	resp := NewWorkflowExecutionResponse(result)
	assert.Equal(t, "1234ms", resp.Duration)
}

func TestWorkflowExecutionResponseZeroDuration(t *testing.T) {
	resp := NewWorkflowExecutionResponse(&ExecutionResult{Status: RunStatusFailed})
	assert.Equal(t, "0ms", resp.Duration)
}
