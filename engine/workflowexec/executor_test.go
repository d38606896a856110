package workflowexec

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/uuid"

	"github.com/flowbot-io/flowbot/engine"
	"github.com/flowbot-io/flowbot/engine/noderegistry"
	"github.com/flowbot-io/flowbot/pkg/kernel"
)

// scriptedExecutor runs nodes according to a per-node script: fail,
// panic, emit a port, or echo its input entries.
type scriptedExecutor struct {
	failNodes  map[string]bool
	panicNodes map[string]bool
	ports      map[string]string
	seenInputs map[string]engine.CascadingInput
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{
		failNodes:  map[string]bool{},
		panicNodes: map[string]bool{},
		ports:      map[string]string{},
		seenInputs: map[string]engine.CascadingInput{},
	}
}

func (s *scriptedExecutor) Execute(ctx context.Context, node engine.Node, input engine.CascadingInput, execCtx *engine.ExecutionContext) (*engine.NodeResult, error) {
	s.seenInputs[node.ID] = input

	if s.panicNodes[node.ID] {
		panic("scripted panic in " + node.ID)
	}
	if s.failNodes[node.ID] {
		return &engine.NodeResult{
			NodeID:  node.ID,
			Success: false,
			Error:   "scripted failure",
		}, engine.ErrNodeExecutionFailed().WithDetail("node_id", node.ID)
	}

	output := map[string]any{"ran": node.ID}
	if port, ok := s.ports[node.ID]; ok {
		output["__port"] = port
	}
	return &engine.NodeResult{NodeID: node.ID, Success: true, Output: output}, nil
}

func (s *scriptedExecutor) SupportsType(nodeType engine.NodeType) bool { return true }
func (s *scriptedExecutor) ValidateConfig(config map[string]any) error { return nil }

type memoryLogRepo struct {
	entries []engine.ExecutionLogEntry
}

func (m *memoryLogRepo) Append(ctx context.Context, entry engine.ExecutionLogEntry) error {
	m.entries = append([]engine.ExecutionLogEntry{entry}, m.entries...)
	return nil
}

func (m *memoryLogRepo) Recent(ctx context.Context, workflowID kernel.WorkflowID, limit int) ([]engine.ExecutionLogEntry, error) {
	if limit > len(m.entries) {
		limit = len(m.entries)
	}
	return m.entries[:limit], nil
}

func chatEvent(wfID kernel.WorkflowID) engine.TriggerEvent {
	return engine.TriggerEvent{
		Type:       engine.TriggerTypeChatMessage,
		WorkflowID: wfID,
		Data:       map[string]any{"message": "hola"},
		ReceivedAt: time.Now(),
	}
}

func diamondWorkflow() engine.Workflow {
	return engine.Workflow{
		ID:   kernel.NewWorkflowID(uuid.NewString()),
		Name: "diamond",
		Nodes: []engine.Node{
			{ID: "trigger", Type: engine.NodeTypeChatTrigger, Label: "Chat Trigger"},
			{ID: "b", Type: engine.NodeTypeHTTP, Label: "Call B"},
			{ID: "c", Type: engine.NodeTypeHTTP, Label: "Call C"},
			{ID: "d", Type: engine.NodeTypeChatResponse, Label: "Respond"},
		},
		Edges: []engine.Edge{
			{From: "trigger", To: "b"},
			{From: "trigger", To: "c"},
			{From: "b", To: "d"},
			{From: "c", To: "d"},
		},
	}
}

func newTestExecutor(exec engine.NodeExecutor, logs engine.ExecutionLogRepository, types ...engine.NodeType) *GraphExecutor {
	registry := noderegistry.NewRegistry()
	for _, nodeType := range types {
		registry.MustRegister(noderegistry.NodeDescriptor{Type: nodeType, Executor: exec})
	}
	resolver := engine.NewTemplateResolver(engine.PolicyKeepLiteral)
	return NewGraphExecutor(registry, resolver, logs, Options{})
}

func TestExecuteHappyPath(t *testing.T) {
	exec := newScriptedExecutor()
	e := newTestExecutor(exec, nil,
		engine.NodeTypeChatTrigger, engine.NodeTypeHTTP, engine.NodeTypeChatResponse)

	wf := diamondWorkflow()
	result, err := e.Execute(context.Background(), wf, chatEvent(wf.ID))
	require.NoError(t, err)

	assert.Equal(t, engine.RunStatusCompleted, result.Status)
	assert.True(t, result.Success)
	assert.Len(t, result.NodeResults, 4)
	assert.False(t, result.RunID.IsEmpty())

	// d received both parents, ordered
	input := exec.seenInputs["d"]
	require.Len(t, input.Entries, 2)
	assert.Less(t, input.Entries[0].Order, input.Entries[1].Order)
}

func TestExecuteNodeIsolation(t *testing.T) {
	exec := newScriptedExecutor()
	exec.failNodes["b"] = true
	e := newTestExecutor(exec, nil,
		engine.NodeTypeChatTrigger, engine.NodeTypeHTTP, engine.NodeTypeChatResponse)

	wf := diamondWorkflow()
	result, err := e.Execute(context.Background(), wf, chatEvent(wf.ID))
	require.NoError(t, err)

	// b failed but c still ran, and d ran on c's output alone
	assert.Equal(t, engine.RunStatusPartial, result.Status)
	assert.False(t, result.Success)

	byID := map[string]engine.NodeResult{}
	for _, nr := range result.NodeResults {
		byID[nr.NodeID] = nr
	}
	assert.False(t, byID["b"].Success)
	assert.True(t, byID["c"].Success)
	assert.True(t, byID["d"].Success)
	assert.False(t, byID["d"].Skipped)

	input := exec.seenInputs["d"]
	require.Len(t, input.Entries, 1)
	assert.Equal(t, "c", input.Entries[0].NodeID)
}

func TestExecuteSkipsWhenAllParentsFailed(t *testing.T) {
	exec := newScriptedExecutor()
	exec.failNodes["b"] = true
	exec.failNodes["c"] = true
	e := newTestExecutor(exec, nil,
		engine.NodeTypeChatTrigger, engine.NodeTypeHTTP, engine.NodeTypeChatResponse)

	wf := diamondWorkflow()
	result, err := e.Execute(context.Background(), wf, chatEvent(wf.ID))
	require.NoError(t, err)

	assert.Equal(t, engine.RunStatusPartial, result.Status)

	byID := map[string]engine.NodeResult{}
	for _, nr := range result.NodeResults {
		byID[nr.NodeID] = nr
	}
	assert.True(t, byID["d"].Skipped)
	_, dRan := exec.seenInputs["d"]
	assert.False(t, dRan)
}

func TestExecuteTriggerFailureIsFatal(t *testing.T) {
	exec := newScriptedExecutor()
	exec.failNodes["trigger"] = true
	e := newTestExecutor(exec, nil,
		engine.NodeTypeChatTrigger, engine.NodeTypeHTTP, engine.NodeTypeChatResponse)

	wf := diamondWorkflow()
	result, err := e.Execute(context.Background(), wf, chatEvent(wf.ID))
	require.NoError(t, err)

	assert.Equal(t, engine.RunStatusFailed, result.Status)
	assert.False(t, result.Success)
	assert.Len(t, result.NodeResults, 1)
	assert.NotEmpty(t, result.ErrorMessage)
}

func TestExecutePanicPoisonsOnlyTheNode(t *testing.T) {
	exec := newScriptedExecutor()
	exec.panicNodes["b"] = true
	e := newTestExecutor(exec, nil,
		engine.NodeTypeChatTrigger, engine.NodeTypeHTTP, engine.NodeTypeChatResponse)

	wf := diamondWorkflow()
	result, err := e.Execute(context.Background(), wf, chatEvent(wf.ID))
	require.NoError(t, err)

	assert.Equal(t, engine.RunStatusPartial, result.Status)

	byID := map[string]engine.NodeResult{}
	for _, nr := range result.NodeResults {
		byID[nr.NodeID] = nr
	}
	assert.False(t, byID["b"].Success)
	assert.Contains(t, byID["b"].Error, "panicked")
	assert.True(t, byID["c"].Success)
}

func TestExecutePortRouting(t *testing.T) {
	exec := newScriptedExecutor()
	exec.ports["gate"] = "true"
	e := newTestExecutor(exec, nil,
		engine.NodeTypeChatTrigger, engine.NodeTypeIf, engine.NodeTypeHTTP)

	wf := engine.Workflow{
		ID:   kernel.NewWorkflowID(uuid.NewString()),
		Name: "routed",
		Nodes: []engine.Node{
			{ID: "trigger", Type: engine.NodeTypeChatTrigger, Label: "Chat Trigger"},
			{ID: "gate", Type: engine.NodeTypeIf, Label: "Gate"},
			{ID: "yes", Type: engine.NodeTypeHTTP, Label: "Yes branch"},
			{ID: "no", Type: engine.NodeTypeHTTP, Label: "No branch"},
		},
		Edges: []engine.Edge{
			{From: "trigger", To: "gate"},
			{From: "gate", To: "yes", Port: "true"},
			{From: "gate", To: "no", Port: "false"},
		},
	}

	result, err := e.Execute(context.Background(), wf, chatEvent(wf.ID))
	require.NoError(t, err)

	byID := map[string]engine.NodeResult{}
	for _, nr := range result.NodeResults {
		byID[nr.NodeID] = nr
	}
	assert.True(t, byID["yes"].Success)
	assert.True(t, byID["no"].Skipped)
	// The skipped branch never counts against the run status
	assert.Equal(t, engine.RunStatusCompleted, result.Status)
}

func TestExecuteNoMatchingTrigger(t *testing.T) {
	exec := newScriptedExecutor()
	e := newTestExecutor(exec, nil,
		engine.NodeTypeChatTrigger, engine.NodeTypeHTTP, engine.NodeTypeChatResponse)

	wf := diamondWorkflow()
	event := engine.TriggerEvent{
		Type: engine.TriggerTypeTelegramUpdate,
		Data: map[string]any{},
	}

	_, err := e.Execute(context.Background(), wf, event)
	require.Error(t, err)
}

func TestExecuteAppendsRunLog(t *testing.T) {
	exec := newScriptedExecutor()
	logs := &memoryLogRepo{}
	e := newTestExecutor(exec, logs,
		engine.NodeTypeChatTrigger, engine.NodeTypeHTTP, engine.NodeTypeChatResponse)

	wf := diamondWorkflow()
	result, err := e.Execute(context.Background(), wf, chatEvent(wf.ID))
	require.NoError(t, err)

	require.Len(t, logs.entries, 1)
	assert.Equal(t, result.RunID, logs.entries[0].RunID)
	assert.Equal(t, engine.RunStatusCompleted, logs.entries[0].Status)
}
