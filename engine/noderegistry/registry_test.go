package noderegistry

import (
	"context"
	"testing"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbot-io/flowbot/engine"
)

type stubExecutor struct {
	nodeType    engine.NodeType
	validateErr error
}

func (s *stubExecutor) Execute(ctx context.Context, node engine.Node, input engine.CascadingInput, execCtx *engine.ExecutionContext) (*engine.NodeResult, error) {
	return &engine.NodeResult{NodeID: node.ID, Success: true}, nil
}

func (s *stubExecutor) SupportsType(nodeType engine.NodeType) bool {
	return nodeType == s.nodeType
}

func (s *stubExecutor) ValidateConfig(config map[string]any) error {
	return s.validateErr
}

func TestRegistryRegisterAndGet(t *testing.T) {
	registry := NewRegistry()

	err := registry.Register(NodeDescriptor{
		Type:     engine.NodeTypeHTTP,
		Category: engine.CategoryAction,
		Executor: &stubExecutor{nodeType: engine.NodeTypeHTTP},
	})
	require.NoError(t, err)

	desc, err := registry.Get(engine.NodeTypeHTTP)
	require.NoError(t, err)
	assert.Equal(t, engine.NodeTypeHTTP, desc.Type)
	assert.True(t, registry.Has(engine.NodeTypeHTTP))
}

func TestRegistryGetUnknownType(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Get(engine.NodeType("NOPE"))
	require.Error(t, err)
	assert.True(t, errx.IsType(err, errx.TypeValidation))
}

func TestRegistryRejectsMissingExecutor(t *testing.T) {
	registry := NewRegistry()

	err := registry.Register(NodeDescriptor{Type: engine.NodeTypeHTTP})
	require.Error(t, err)
}

func TestRegistryCatalogSorted(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(NodeDescriptor{
		Type:     engine.NodeTypeTelegramSend,
		Executor: &stubExecutor{nodeType: engine.NodeTypeTelegramSend},
	})
	registry.MustRegister(NodeDescriptor{
		Type:     engine.NodeTypeAIAgent,
		Executor: &stubExecutor{nodeType: engine.NodeTypeAIAgent},
	})

	catalog := registry.Catalog()
	require.Len(t, catalog, 2)
	assert.Equal(t, engine.NodeTypeAIAgent, catalog[0].Type)
	assert.Equal(t, engine.NodeTypeTelegramSend, catalog[1].Type)
}

func TestValidateNodeRequiredParameter(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(NodeDescriptor{
		Type:     engine.NodeTypeTelegramSend,
		Category: engine.CategoryAction,
		Parameters: []ParameterSchema{
			{Name: "bot_token", Required: true},
			{Name: "chat_id", Required: true},
			{Name: "parse_mode", Required: false},
		},
		Executor: &stubExecutor{nodeType: engine.NodeTypeTelegramSend},
	})

	node := engine.Node{
		ID:   "send-1",
		Type: engine.NodeTypeTelegramSend,
		Config: map[string]any{
			"bot_token": "123:abc",
		},
	}

	err := registry.ValidateNode(node)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat_id")

	node.Config["chat_id"] = "42"
	require.NoError(t, registry.ValidateNode(node))
}

func TestValidateWorkflowUnknownNodeType(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(NodeDescriptor{
		Type:     engine.NodeTypeChatTrigger,
		Category: engine.CategoryTrigger,
		Executor: &stubExecutor{nodeType: engine.NodeTypeChatTrigger},
	})

	workflow := &engine.Workflow{
		Name: "mystery flow",
		Nodes: []engine.Node{
			{ID: "trigger-1", Type: engine.NodeTypeChatTrigger},
			{ID: "mystery-1", Type: engine.NodeType("MYSTERY")},
		},
		Edges: []engine.Edge{{From: "trigger-1", To: "mystery-1"}},
	}

	err := registry.ValidateWorkflow(workflow)
	require.Error(t, err)
	assert.True(t, errx.IsType(err, errx.TypeValidation))
}
