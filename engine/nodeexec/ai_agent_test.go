package nodeexec

import (
	"context"
	"testing"

	"github.com/Abraxas-365/craftable/ai/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbot-io/flowbot/engine"
)

func TestAIAgentUsesUpstreamMessage(t *testing.T) {
	var gotMessages []llm.Message
	executor := NewAIAgentExecutorWithCaller(func(ctx context.Context, cfg *engine.AIAgentConfig, messages []llm.Message) (string, map[string]any, error) {
		gotMessages = messages
		return "claro, te ayudo", map[string]any{"tokens_used": 12}, nil
	})

	node := engine.Node{
		ID:    "agent-1",
		Type:  engine.NodeTypeAIAgent,
		Label: "AI Agent",
		Config: map[string]any{
			"model":         "gpt-4o-mini",
			"system_prompt": "Eres un asistente de ventas",
		},
	}

	input := engine.FlatInput(map[string]any{"message": "necesito precios"})
	result, err := executor.Execute(context.Background(), node, input, testExecCtx(node))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "claro, te ayudo", result.Output["response"])
	assert.Equal(t, "claro, te ayudo", result.Output["ai_response"])
	assert.Equal(t, "gpt-4o-mini", result.Output["model"])
	require.Len(t, gotMessages, 2)
}

func TestAIAgentPrefersConfiguredPrompt(t *testing.T) {
	executor := NewAIAgentExecutorWithCaller(func(ctx context.Context, cfg *engine.AIAgentConfig, messages []llm.Message) (string, map[string]any, error) {
		return "generado", nil, nil
	})

	node := engine.Node{
		ID:   "agent-1",
		Type: engine.NodeTypeAIAgent,
		Config: map[string]any{
			"model":         "gpt-4o-mini",
			"system_prompt": "Eres un redactor",
			"prompt":        "Escribe un post sobre {{topic}}",
		},
	}

	input := engine.FlatInput(map[string]any{"topic": "cafés de especialidad"})
	result, err := executor.Execute(context.Background(), node, input, testExecCtx(node))
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestAIAgentFailsWithoutAnyPrompt(t *testing.T) {
	executor := NewAIAgentExecutorWithCaller(func(ctx context.Context, cfg *engine.AIAgentConfig, messages []llm.Message) (string, map[string]any, error) {
		t.Fatal("LLM must not be called")
		return "", nil, nil
	})

	node := engine.Node{
		ID:   "agent-1",
		Type: engine.NodeTypeAIAgent,
		Config: map[string]any{
			"model":         "gpt-4o-mini",
			"system_prompt": "Eres un asistente",
		},
	}

	result, err := executor.Execute(context.Background(), node, engine.FlatInput(nil), testExecCtx(node))
	require.Error(t, err)
	assert.False(t, result.Success)
}
