package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatInput() CascadingInput {
	return FlatInput(map[string]any{
		"message": map[string]any{
			"chat": map[string]any{"id": float64(42)},
			"text": "hola",
		},
		"user": map[string]any{"name": "Ann"},
	})
}

func TestResolveDotPath(t *testing.T) {
	r := NewTemplateResolver(PolicyKeepLiteral)

	out, err := r.Resolve("chat {{message.chat.id}} from {{user.name}}", chatInput())
	require.NoError(t, err)
	assert.Equal(t, "chat 42 from Ann", out)
}

func TestResolveWithoutExpressionsIsPassthrough(t *testing.T) {
	r := NewTemplateResolver(PolicyKeepLiteral)

	out, err := r.Resolve("plain text", chatInput())
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)
}

func TestResolveUnresolvedKeepsLiteral(t *testing.T) {
	r := NewTemplateResolver(PolicyKeepLiteral)

	out, err := r.Resolve("hello {{missing.path}}", chatInput())
	require.NoError(t, err)
	assert.Equal(t, "hello {{missing.path}}", out)
}

func TestResolveUnresolvedEmptyPolicy(t *testing.T) {
	r := NewTemplateResolver(PolicyEmpty)

	out, err := r.Resolve("hello {{missing.path}}!", chatInput())
	require.NoError(t, err)
	assert.Equal(t, "hello !", out)
}

func TestResolveUnresolvedErrorPolicy(t *testing.T) {
	r := NewTemplateResolver(PolicyError)

	_, err := r.Resolve("hello {{missing.path}}", chatInput())
	require.Error(t, err)
}

func TestResolveObjectEncodesJSON(t *testing.T) {
	r := NewTemplateResolver(PolicyKeepLiteral)

	out, err := r.Resolve("payload: {{message.chat}}", chatInput())
	require.NoError(t, err)
	assert.Equal(t, `payload: {"id":42}`, out)
}

func TestEvaluateWholeExpressionKeepsType(t *testing.T) {
	r := NewTemplateResolver(PolicyKeepLiteral)

	out, err := r.Evaluate("{{message.chat}}", chatInput())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": float64(42)}, out)
}

func TestEvaluateConfigMap(t *testing.T) {
	r := NewTemplateResolver(PolicyKeepLiteral)

	config := map[string]any{
		"chat_id": "{{message.chat.id}}",
		"text":    "hi {{user.name}}",
		"nested":  map[string]any{"static": true},
	}

	out, err := r.Evaluate(config, chatInput())
	require.NoError(t, err)

	resolved, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(42), resolved["chat_id"])
	assert.Equal(t, "hi Ann", resolved["text"])
	assert.Equal(t, map[string]any{"static": true}, resolved["nested"])
}

func TestCascadeLaterEntryWins(t *testing.T) {
	r := NewTemplateResolver(PolicyKeepLiteral)

	input := NewCascadingInput([]NodeOutput{
		{NodeID: "node-1", NodeType: NodeTypeHTTP, Order: 1, Data: map[string]any{"status": "stale"}},
		{NodeID: "node-2", NodeType: NodeTypeHTTP, Order: 2, Data: map[string]any{"status": "fresh"}},
	})

	out, err := r.Resolve("{{status}}", input)
	require.NoError(t, err)
	assert.Equal(t, "fresh", out)
}

func TestLookupByNodeID(t *testing.T) {
	r := NewTemplateResolver(PolicyKeepLiteral)

	input := NewCascadingInput([]NodeOutput{
		{NodeID: "fetch-1", NodeType: NodeTypeHTTP, Order: 1, Data: map[string]any{"status": float64(200)}},
	})

	out, err := r.Resolve("{{fetch-1.status}}", input)
	require.NoError(t, err)
	assert.Equal(t, "200", out)
}

func TestDeepSearchResultResponse(t *testing.T) {
	r := NewTemplateResolver(PolicyKeepLiteral)

	input := NewCascadingInput([]NodeOutput{
		{NodeID: "agent-1", NodeLabel: "AI Agent", NodeType: NodeTypeAIAgent, Order: 1, Data: map[string]any{
			"output": map[string]any{
				"result": map[string]any{"response": "claro que sí"},
			},
		}},
	})

	out, err := r.Resolve("{{result.response}}", input)
	require.NoError(t, err)
	assert.Equal(t, "claro que sí", out)
}

func TestCELExpression(t *testing.T) {
	r := NewTemplateResolver(PolicyKeepLiteral)

	input := FlatInput(map[string]any{"amount": float64(15)})

	out, err := r.Resolve("over: {{amount > 10.0}}", input)
	require.NoError(t, err)
	assert.Equal(t, "over: true", out)
}

func TestParseUnresolvedPolicy(t *testing.T) {
	policy, err := ParseUnresolvedPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyKeepLiteral, policy)

	policy, err = ParseUnresolvedPolicy("error")
	require.NoError(t, err)
	assert.Equal(t, PolicyError, policy)

	_, err = ParseUnresolvedPolicy("whatever")
	require.Error(t, err)
}
