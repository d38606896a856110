package nodeexec

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbot-io/flowbot/engine"
)

func TestIfExecutorRoutesPorts(t *testing.T) {
	executor := NewIfExecutor()

	node := engine.Node{
		ID:   "gate",
		Type: engine.NodeTypeIf,
		Config: map[string]any{
			"field":    "intent",
			"operator": "eq",
			"value":    "buy",
		},
	}

	input := engine.FlatInput(map[string]any{"intent": "buy"})
	result, err := executor.Execute(context.Background(), node, input, testExecCtx(node))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "true", result.Output["__port"])
	assert.Equal(t, true, result.Output["matched"])

	input = engine.FlatInput(map[string]any{"intent": "browse"})
	result, err = executor.Execute(context.Background(), node, input, testExecCtx(node))
	require.NoError(t, err)
	assert.Equal(t, "false", result.Output["__port"])
}

func TestIfExecutorNumericComparison(t *testing.T) {
	executor := NewIfExecutor()

	node := engine.Node{
		ID:   "gate",
		Type: engine.NodeTypeIf,
		Config: map[string]any{
			"field":    "order.total",
			"operator": "gte",
			"value":    float64(100),
		},
	}

	input := engine.FlatInput(map[string]any{
		"order": map[string]any{"total": float64(150)},
	})
	result, err := executor.Execute(context.Background(), node, input, testExecCtx(node))
	require.NoError(t, err)
	assert.Equal(t, "true", result.Output["__port"])
}

func TestSwitchExecutorMapsCases(t *testing.T) {
	executor := NewSwitchExecutor()

	node := engine.Node{
		ID:   "router",
		Type: engine.NodeTypeSwitch,
		Config: map[string]any{
			"field": "language",
			"cases": map[string]any{
				"es": "spanish",
				"en": "english",
			},
			"default": "fallback",
		},
	}

	input := engine.FlatInput(map[string]any{"language": "es"})
	result, err := executor.Execute(context.Background(), node, input, testExecCtx(node))
	require.NoError(t, err)
	assert.Equal(t, "spanish", result.Output["__port"])

	input = engine.FlatInput(map[string]any{"language": "fr"})
	result, err = executor.Execute(context.Background(), node, input, testExecCtx(node))
	require.NoError(t, err)
	assert.Equal(t, "fallback", result.Output["__port"])
}

func TestFilterExecutorDropsWithoutFailing(t *testing.T) {
	executor := NewFilterExecutor()

	node := engine.Node{
		ID:   "filter",
		Type: engine.NodeTypeFilter,
		Config: map[string]any{
			"field":    "score",
			"operator": "gt",
			"value":    float64(5),
		},
	}

	input := engine.FlatInput(map[string]any{"score": float64(3)})
	result, err := executor.Execute(context.Background(), node, input, testExecCtx(node))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, false, result.Output["passed"])
	assert.Equal(t, true, result.Output["__halt"])

	input = engine.FlatInput(map[string]any{"score": float64(9)})
	result, err = executor.Execute(context.Background(), node, input, testExecCtx(node))
	require.NoError(t, err)
	assert.Equal(t, true, result.Output["passed"])
	_, halted := result.Output["__halt"]
	assert.False(t, halted)
}

func TestMergeExecutorCombines(t *testing.T) {
	executor := NewMergeExecutor()

	node := engine.Node{
		ID:     "join",
		Type:   engine.NodeTypeMerge,
		Config: map[string]any{"strategy": "combine"},
	}

	input := engine.NewCascadingInput([]engine.NodeOutput{
		{NodeID: "a", Order: 1, Data: map[string]any{"x": 1, "shared": "from-a"}},
		{NodeID: "b", Order: 2, Data: map[string]any{"y": 2, "shared": "from-b"}},
	})

	result, err := executor.Execute(context.Background(), node, input, testExecCtx(node))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Output["x"])
	assert.Equal(t, 2, result.Output["y"])
	assert.Equal(t, "from-b", result.Output["shared"], "later branch wins collisions")
	assert.Equal(t, 2, result.Output["merged_branches"])
}

func TestMergeExecutorResolvesTemplatedStrategy(t *testing.T) {
	executor := NewMergeExecutor()

	node := engine.Node{
		ID:     "join",
		Type:   engine.NodeTypeMerge,
		Config: map[string]any{"strategy": "{{pick}}"},
	}

	input := engine.NewCascadingInput([]engine.NodeOutput{
		{NodeID: "a", Order: 1, Data: map[string]any{"pick": "first", "x": 1}},
		{NodeID: "b", Order: 2, Data: map[string]any{"y": 2}},
	})

	result, err := executor.Execute(context.Background(), node, input, testExecCtx(node))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Output["x"])
	assert.NotContains(t, result.Output, "y", "first strategy keeps only the first branch")
}

func TestDelayExecutorSynchronousWait(t *testing.T) {
	executor := NewDelayExecutor(nil)

	node := engine.Node{
		ID:     "wait",
		Type:   engine.NodeTypeDelay,
		Config: map[string]any{"seconds": float64(1)},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// Cancelled context interrupts the wait
	result, err := executor.Execute(ctx, node, engine.FlatInput(nil), testExecCtx(node))
	require.Error(t, err)
	assert.False(t, result.Success)
}

func TestDelayExecutorResumedRunCompletesInstantly(t *testing.T) {
	executor := NewDelayExecutor(nil)

	node := engine.Node{
		ID:     "wait",
		Type:   engine.NodeTypeDelay,
		Config: map[string]any{"seconds": float64(600)},
	}

	input := engine.NewCascadingInput([]engine.NodeOutput{
		{NodeID: "continuation", Data: map[string]any{"__resumed": true}},
	})

	start := time.Now()
	result, err := executor.Execute(context.Background(), node, input, testExecCtx(node))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, true, result.Output["resumed"])
	assert.Less(t, time.Since(start), time.Second)
}

func TestDelayExecutorResolvesTemplatedSeconds(t *testing.T) {
	executor := NewDelayExecutor(nil)

	node := engine.Node{
		ID:     "wait",
		Type:   engine.NodeTypeDelay,
		Config: map[string]any{"seconds": "{{wait_seconds}}"},
	}

	input := engine.NewCascadingInput([]engine.NodeOutput{
		{NodeID: "upstream", Order: 1, Data: map[string]any{"wait_seconds": float64(600)}},
		{NodeID: "continuation", Order: 2, Data: map[string]any{"__resumed": true}},
	})

	result, err := executor.Execute(context.Background(), node, input, testExecCtx(node))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 600, result.Output["delayed_seconds"])
}
