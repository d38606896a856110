package nodeexec

import (
	"context"
	"log"
	"time"

	"github.com/Abraxas-365/craftable/ai/llm"
	"github.com/Abraxas-365/craftable/errx"

	"github.com/flowbot-io/flowbot/engine"
)

// llmCaller abstracts the chat call so tests can stub the provider
type llmCaller func(ctx context.Context, cfg *engine.AIAgentConfig, messages []llm.Message) (string, map[string]any, error)

// AIAgentExecutor generates a reply with an LLM
type AIAgentExecutor struct {
	call llmCaller
}

var _ engine.NodeExecutor = (*AIAgentExecutor)(nil)

func NewAIAgentExecutor() *AIAgentExecutor {
	return &AIAgentExecutor{call: callLLM}
}

// NewAIAgentExecutorWithCaller is used by tests to avoid real provider
// calls
func NewAIAgentExecutorWithCaller(call llmCaller) *AIAgentExecutor {
	return &AIAgentExecutor{call: call}
}

func (e *AIAgentExecutor) Execute(ctx context.Context, node engine.Node, input engine.CascadingInput, execCtx *engine.ExecutionContext) (*engine.NodeResult, error) {
	startTime := time.Now()
	result := newNodeResult(node, startTime)

	resolved, err := execCtx.EvaluateConfig(node.Config, input)
	if err != nil {
		return failResult(result, startTime, "config resolution failed: %v", err), err
	}

	cfg, err := engine.ExtractAIAgentConfig(resolved)
	if err != nil {
		return failResult(result, startTime, "invalid AI agent config: %v", err), err
	}

	userMessage := cfg.Prompt
	if userMessage == "" {
		userMessage = e.extractUserMessage(input)
	}
	if userMessage == "" {
		return failResult(result, startTime, "no prompt or upstream message to send"), engine.ErrNodeExecutionFailed().
			WithDetail("node_id", node.ID).
			WithDetail("reason", "no prompt or upstream message to send")
	}

	log.Printf("🤖 AI Agent '%s' processing with model: %s", node.Label, cfg.Model)

	messages := []llm.Message{
		llm.NewSystemMessage(cfg.SystemPrompt),
		llm.NewUserMessage(userMessage),
	}

	responseText, metadata, err := e.call(ctx, cfg, messages)
	if err != nil {
		return failResult(result, startTime, "AI execution failed: %v", err), err
	}

	result.Success = true
	result.Output["response"] = responseText
	result.Output["ai_response"] = responseText
	result.Output["model"] = cfg.Model
	result.Output["provider"] = cfg.Provider
	for key, value := range metadata {
		result.Output[key] = value
	}
	result.Duration = time.Since(startTime).Milliseconds()

	log.Printf("✅ AI Agent '%s' completed in %dms", node.Label, result.Duration)
	return result, nil
}

func (e *AIAgentExecutor) SupportsType(nodeType engine.NodeType) bool {
	return nodeType == engine.NodeTypeAIAgent
}

func (e *AIAgentExecutor) ValidateConfig(config map[string]any) error {
	_, err := engine.ExtractAIAgentConfig(config)
	return err
}

// extractUserMessage digs the user's text out of the cascading input:
// the trigger payload's message field first, then an upstream AI
// response.
func (e *AIAgentExecutor) extractUserMessage(input engine.CascadingInput) string {
	for _, path := range []string{"message", "text", "response"} {
		if value, ok := input.LookupPath(path); ok {
			if s, ok := value.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func callLLM(ctx context.Context, cfg *engine.AIAgentConfig, messages []llm.Message) (string, map[string]any, error) {
	client := cfg.GetLLMClient()

	response, err := client.Chat(ctx, messages, cfg.GetLLMOptions()...)
	if err != nil {
		return "", nil, errx.Wrap(err, "LLM call failed", errx.TypeInternal)
	}

	metadata := map[string]any{
		"tokens_used": map[string]any{
			"prompt":     response.Usage.PromptTokens,
			"completion": response.Usage.CompletionTokens,
			"total":      response.Usage.TotalTokens,
		},
	}

	return response.Message.Content, metadata, nil
}
