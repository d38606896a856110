package nodeexec

import (
	"context"
	"log"
	"time"

	"github.com/flowbot-io/flowbot/chat"
	"github.com/flowbot-io/flowbot/engine"
	"github.com/flowbot-io/flowbot/pkg/kernel"
)

// ChatResponseExecutor delivers the bot's reply into the chat session
// the run was triggered from: it lands in the message history and in
// the pending queue the widget polls. A configured delay parks the
// reply in the scheduler instead.
type ChatResponseExecutor struct {
	store ChatResponseStore
}

// ChatResponseStore is implemented by the chat session store
type ChatResponseStore interface {
	RecordBotResponse(ctx context.Context, sessionID kernel.SessionID, content string, responseType string, metadata map[string]any) (*chat.ChatMessage, error)
	ScheduleBotResponse(ctx context.Context, sessionID kernel.SessionID, content string, responseType string, delay time.Duration) error
}

var _ engine.NodeExecutor = (*ChatResponseExecutor)(nil)

func NewChatResponseExecutor(store ChatResponseStore) *ChatResponseExecutor {
	return &ChatResponseExecutor{store: store}
}

func (e *ChatResponseExecutor) Execute(ctx context.Context, node engine.Node, input engine.CascadingInput, execCtx *engine.ExecutionContext) (*engine.NodeResult, error) {
	startTime := time.Now()
	result := newNodeResult(node, startTime)

	resolved, err := execCtx.EvaluateConfig(node.Config, input)
	if err != nil {
		return failResult(result, startTime, "config resolution failed: %v", err), err
	}

	cfg, err := engine.ExtractChatResponseConfig(resolved)
	if err != nil {
		return failResult(result, startTime, "invalid chat response config: %v", err), err
	}

	sessionID := e.extractSessionID(input)
	if sessionID.IsEmpty() {
		reason := "no chat session in run input"
		return failResult(result, startTime, "%s", reason), engine.ErrNodeExecutionFailed().
			WithDetail("node_id", node.ID).
			WithDetail("reason", reason)
	}

	metadata := cfg.Metadata
	if len(cfg.Buttons) > 0 {
		if metadata == nil {
			metadata = make(map[string]any)
		}
		metadata["buttons"] = cfg.Buttons
	}

	if delay := cfg.GetDelay(); delay > 0 {
		if err := e.store.ScheduleBotResponse(ctx, sessionID, cfg.Content, cfg.Type, delay); err != nil {
			return failResult(result, startTime, "failed to schedule chat response: %v", err), err
		}
		log.Printf("⏸️  Chat response for session %s scheduled in %s", sessionID, delay)
		result.Success = true
		result.Output["scheduled"] = true
		result.Output["delay_seconds"] = int(delay.Seconds())
		result.Output["session_id"] = sessionID.String()
		result.Duration = time.Since(startTime).Milliseconds()
		return result, nil
	}

	if _, err := e.store.RecordBotResponse(ctx, sessionID, cfg.Content, cfg.Type, metadata); err != nil {
		return failResult(result, startTime, "failed to record chat response: %v", err), err
	}

	result.Success = true
	result.Output["response"] = cfg.Content
	result.Output["session_id"] = sessionID.String()
	result.Duration = time.Since(startTime).Milliseconds()

	log.Printf("💬 Chat response queued for session %s", sessionID)
	return result, nil
}

func (e *ChatResponseExecutor) SupportsType(nodeType engine.NodeType) bool {
	return nodeType == engine.NodeTypeChatResponse
}

func (e *ChatResponseExecutor) ValidateConfig(config map[string]any) error {
	return nil
}

func (e *ChatResponseExecutor) extractSessionID(input engine.CascadingInput) kernel.SessionID {
	if value, ok := input.LookupPath("session_id"); ok {
		if s, ok := value.(string); ok {
			return kernel.SessionID(s)
		}
	}
	return kernel.SessionID("")
}
