package nodeexec

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/flowbot-io/flowbot/channels"
	"github.com/flowbot-io/flowbot/channels/telegram"
	"github.com/flowbot-io/flowbot/engine"
)

// telegramSender is the slice of the telegram client this executor
// needs; tests inject a stub.
type telegramSender interface {
	SendMessage(ctx context.Context, msg channels.OutgoingMessage) (*channels.SendReceipt, error)
}

// TelegramSendExecutor sends a message through the Telegram Bot API.
// Credentials live in the node config, resolved per run, so one
// workflow can template the bot token from upstream data.
type TelegramSendExecutor struct {
	clientFor func(botToken string) telegramSender
}

var _ engine.NodeExecutor = (*TelegramSendExecutor)(nil)

func NewTelegramSendExecutor(clientOpts ...telegram.Option) *TelegramSendExecutor {
	return &TelegramSendExecutor{
		clientFor: func(botToken string) telegramSender {
			return telegram.NewClient(botToken, clientOpts...)
		},
	}
}

// NewTelegramSendExecutorWithClient is used by tests
func NewTelegramSendExecutorWithClient(clientFor func(botToken string) telegramSender) *TelegramSendExecutor {
	return &TelegramSendExecutor{clientFor: clientFor}
}

func (e *TelegramSendExecutor) Execute(ctx context.Context, node engine.Node, input engine.CascadingInput, execCtx *engine.ExecutionContext) (*engine.NodeResult, error) {
	startTime := time.Now()
	result := newNodeResult(node, startTime)

	resolved, err := execCtx.EvaluateConfig(node.Config, input)
	if err != nil {
		return failResult(result, startTime, "config resolution failed: %v", err), err
	}

	cfg, reason := decodeTelegramConfig(resolved)
	if reason != "" {
		// Missing credentials fail the node before any network call
		result.Success = false
		result.Error = reason
		result.Output["success"] = false
		result.Output["error"] = reason
		result.Duration = time.Since(startTime).Milliseconds()
		log.Printf("❌ Telegram node %s rejected: %s", node.ID, reason)
		return result, engine.ErrInvalidWorkflowNode().
			WithDetail("node_id", node.ID).
			WithDetail("reason", reason)
	}

	client := e.clientFor(cfg.BotToken)
	receipt, err := client.SendMessage(ctx, channels.OutgoingMessage{
		RecipientID: cfg.ChatID,
		Text:        cfg.Text,
		ParseMode:   cfg.ParseMode,
		Metadata:    map[string]any{"disable_notification": cfg.DisableNotification},
	})
	if err != nil {
		result.Success = false
		result.Error = err.Error()
		result.Output["success"] = false
		result.Output["error"] = err.Error()
		result.Duration = time.Since(startTime).Milliseconds()
		return result, err
	}

	result.Success = true
	result.Output["success"] = true
	result.Output["message_id"] = receipt.MessageID
	result.Output["chat_id"] = cfg.ChatID
	result.Output["channel"] = string(receipt.Channel)
	result.Duration = time.Since(startTime).Milliseconds()

	return result, nil
}

func (e *TelegramSendExecutor) SupportsType(nodeType engine.NodeType) bool {
	return nodeType == engine.NodeTypeTelegramSend
}

func (e *TelegramSendExecutor) ValidateConfig(config map[string]any) error {
	// Required fields are often templated; only shape errors are
	// checkable before resolution
	var cfg engine.TelegramSendConfig
	data, err := json.Marshal(engine.CoerceStringFields(config, &cfg))
	if err != nil {
		return engine.ErrInvalidWorkflowNode().WithDetail("reason", "config is not serializable")
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return engine.ErrInvalidWorkflowNode().WithDetail("reason", err.Error())
	}
	return nil
}

// decodeTelegramConfig decodes without the full validator so the
// executor can report per-field messages after resolution
func decodeTelegramConfig(resolved map[string]any) (*engine.TelegramSendConfig, string) {
	var cfg engine.TelegramSendConfig
	data, err := json.Marshal(engine.CoerceStringFields(resolved, &cfg))
	if err != nil {
		return nil, "config is not serializable"
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, "config has invalid field types"
	}

	switch {
	case cfg.BotToken == "":
		return nil, "Bot API Token is required"
	case cfg.ChatID == "":
		return nil, "Chat ID is required"
	case cfg.Text == "":
		return nil, "Message text is required"
	}
	return &cfg, ""
}
