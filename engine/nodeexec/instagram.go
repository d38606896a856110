package nodeexec

import (
	"context"
	"time"

	"github.com/flowbot-io/flowbot/channels"
	"github.com/flowbot-io/flowbot/channels/instagram"
	"github.com/flowbot-io/flowbot/engine"
)

type instagramSender interface {
	SendMessage(ctx context.Context, msg channels.OutgoingMessage) (*channels.SendReceipt, error)
}

// InstagramSendExecutor sends a direct message via the Graph API
type InstagramSendExecutor struct {
	clientFor func(accessToken string) instagramSender
}

var _ engine.NodeExecutor = (*InstagramSendExecutor)(nil)

func NewInstagramSendExecutor(clientOpts ...instagram.Option) *InstagramSendExecutor {
	return &InstagramSendExecutor{
		clientFor: func(accessToken string) instagramSender {
			return instagram.NewClient(accessToken, clientOpts...)
		},
	}
}

func NewInstagramSendExecutorWithClient(clientFor func(accessToken string) instagramSender) *InstagramSendExecutor {
	return &InstagramSendExecutor{clientFor: clientFor}
}

func (e *InstagramSendExecutor) Execute(ctx context.Context, node engine.Node, input engine.CascadingInput, execCtx *engine.ExecutionContext) (*engine.NodeResult, error) {
	startTime := time.Now()
	result := newNodeResult(node, startTime)

	resolved, err := execCtx.EvaluateConfig(node.Config, input)
	if err != nil {
		return failResult(result, startTime, "config resolution failed: %v", err), err
	}

	cfg, err := engine.ExtractInstagramSendConfig(resolved)
	if err != nil {
		result.Success = false
		result.Error = err.Error()
		result.Output["success"] = false
		result.Output["error"] = err.Error()
		result.Duration = time.Since(startTime).Milliseconds()
		return result, err
	}

	client := e.clientFor(cfg.AccessToken)
	receipt, err := client.SendMessage(ctx, channels.OutgoingMessage{
		RecipientID: cfg.RecipientID,
		Text:        cfg.Text,
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
	result.Output["recipient_id"] = cfg.RecipientID
	result.Output["channel"] = string(receipt.Channel)
	result.Duration = time.Since(startTime).Milliseconds()

	return result, nil
}

func (e *InstagramSendExecutor) SupportsType(nodeType engine.NodeType) bool {
	return nodeType == engine.NodeTypeInstagramSend
}

func (e *InstagramSendExecutor) ValidateConfig(config map[string]any) error {
	return nil
}
