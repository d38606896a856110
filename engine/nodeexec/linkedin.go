package nodeexec

import (
	"context"
	"time"

	"github.com/flowbot-io/flowbot/channels"
	"github.com/flowbot-io/flowbot/channels/linkedin"
	"github.com/flowbot-io/flowbot/engine"
)

type linkedinPublisher interface {
	Publish(ctx context.Context, post linkedin.PostRequest) (*channels.SendReceipt, error)
}

// LinkedInPostExecutor publishes a UGC post
type LinkedInPostExecutor struct {
	clientFor func(accessToken string) linkedinPublisher
}

var _ engine.NodeExecutor = (*LinkedInPostExecutor)(nil)

func NewLinkedInPostExecutor(clientOpts ...linkedin.Option) *LinkedInPostExecutor {
	return &LinkedInPostExecutor{
		clientFor: func(accessToken string) linkedinPublisher {
			return linkedin.NewClient(accessToken, clientOpts...)
		},
	}
}

func NewLinkedInPostExecutorWithClient(clientFor func(accessToken string) linkedinPublisher) *LinkedInPostExecutor {
	return &LinkedInPostExecutor{clientFor: clientFor}
}

func (e *LinkedInPostExecutor) Execute(ctx context.Context, node engine.Node, input engine.CascadingInput, execCtx *engine.ExecutionContext) (*engine.NodeResult, error) {
	startTime := time.Now()
	result := newNodeResult(node, startTime)

	resolved, err := execCtx.EvaluateConfig(node.Config, input)
	if err != nil {
		return failResult(result, startTime, "config resolution failed: %v", err), err
	}

	cfg, err := engine.ExtractLinkedInPostConfig(resolved)
	if err != nil {
		result.Success = false
		result.Error = err.Error()
		result.Output["success"] = false
		result.Output["error"] = err.Error()
		result.Duration = time.Since(startTime).Milliseconds()
		return result, err
	}

	client := e.clientFor(cfg.AccessToken)
	receipt, err := client.Publish(ctx, linkedin.PostRequest{
		AuthorURN:  cfg.AuthorURN,
		Text:       cfg.Text,
		Visibility: cfg.Visibility,
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
	result.Output["post_urn"] = receipt.MessageID
	result.Output["channel"] = string(receipt.Channel)
	result.Duration = time.Since(startTime).Milliseconds()

	return result, nil
}

func (e *LinkedInPostExecutor) SupportsType(nodeType engine.NodeType) bool {
	return nodeType == engine.NodeTypeLinkedInPost
}

func (e *LinkedInPostExecutor) ValidateConfig(config map[string]any) error {
	return nil
}
