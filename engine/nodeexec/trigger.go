package nodeexec

import (
	"context"
	"log"
	"time"

	"github.com/flowbot-io/flowbot/engine"
)

// TriggerExecutor handles every trigger node type. Triggers do not
// call out anywhere: they normalize the event payload into the first
// node output of the run so downstream nodes can template against it.
type TriggerExecutor struct{}

var _ engine.NodeExecutor = (*TriggerExecutor)(nil)

func NewTriggerExecutor() *TriggerExecutor {
	return &TriggerExecutor{}
}

func (e *TriggerExecutor) Execute(ctx context.Context, node engine.Node, input engine.CascadingInput, execCtx *engine.ExecutionContext) (*engine.NodeResult, error) {
	startTime := time.Now()

	result := &engine.NodeResult{
		NodeID:    node.ID,
		NodeLabel: node.Label,
		NodeType:  node.Type,
		Timestamp: startTime,
		Output:    make(map[string]any),
	}

	payload := input.SearchMap()
	for key, value := range payload {
		result.Output[key] = value
	}
	result.Output["trigger_type"] = string(node.Type)
	result.Success = true
	result.Duration = time.Since(startTime).Milliseconds()

	log.Printf("🔔 Trigger node %s fired with %d payload keys", node.ID, len(payload))
	return result, nil
}

func (e *TriggerExecutor) SupportsType(nodeType engine.NodeType) bool {
	return nodeType.IsTrigger()
}

func (e *TriggerExecutor) ValidateConfig(config map[string]any) error {
	return nil
}
