package nodeexec

import (
	"context"
	"log"
	"time"

	"github.com/flowbot-io/flowbot/engine"
)

// resumeMarker is the synthetic input entry a continuation carries so
// the delay node completes instantly when the run is re-entered.
const resumeMarker = "__resumed"

// DelayExecutor pauses a branch. Short delays block the node goroutine;
// delays past the scheduler's async threshold park the run in Redis as
// a continuation and end the current run with the branch paused.
type DelayExecutor struct {
	scheduler engine.DelayScheduler
}

var _ engine.NodeExecutor = (*DelayExecutor)(nil)

func NewDelayExecutor(scheduler engine.DelayScheduler) *DelayExecutor {
	return &DelayExecutor{scheduler: scheduler}
}

func (e *DelayExecutor) Execute(ctx context.Context, node engine.Node, input engine.CascadingInput, execCtx *engine.ExecutionContext) (*engine.NodeResult, error) {
	startTime := time.Now()
	result := newNodeResult(node, startTime)

	resolved, err := execCtx.EvaluateConfig(node.Config, input)
	if err != nil {
		return failResult(result, startTime, "config resolution failed: %v", err), err
	}

	cfg, err := engine.ExtractDelayConfig(resolved)
	if err != nil {
		return failResult(result, startTime, "invalid delay config: %v", err), err
	}

	// A resumed run already waited
	if resumed, ok := input.LookupPath(resumeMarker); ok && resumed == true {
		result.Success = true
		result.Output["delayed_seconds"] = cfg.Seconds
		result.Output["resumed"] = true
		result.Duration = time.Since(startTime).Milliseconds()
		return result, nil
	}

	delay := cfg.Duration()

	if e.scheduler != nil && e.scheduler.ShouldUseAsync(delay) {
		continuation := &engine.WorkflowContinuation{
			Kind:         engine.ContinuationResumeRun,
			WorkflowID:   execCtx.Workflow.ID,
			ResumeNodeID: node.ID,
			Input: append(append([]engine.NodeOutput(nil), input.Entries...), engine.NodeOutput{
				NodeID: "continuation",
				Data:   map[string]any{resumeMarker: true},
			}),
			ScheduledFor: time.Now().Add(delay),
		}

		if err := e.scheduler.Schedule(ctx, continuation, delay); err != nil {
			return failResult(result, startTime, "failed to schedule delayed continuation: %v", err), err
		}

		log.Printf("⏸️  Delay node %s parked the run for %s", node.ID, delay)
		result.Success = true
		result.Output["delayed_seconds"] = cfg.Seconds
		result.Output["__paused"] = true
		result.Duration = time.Since(startTime).Milliseconds()
		return result, nil
	}

	select {
	case <-ctx.Done():
		return failResult(result, startTime, "delay interrupted: %v", ctx.Err()), ctx.Err()
	case <-time.After(delay):
	}

	result.Success = true
	result.Output["delayed_seconds"] = cfg.Seconds
	result.Duration = time.Since(startTime).Milliseconds()
	return result, nil
}

func (e *DelayExecutor) SupportsType(nodeType engine.NodeType) bool {
	return nodeType == engine.NodeTypeDelay
}

func (e *DelayExecutor) ValidateConfig(config map[string]any) error {
	_, err := engine.ExtractDelayConfig(config)
	return err
}
