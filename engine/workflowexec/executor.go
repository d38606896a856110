package workflowexec

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/google/uuid"

	"github.com/flowbot-io/flowbot/engine"
	"github.com/flowbot-io/flowbot/engine/noderegistry"
	"github.com/flowbot-io/flowbot/pkg/kernel"
)

// ============================================================================
// Graph Executor
// ============================================================================

// GraphExecutor walks the workflow DAG breadth-first from the trigger
// node matched by the event. A node runs once all of its parents have
// settled; its input is the ordered list of successful parent outputs.
// One node failing never aborts the run: siblings still execute and
// only nodes whose every parent failed or was skipped get skipped.
type GraphExecutor struct {
	registry    *noderegistry.Registry
	resolver    engine.ExpressionEvaluator
	logs        engine.ExecutionLogRepository
	nodeTimeout time.Duration
	runTimeout  time.Duration
}

var _ engine.WorkflowExecutor = (*GraphExecutor)(nil)

type Options struct {
	NodeTimeout time.Duration
	RunTimeout  time.Duration
}

func NewGraphExecutor(
	registry *noderegistry.Registry,
	resolver engine.ExpressionEvaluator,
	logs engine.ExecutionLogRepository,
	opts Options,
) *GraphExecutor {
	if opts.NodeTimeout <= 0 {
		opts.NodeTimeout = 30 * time.Second
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 2 * time.Minute
	}
	return &GraphExecutor{
		registry:    registry,
		resolver:    resolver,
		logs:        logs,
		nodeTimeout: opts.NodeTimeout,
		runTimeout:  opts.RunTimeout,
	}
}

// ============================================================================
// Execute - Main workflow execution
// ============================================================================

func (e *GraphExecutor) Execute(
	ctx context.Context,
	workflow engine.Workflow,
	event engine.TriggerEvent,
) (*engine.ExecutionResult, error) {
	log.Printf("🚀 Starting workflow execution: %s", workflow.Name)

	startTime := time.Now()
	result := &engine.ExecutionResult{
		RunID:       kernel.NewRunID(uuid.NewString()),
		WorkflowID:  workflow.ID,
		Status:      engine.RunStatusRunning,
		Output:      make(map[string]any),
		NodeResults: []engine.NodeResult{},
		StartedAt:   startTime,
	}

	if err := e.ValidateWorkflow(ctx, workflow); err != nil {
		return nil, errx.Wrap(err, "workflow validation failed", errx.TypeValidation)
	}

	trigger := workflow.FindTriggerNode(event)
	if trigger == nil {
		return nil, engine.ErrNoTriggerNode().
			WithDetail("workflow_id", workflow.ID.String()).
			WithDetail("event_type", string(event.Type))
	}

	ctx, cancel := context.WithTimeout(ctx, e.runTimeout)
	defer cancel()

	execCtx := engine.NewExecutionContext(result.RunID, &workflow, e.resolver)

	if err := e.walk(ctx, &workflow, execCtx, result, trigger, engine.FlatInput(event.Data)); err != nil {
		return nil, err
	}

	e.finish(result, startTime)
	log.Printf("✅ Workflow execution completed: %s status=%s in %v", workflow.Name, result.Status, time.Since(startTime))

	return result, nil
}

// ============================================================================
// ResumeFrom - Continue a run after an async delay
// ============================================================================

// ResumeFrom re-enters the graph at a specific node with the upstream
// outputs that were saved when the run paused. It produces a fresh
// RunID: the bounded log records the resumed tail as its own run.
func (e *GraphExecutor) ResumeFrom(
	ctx context.Context,
	workflow engine.Workflow,
	startNodeID string,
	entries []engine.NodeOutput,
) (*engine.ExecutionResult, error) {
	log.Printf("🔄 Resuming workflow %s from node %s", workflow.Name, startNodeID)

	startTime := time.Now()
	result := &engine.ExecutionResult{
		RunID:       kernel.NewRunID(uuid.NewString()),
		WorkflowID:  workflow.ID,
		Status:      engine.RunStatusRunning,
		Output:      make(map[string]any),
		NodeResults: []engine.NodeResult{},
		StartedAt:   startTime,
	}

	start := workflow.GetNodeByID(startNodeID)
	if start == nil {
		return nil, engine.ErrNodeNotFound().WithDetail("node_id", startNodeID)
	}

	ctx, cancel := context.WithTimeout(ctx, e.runTimeout)
	defer cancel()

	execCtx := engine.NewExecutionContext(result.RunID, &workflow, e.resolver)
	for _, entry := range entries {
		execCtx.RecordOutput(entry.NodeID, entry.Data)
	}

	sortOutputs(entries)
	if err := e.walk(ctx, &workflow, execCtx, result, start, engine.NewCascadingInput(entries)); err != nil {
		return nil, err
	}

	// A resumed tail has no trigger node, so an empty result set means
	// the start node itself failed
	e.finish(result, startTime)
	log.Printf("✅ Workflow resume completed: %s status=%s in %v", workflow.Name, result.Status, time.Since(startTime))

	return result, nil
}

// ============================================================================
// Graph Walk
// ============================================================================

type nodeState struct {
	result *engine.NodeResult
	output engine.NodeOutput
	done   bool
}

// walk runs the start node with the given input, then settles every
// node reachable from it. A node is ready once every incoming edge
// from a reachable parent has settled. The frontier loop terminates
// because each pass settles at least one node; if it cannot, the
// remaining reachable nodes form a cycle.
func (e *GraphExecutor) walk(
	ctx context.Context,
	workflow *engine.Workflow,
	execCtx *engine.ExecutionContext,
	result *engine.ExecutionResult,
	start *engine.Node,
	startInput engine.CascadingInput,
) error {
	states := make(map[string]*nodeState)
	order := 0

	settle := func(node *engine.Node, nr *engine.NodeResult) {
		st := &nodeState{result: nr, done: true}
		if nr.Success {
			order++
			st.output = engine.NodeOutput{
				NodeID:    node.ID,
				NodeLabel: node.Label,
				NodeType:  node.Type,
				Order:     order,
				Data:      nr.Output,
			}
			execCtx.RecordOutput(node.ID, nr.Output)
		}
		states[node.ID] = st
		result.NodeResults = append(result.NodeResults, *nr)
	}

	startResult := e.runNode(ctx, start, startInput, execCtx)
	settle(start, startResult)

	if !startResult.Success {
		return nil
	}
	if paused, _ := startResult.Output["__paused"].(bool); paused {
		return nil
	}

	reachable := e.reachableFrom(workflow, start.ID)
	for {
		progressed := false
		pending := false

		for nodeID := range reachable {
			if st, ok := states[nodeID]; ok && st.done {
				continue
			}
			node := workflow.GetNodeByID(nodeID)
			if node == nil {
				continue
			}

			parents := e.reachableParents(workflow, nodeID, reachable)
			ready := true
			for _, p := range parents {
				if st, ok := states[p.from]; !ok || !st.done {
					ready = false
					break
				}
			}
			if !ready {
				pending = true
				continue
			}

			// Cascading input: outputs of parents that succeeded AND
			// routed toward this node, in execution order
			entries := make([]engine.NodeOutput, 0, len(parents))
			liveParents := 0
			for _, p := range parents {
				st := states[p.from]
				if !st.result.Success || st.result.Skipped {
					continue
				}
				if halted, _ := st.result.Output["__halt"].(bool); halted {
					continue
				}
				if paused, _ := st.result.Output["__paused"].(bool); paused {
					continue
				}
				if !e.portOpen(st.result, p.port) {
					continue
				}
				liveParents++
				entries = append(entries, st.output)
			}

			if liveParents == 0 {
				nr := &engine.NodeResult{
					NodeID:    node.ID,
					NodeLabel: node.Label,
					NodeType:  node.Type,
					Skipped:   true,
					Timestamp: time.Now(),
				}
				log.Printf("⏭️  Skipping node %s: no live upstream path", node.ID)
				settle(node, nr)
				progressed = true
				continue
			}

			sortOutputs(entries)
			nr := e.runNode(ctx, node, engine.NewCascadingInput(entries), execCtx)
			settle(node, nr)
			progressed = true
		}

		if !pending {
			break
		}
		if !progressed {
			return engine.ErrCyclicWorkflow().
				WithDetail("workflow_id", workflow.ID.String())
		}
	}

	return nil
}

func (e *GraphExecutor) finish(result *engine.ExecutionResult, startTime time.Time) {
	for _, nr := range result.NodeResults {
		if !nr.Success || nr.Skipped {
			continue
		}
		for key, value := range nr.Output {
			// Routing markers stay internal to the run
			if len(key) > 2 && key[:2] == "__" {
				continue
			}
			result.Output[key] = value
		}
	}

	result.Duration = time.Since(startTime).Milliseconds()
	result.ResolveStatus()
	if result.Status != engine.RunStatusCompleted {
		for _, nr := range result.NodeResults {
			if !nr.Success && !nr.Skipped {
				result.ErrorMessage = fmt.Sprintf("node %s failed: %s", nr.NodeID, nr.Error)
				result.Error = fmt.Errorf("%s", result.ErrorMessage)
				break
			}
		}
	}

	e.appendLog(result)
}

// ============================================================================
// Node Execution
// ============================================================================

func (e *GraphExecutor) runNode(
	ctx context.Context,
	node *engine.Node,
	input engine.CascadingInput,
	execCtx *engine.ExecutionContext,
) (nr *engine.NodeResult) {
	log.Printf("⚡ Executing node: %s (type: %s)", node.ID, node.Type)
	startTime := time.Now()

	// A panicking node poisons only itself
	defer func() {
		if r := recover(); r != nil {
			nr = &engine.NodeResult{
				NodeID:    node.ID,
				NodeLabel: node.Label,
				NodeType:  node.Type,
				Success:   false,
				Error:     fmt.Sprintf("node panicked: %v", r),
				Duration:  time.Since(startTime).Milliseconds(),
				Timestamp: startTime,
			}
			log.Printf("❌ Node %s panicked: %v", node.ID, r)
		}
	}()

	timeout := e.nodeTimeout
	if node.Timeout != nil && *node.Timeout > 0 {
		timeout = time.Duration(*node.Timeout) * time.Second
	}
	nodeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	executor, err := e.registry.ExecutorFor(node.Type)
	if err != nil {
		return &engine.NodeResult{
			NodeID:    node.ID,
			NodeLabel: node.Label,
			NodeType:  node.Type,
			Success:   false,
			Error:     err.Error(),
			Timestamp: startTime,
		}
	}

	nr, err = executor.Execute(nodeCtx, *node, input, execCtx.WithCurrent(node))
	if nr == nil {
		nr = &engine.NodeResult{NodeID: node.ID}
	}
	if nr.NodeID == "" {
		nr.NodeID = node.ID
	}
	if nr.NodeLabel == "" {
		nr.NodeLabel = node.Label
	}
	if nr.NodeType == "" {
		nr.NodeType = node.Type
	}
	nr.Duration = time.Since(startTime).Milliseconds()
	if nr.Timestamp.IsZero() {
		nr.Timestamp = startTime
	}

	if err != nil {
		nr.Success = false
		if nr.Error == "" {
			nr.Error = err.Error()
		}
		log.Printf("❌ Node %s failed: %s", node.ID, nr.Error)
	}

	return nr
}

// ============================================================================
// Graph Helpers
// ============================================================================

type parentEdge struct {
	from string
	port string
}

// reachableFrom collects every node reachable from the trigger
func (e *GraphExecutor) reachableFrom(workflow *engine.Workflow, startID string) map[string]bool {
	reachable := map[string]bool{startID: true}
	queue := []string{startID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, edge := range workflow.OutgoingEdges(current) {
			if !reachable[edge.To] {
				reachable[edge.To] = true
				queue = append(queue, edge.To)
			}
		}
	}
	return reachable
}

func (e *GraphExecutor) reachableParents(workflow *engine.Workflow, nodeID string, reachable map[string]bool) []parentEdge {
	var parents []parentEdge
	for _, edge := range workflow.IncomingEdges(nodeID) {
		if reachable[edge.From] {
			parents = append(parents, parentEdge{from: edge.From, port: edge.Port})
		}
	}
	return parents
}

// portOpen reports whether a parent's routing decision allows this
// edge. Logic nodes publish their chosen port under __port; plain
// nodes route every outgoing edge.
func (e *GraphExecutor) portOpen(parent *engine.NodeResult, edgePort string) bool {
	if edgePort == "" {
		return true
	}
	selected, ok := parent.Output["__port"].(string)
	if !ok {
		return true
	}
	return selected == edgePort
}

func sortOutputs(entries []engine.NodeOutput) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].Order < entries[j-1].Order; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

func (e *GraphExecutor) appendLog(result *engine.ExecutionResult) {
	if e.logs == nil {
		return
	}
	entry := result.LogEntry()
	if err := e.logs.Append(context.Background(), entry); err != nil {
		log.Printf("⚠️ Failed to append execution log for %s: %v", result.WorkflowID, err)
	}
}

// ============================================================================
// Validation
// ============================================================================

func (e *GraphExecutor) ValidateWorkflow(ctx context.Context, workflow engine.Workflow) error {
	return e.registry.ValidateWorkflow(&workflow)
}
