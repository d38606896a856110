package engine

import "github.com/flowbot-io/flowbot/pkg/kernel"

// ============================================================================
// Execution Context
// ============================================================================

// NodeState is the executor's view of one node during a run
type NodeState struct {
	Type   NodeType       `json:"type"`
	Label  string         `json:"label"`
	Config map[string]any `json:"config"`
	Output map[string]any `json:"output,omitempty"`
}

// WorkflowMeta is the slice of workflow data nodes may read
type WorkflowMeta struct {
	ID       kernel.WorkflowID `json:"id"`
	Name     string            `json:"name"`
	IsActive bool              `json:"is_active"`
}

// ExecutionContext is the per-run object handed to every node
// invocation: the node whose config is being resolved, the map of all
// nodes in the graph, and the workflow metadata. It is created fresh
// per run and never shared across concurrent runs.
type ExecutionContext struct {
	RunID    kernel.RunID
	Current  *Node
	Nodes    map[string]NodeState
	Workflow WorkflowMeta

	resolver ExpressionEvaluator
}

// NewExecutionContext builds the context for one run
func NewExecutionContext(runID kernel.RunID, wf *Workflow, resolver ExpressionEvaluator) *ExecutionContext {
	nodes := make(map[string]NodeState, len(wf.Nodes))
	for _, n := range wf.Nodes {
		nodes[n.ID] = NodeState{
			Type:   n.Type,
			Label:  n.Label,
			Config: n.Config,
		}
	}

	return &ExecutionContext{
		RunID: runID,
		Nodes: nodes,
		Workflow: WorkflowMeta{
			ID:       wf.ID,
			Name:     wf.Name,
			IsActive: wf.IsActive,
		},
		resolver: resolver,
	}
}

// WithCurrent returns a shallow copy focused on the given node. The
// node map and workflow metadata are shared; only Current changes.
func (c *ExecutionContext) WithCurrent(node *Node) *ExecutionContext {
	next := *c
	next.Current = node
	return &next
}

// RecordOutput stores a finished node's output for downstream lookups
func (c *ExecutionContext) RecordOutput(nodeID string, output map[string]any) {
	state, ok := c.Nodes[nodeID]
	if !ok {
		return
	}
	state.Output = output
	c.Nodes[nodeID] = state
}

// EvaluateExpression resolves a single template string against the
// cascading input. Pure: no I/O, never panics.
func (c *ExecutionContext) EvaluateExpression(template string, input CascadingInput) (string, error) {
	return c.resolver.Resolve(template, input)
}

// EvaluateConfig resolves every templated field of a node config,
// keeping types for whole-string expressions.
func (c *ExecutionContext) EvaluateConfig(config map[string]any, input CascadingInput) (map[string]any, error) {
	if config == nil {
		return map[string]any{}, nil
	}

	evaluated, err := c.resolver.Evaluate(config, input)
	if err != nil {
		return nil, err
	}

	resolved, ok := evaluated.(map[string]any)
	if !ok {
		return nil, ErrInvalidWorkflowNode().WithDetail("reason", "config evaluation did not return a map")
	}

	return resolved, nil
}
