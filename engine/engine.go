package engine

import (
	"time"

	"github.com/flowbot-io/flowbot/pkg/kernel"
)

// ============================================================================
// Workflow Entity
// ============================================================================

// Workflow is a saved node graph: what the editor produces and the
// executor consumes. Nodes and edges are frozen at save time and
// read-only during execution.
type Workflow struct {
	ID          kernel.WorkflowID `db:"id" json:"id"`
	OwnerID     kernel.UserID     `db:"owner_id" json:"owner_id"`
	Name        string            `db:"name" json:"name"`
	Description string            `db:"description" json:"description"`
	Nodes       []Node            `db:"nodes" json:"nodes"`
	Edges       []Edge            `db:"edges" json:"edges"`
	IsActive    bool              `db:"is_active" json:"is_active"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updated_at"`
}

// Node is a single step in the graph
type Node struct {
	ID      string         `json:"id"`
	Type    NodeType       `json:"type"`
	Label   string         `json:"label"`
	Config  map[string]any `json:"config"`
	Timeout *int           `json:"timeout,omitempty"` // seconds
}

// Edge is a directed connection between two node ids. Port names the
// originating output for multi-output nodes (switch branches).
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Port string `json:"port,omitempty"`
}

// NodeType tipo de nodo
type NodeType string

const (
	// Triggers
	NodeTypeChatTrigger     NodeType = "CHAT_TRIGGER"
	NodeTypeWebhookTrigger  NodeType = "WEBHOOK_TRIGGER"
	NodeTypeTelegramTrigger NodeType = "TELEGRAM_TRIGGER"

	// Actions
	NodeTypeTelegramSend  NodeType = "TELEGRAM_SEND"
	NodeTypeChatResponse  NodeType = "CHAT_RESPONSE"
	NodeTypeAIAgent       NodeType = "AI_AGENT"
	NodeTypeHTTP          NodeType = "HTTP"
	NodeTypeInstagramSend NodeType = "INSTAGRAM_SEND"
	NodeTypeLinkedInPost  NodeType = "LINKEDIN_POST"
	NodeTypeDelay         NodeType = "DELAY"

	// Logic
	NodeTypeIf     NodeType = "IF"
	NodeTypeSwitch NodeType = "SWITCH"
	NodeTypeFilter NodeType = "FILTER"
	NodeTypeMerge  NodeType = "MERGE"
)

// NodeCategory clase de nodo
type NodeCategory string

const (
	CategoryTrigger NodeCategory = "trigger"
	CategoryAction  NodeCategory = "action"
	CategoryLogic   NodeCategory = "logic"
)

var nodeCategories = map[NodeType]NodeCategory{
	NodeTypeChatTrigger:     CategoryTrigger,
	NodeTypeWebhookTrigger:  CategoryTrigger,
	NodeTypeTelegramTrigger: CategoryTrigger,
	NodeTypeTelegramSend:    CategoryAction,
	NodeTypeChatResponse:    CategoryAction,
	NodeTypeAIAgent:         CategoryAction,
	NodeTypeHTTP:            CategoryAction,
	NodeTypeInstagramSend:   CategoryAction,
	NodeTypeLinkedInPost:    CategoryAction,
	NodeTypeDelay:           CategoryAction,
	NodeTypeIf:              CategoryLogic,
	NodeTypeSwitch:          CategoryLogic,
	NodeTypeFilter:          CategoryLogic,
	NodeTypeMerge:           CategoryLogic,
}

// Category returns the node class, or "" for unknown types
func (t NodeType) Category() NodeCategory {
	return nodeCategories[t]
}

// IsTrigger reports whether the node type originates runs
func (t NodeType) IsTrigger() bool {
	return t.Category() == CategoryTrigger
}

// ============================================================================
// Trigger Event
// ============================================================================

// TriggerType tipo de evento que origina un run
type TriggerType string

const (
	TriggerTypeChatMessage    TriggerType = "CHAT_MESSAGE"
	TriggerTypeWebhook        TriggerType = "WEBHOOK"
	TriggerTypeTelegramUpdate TriggerType = "TELEGRAM_UPDATE"
	TriggerTypeManual         TriggerType = "MANUAL"
)

// nodeTypesByTrigger maps an incoming event to the node type that
// consumes it.
var nodeTypesByTrigger = map[TriggerType]NodeType{
	TriggerTypeChatMessage:    NodeTypeChatTrigger,
	TriggerTypeWebhook:        NodeTypeWebhookTrigger,
	TriggerTypeTelegramUpdate: NodeTypeTelegramTrigger,
}

// TriggerEvent is the normalized payload that starts a run
type TriggerEvent struct {
	Type       TriggerType       `json:"type"`
	WorkflowID kernel.WorkflowID `json:"workflow_id"`
	SessionID  kernel.SessionID  `json:"session_id,omitempty"`
	Data       map[string]any    `json:"data"`
	ReceivedAt time.Time         `json:"received_at"`
}

// NodeTypeFor returns the trigger node type that handles this event.
// Manual events match any trigger node.
func (e TriggerEvent) NodeTypeFor() (NodeType, bool) {
	t, ok := nodeTypesByTrigger[e.Type]
	return t, ok
}

// ============================================================================
// Execution Result
// ============================================================================

// RunStatus estado de un run
type RunStatus string

const (
	RunStatusPending   RunStatus = "PENDING"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusPartial   RunStatus = "PARTIAL"
)

// ExecutionResult resultado de la ejecución de un workflow
type ExecutionResult struct {
	RunID        kernel.RunID      `json:"run_id"`
	WorkflowID   kernel.WorkflowID `json:"workflow_id"`
	Status       RunStatus         `json:"status"`
	Success      bool              `json:"success"`
	Output       map[string]any    `json:"output,omitempty"`
	NodeResults  []NodeResult      `json:"node_results,omitempty"`
	Error        error             `json:"-"`
	ErrorMessage string            `json:"error,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
	Duration     int64             `json:"duration_ms"`
}

// NodeResult resultado de un nodo
type NodeResult struct {
	NodeID    string         `json:"node_id"`
	NodeLabel string         `json:"node_label"`
	NodeType  NodeType       `json:"node_type"`
	Success   bool           `json:"success"`
	Skipped   bool           `json:"skipped,omitempty"`
	Output    map[string]any `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
	Duration  int64          `json:"duration_ms"`
	Timestamp time.Time      `json:"timestamp"`
}

// NodeOutput is one entry of the cascading input handed to a
// downstream node: the ordered list of upstream outputs.
type NodeOutput struct {
	NodeID    string         `json:"node_id"`
	NodeLabel string         `json:"node_label"`
	NodeType  NodeType       `json:"node_type"`
	Order     int            `json:"order"`
	Data      map[string]any `json:"data"`
}

// ExecutionLogEntry is one line of the bounded per-workflow run log
type ExecutionLogEntry struct {
	RunID      kernel.RunID      `db:"run_id" json:"run_id"`
	WorkflowID kernel.WorkflowID `db:"workflow_id" json:"workflow_id"`
	Status     RunStatus         `db:"status" json:"status"`
	Message    string            `db:"message" json:"message"`
	Duration   int64             `db:"duration_ms" json:"duration_ms"`
	Timestamp  time.Time         `db:"created_at" json:"timestamp"`
}

// ============================================================================
// Domain Methods - Workflow
// ============================================================================

// IsValid verifica si el workflow es válido
func (w *Workflow) IsValid() bool {
	return w.Name != "" && len(w.Nodes) > 0
}

// Activate activa el workflow
func (w *Workflow) Activate() {
	w.IsActive = true
	w.UpdatedAt = time.Now()
}

// Deactivate desactiva el workflow
func (w *Workflow) Deactivate() {
	w.IsActive = false
	w.UpdatedAt = time.Now()
}

// GetNodeByID obtiene un nodo por ID
func (w *Workflow) GetNodeByID(nodeID string) *Node {
	for i := range w.Nodes {
		if w.Nodes[i].ID == nodeID {
			return &w.Nodes[i]
		}
	}
	return nil
}

// OutgoingEdges returns the edges leaving a node, in insertion order
func (w *Workflow) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range w.Edges {
		if e.From == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// IncomingEdges returns the edges arriving at a node, in insertion order
func (w *Workflow) IncomingEdges(nodeID string) []Edge {
	var in []Edge
	for _, e := range w.Edges {
		if e.To == nodeID {
			in = append(in, e)
		}
	}
	return in
}

// TriggerNodes returns the nodes able to originate a run
func (w *Workflow) TriggerNodes() []Node {
	var triggers []Node
	for _, n := range w.Nodes {
		if n.Type.IsTrigger() {
			triggers = append(triggers, n)
		}
	}
	return triggers
}

// FindTriggerNode locates the trigger node consuming the given event.
// Manual events fall back to the first trigger node.
func (w *Workflow) FindTriggerNode(event TriggerEvent) *Node {
	wanted, specific := event.NodeTypeFor()
	for i := range w.Nodes {
		if !w.Nodes[i].Type.IsTrigger() {
			continue
		}
		if !specific || w.Nodes[i].Type == wanted {
			return &w.Nodes[i]
		}
	}
	return nil
}

// ValidateStructure checks the graph invariants the editor promises:
// unique node ids, edges referencing existing nodes, no self-loops.
func (w *Workflow) ValidateStructure() error {
	if !w.IsValid() {
		return ErrInvalidWorkflowConfig().WithDetail("reason", "workflow needs a name and at least one node")
	}

	nodeIDs := make(map[string]bool, len(w.Nodes))
	for _, n := range w.Nodes {
		if n.ID == "" {
			return ErrInvalidWorkflowNode().WithDetail("reason", "node has no ID")
		}
		if nodeIDs[n.ID] {
			return ErrInvalidWorkflowNode().
				WithDetail("node_id", n.ID).
				WithDetail("reason", "duplicate node ID")
		}
		nodeIDs[n.ID] = true
	}

	for _, e := range w.Edges {
		if !nodeIDs[e.From] {
			return ErrInvalidWorkflowEdge().
				WithDetail("from", e.From).
				WithDetail("reason", "edge references non-existent source node")
		}
		if !nodeIDs[e.To] {
			return ErrInvalidWorkflowEdge().
				WithDetail("to", e.To).
				WithDetail("reason", "edge references non-existent target node")
		}
		if e.From == e.To {
			return ErrInvalidWorkflowEdge().
				WithDetail("node_id", e.From).
				WithDetail("reason", "self-loops are not supported")
		}
	}

	if len(w.TriggerNodes()) == 0 {
		return ErrInvalidWorkflowConfig().WithDetail("reason", "workflow has no trigger node")
	}

	return nil
}

// ============================================================================
// Domain Methods - ExecutionResult
// ============================================================================

// ResolveStatus derives the terminal state from the node results:
// COMPLETED when every reachable node succeeded, FAILED when the
// trigger itself could not run, PARTIAL otherwise.
func (r *ExecutionResult) ResolveStatus() {
	executed := 0
	failed := 0
	for _, nr := range r.NodeResults {
		if nr.Skipped {
			continue
		}
		executed++
		if !nr.Success {
			failed++
		}
	}

	switch {
	case executed == 0 || (len(r.NodeResults) > 0 && !r.NodeResults[0].Success && !r.NodeResults[0].Skipped):
		r.Status = RunStatusFailed
		r.Success = false
	case failed == 0:
		r.Status = RunStatusCompleted
		r.Success = true
	default:
		r.Status = RunStatusPartial
		r.Success = false
	}
}

// LogEntry condenses the result into one bounded-log line
func (r *ExecutionResult) LogEntry() ExecutionLogEntry {
	message := "run completed"
	if r.ErrorMessage != "" {
		message = r.ErrorMessage
	} else if r.Status == RunStatusPartial {
		message = "run completed with node failures"
	}

	return ExecutionLogEntry{
		RunID:      r.RunID,
		WorkflowID: r.WorkflowID,
		Status:     r.Status,
		Message:    message,
		Duration:   r.Duration,
		Timestamp:  r.StartedAt,
	}
}
