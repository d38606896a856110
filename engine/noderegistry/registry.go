package noderegistry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/flowbot-io/flowbot/engine"
)

// ============================================================================
// Node Descriptor
// ============================================================================

// NodeDescriptor describes an executable node type in the catalog
type NodeDescriptor struct {
	Type        engine.NodeType     `json:"type"`
	DisplayName string              `json:"display_name"`
	Description string              `json:"description"`
	Icon        string              `json:"icon,omitempty"`
	Category    engine.NodeCategory `json:"category"`
	Parameters  []ParameterSchema   `json:"parameters"`
	Executor    engine.NodeExecutor `json:"-"`
}

type ParameterSchema struct {
	Name         string   `json:"name"`
	Label        string   `json:"label"`
	Type         string   `json:"type"` // string, number, boolean, select, textarea, json
	Required     bool     `json:"required"`
	DefaultValue any      `json:"default_value,omitempty"`
	Description  string   `json:"description,omitempty"`
	Placeholder  string   `json:"placeholder,omitempty"`
	Options      []string `json:"options,omitempty"`
}

// ============================================================================
// Registry
// ============================================================================

// Registry is the catalog of node types the engine knows how to run
type Registry struct {
	mu          sync.RWMutex
	descriptors map[engine.NodeType]NodeDescriptor
}

func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[engine.NodeType]NodeDescriptor),
	}
}

// Register adds a node descriptor. Registering the same type twice replaces
// the previous descriptor.
func (r *Registry) Register(desc NodeDescriptor) error {
	if desc.Type == "" {
		return engine.ErrUnknownNodeType().WithDetail("reason", "node type cannot be empty")
	}
	if desc.Executor == nil {
		return engine.ErrUnknownNodeType().WithDetail("reason", fmt.Sprintf("node type %s has no executor", desc.Type))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors[desc.Type] = desc
	return nil
}

// MustRegister registers a descriptor and panics on error. Intended for
// wiring at startup where a bad descriptor is a programming mistake.
func (r *Registry) MustRegister(desc NodeDescriptor) {
	if err := r.Register(desc); err != nil {
		panic(err)
	}
}

// Get returns the descriptor for a node type
func (r *Registry) Get(nodeType engine.NodeType) (NodeDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, ok := r.descriptors[nodeType]
	if !ok {
		return NodeDescriptor{}, engine.ErrUnknownNodeType().WithDetail("node_type", string(nodeType))
	}
	return desc, nil
}

// ExecutorFor returns the executor for a node type
func (r *Registry) ExecutorFor(nodeType engine.NodeType) (engine.NodeExecutor, error) {
	desc, err := r.Get(nodeType)
	if err != nil {
		return nil, err
	}
	return desc.Executor, nil
}

// Has reports whether the registry knows a node type
func (r *Registry) Has(nodeType engine.NodeType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.descriptors[nodeType]
	return ok
}

// Catalog returns all registered descriptors sorted by type
func (r *Registry) Catalog() []NodeDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	catalog := make([]NodeDescriptor, 0, len(r.descriptors))
	for _, desc := range r.descriptors {
		catalog = append(catalog, desc)
	}
	sort.Slice(catalog, func(i, j int) bool {
		return catalog[i].Type < catalog[j].Type
	})
	return catalog
}

// ============================================================================
// Validation
// ============================================================================

// ValidateNode checks that a workflow node references a known type and that
// its config carries every required parameter
func (r *Registry) ValidateNode(node engine.Node) error {
	desc, err := r.Get(node.Type)
	if err != nil {
		return err
	}

	for _, param := range desc.Parameters {
		if !param.Required {
			continue
		}
		value, ok := node.Config[param.Name]
		if !ok || value == nil || value == "" {
			return engine.ErrInvalidWorkflowNode().
				WithDetail("node_id", node.ID).
				WithDetail("reason", fmt.Sprintf("required parameter %q is missing", param.Name))
		}
	}

	if desc.Executor != nil {
		if err := desc.Executor.ValidateConfig(node.Config); err != nil {
			return err
		}
	}

	return nil
}

// ValidateWorkflow validates every node in a workflow against the catalog
func (r *Registry) ValidateWorkflow(workflow *engine.Workflow) error {
	if err := workflow.ValidateStructure(); err != nil {
		return err
	}
	for _, node := range workflow.Nodes {
		if err := r.ValidateNode(node); err != nil {
			return err
		}
	}
	return nil
}
