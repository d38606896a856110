package nodeexec

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/flowbot-io/flowbot/engine"
)

// ============================================================================
// Shared Comparison
// ============================================================================

// compare applies one of the condition operators against a resolved
// field value. Values are coerced to float64 for the ordering
// operators and to string for equality and contains.
func compare(value any, operator string, expected any, found bool) (bool, error) {
	switch operator {
	case "exists":
		return found && value != nil, nil
	case "eq":
		return toComparable(value) == toComparable(expected), nil
	case "neq":
		return toComparable(value) != toComparable(expected), nil
	case "contains":
		return strings.Contains(toComparable(value), toComparable(expected)), nil
	case "gt", "gte", "lt", "lte":
		left, lok := toFloat(value)
		right, rok := toFloat(expected)
		if !lok || !rok {
			return false, fmt.Errorf("operator %s needs numeric operands", operator)
		}
		switch operator {
		case "gt":
			return left > right, nil
		case "gte":
			return left >= right, nil
		case "lt":
			return left < right, nil
		default:
			return left <= right, nil
		}
	}
	return false, fmt.Errorf("unknown operator: %s", operator)
}

func toComparable(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ============================================================================
// If Executor
// ============================================================================

// IfExecutor routes the run down the "true" or "false" port
type IfExecutor struct{}

var _ engine.NodeExecutor = (*IfExecutor)(nil)

func NewIfExecutor() *IfExecutor { return &IfExecutor{} }

func (e *IfExecutor) Execute(ctx context.Context, node engine.Node, input engine.CascadingInput, execCtx *engine.ExecutionContext) (*engine.NodeResult, error) {
	startTime := time.Now()
	result := newNodeResult(node, startTime)

	resolved, err := execCtx.EvaluateConfig(node.Config, input)
	if err != nil {
		return failResult(result, startTime, "config resolution failed: %v", err), err
	}

	cfg, err := engine.ExtractIfConfig(resolved)
	if err != nil {
		return failResult(result, startTime, "invalid condition config: %v", err), err
	}

	value, found := input.LookupPath(cfg.Field)
	matched, err := compare(value, cfg.Operator, cfg.Value, found)
	if err != nil {
		return failResult(result, startTime, "condition evaluation failed: %v", err), err
	}

	port := "false"
	if matched {
		port = "true"
	}

	result.Success = true
	result.Output["matched"] = matched
	result.Output["field"] = cfg.Field
	result.Output["__port"] = port
	result.Duration = time.Since(startTime).Milliseconds()

	log.Printf("🔀 Condition %s: %s %s -> %s", node.ID, cfg.Field, cfg.Operator, port)
	return result, nil
}

func (e *IfExecutor) SupportsType(nodeType engine.NodeType) bool {
	return nodeType == engine.NodeTypeIf
}

func (e *IfExecutor) ValidateConfig(config map[string]any) error {
	_, err := engine.ExtractIfConfig(config)
	return err
}

// ============================================================================
// Switch Executor
// ============================================================================

// SwitchExecutor routes the run to the port mapped from the field
// value, falling back to the default port
type SwitchExecutor struct{}

var _ engine.NodeExecutor = (*SwitchExecutor)(nil)

func NewSwitchExecutor() *SwitchExecutor { return &SwitchExecutor{} }

func (e *SwitchExecutor) Execute(ctx context.Context, node engine.Node, input engine.CascadingInput, execCtx *engine.ExecutionContext) (*engine.NodeResult, error) {
	startTime := time.Now()
	result := newNodeResult(node, startTime)

	resolved, err := execCtx.EvaluateConfig(node.Config, input)
	if err != nil {
		return failResult(result, startTime, "config resolution failed: %v", err), err
	}

	cfg, err := engine.ExtractSwitchConfig(resolved)
	if err != nil {
		return failResult(result, startTime, "invalid switch config: %v", err), err
	}

	value, _ := input.LookupPath(cfg.Field)
	key := toComparable(value)

	port := cfg.Default
	if mapped, ok := cfg.Cases[key].(string); ok {
		port = mapped
	}

	result.Success = true
	result.Output["case"] = key
	if port != "" {
		result.Output["__port"] = port
	}
	result.Duration = time.Since(startTime).Milliseconds()

	log.Printf("🔀 Switch %s: %s=%q -> port %q", node.ID, cfg.Field, key, port)
	return result, nil
}

func (e *SwitchExecutor) SupportsType(nodeType engine.NodeType) bool {
	return nodeType == engine.NodeTypeSwitch
}

func (e *SwitchExecutor) ValidateConfig(config map[string]any) error {
	_, err := engine.ExtractSwitchConfig(config)
	return err
}

// ============================================================================
// Filter Executor
// ============================================================================

// FilterExecutor stops the branch when the condition does not hold.
// Unlike IF it has a single output: a non-matching filter fails the
// node so downstream nodes on this branch get skipped.
type FilterExecutor struct{}

var _ engine.NodeExecutor = (*FilterExecutor)(nil)

func NewFilterExecutor() *FilterExecutor { return &FilterExecutor{} }

func (e *FilterExecutor) Execute(ctx context.Context, node engine.Node, input engine.CascadingInput, execCtx *engine.ExecutionContext) (*engine.NodeResult, error) {
	startTime := time.Now()
	result := newNodeResult(node, startTime)

	resolved, err := execCtx.EvaluateConfig(node.Config, input)
	if err != nil {
		return failResult(result, startTime, "config resolution failed: %v", err), err
	}

	cfg, err := engine.ExtractFilterConfig(resolved)
	if err != nil {
		return failResult(result, startTime, "invalid filter config: %v", err), err
	}

	value, found := input.LookupPath(cfg.Field)
	matched, err := compare(value, cfg.Operator, cfg.Value, found)
	if err != nil {
		return failResult(result, startTime, "filter evaluation failed: %v", err), err
	}

	result.Duration = time.Since(startTime).Milliseconds()
	result.Success = true
	if !matched {
		// Dropping a branch is the filter doing its job, not a failure
		result.Output["passed"] = false
		result.Output["__halt"] = true
		log.Printf("🚫 Filter %s dropped the branch", node.ID)
		return result, nil
	}

	result.Output["passed"] = true
	for key, value := range input.SearchMap() {
		if _, exists := result.Output[key]; !exists {
			result.Output[key] = value
		}
	}
	return result, nil
}

func (e *FilterExecutor) SupportsType(nodeType engine.NodeType) bool {
	return nodeType == engine.NodeTypeFilter
}

func (e *FilterExecutor) ValidateConfig(config map[string]any) error {
	_, err := engine.ExtractFilterConfig(config)
	return err
}

// ============================================================================
// Merge Executor
// ============================================================================

// MergeExecutor joins parallel branches into one output
type MergeExecutor struct{}

var _ engine.NodeExecutor = (*MergeExecutor)(nil)

func NewMergeExecutor() *MergeExecutor { return &MergeExecutor{} }

func (e *MergeExecutor) Execute(ctx context.Context, node engine.Node, input engine.CascadingInput, execCtx *engine.ExecutionContext) (*engine.NodeResult, error) {
	startTime := time.Now()
	result := newNodeResult(node, startTime)

	resolved, err := execCtx.EvaluateConfig(node.Config, input)
	if err != nil {
		return failResult(result, startTime, "config resolution failed: %v", err), err
	}

	cfg, err := engine.ExtractMergeConfig(resolved)
	if err != nil {
		return failResult(result, startTime, "invalid merge config: %v", err), err
	}

	entries := input.Entries
	switch cfg.GetStrategy() {
	case "first":
		if len(entries) > 0 {
			for key, value := range entries[0].Data {
				result.Output[key] = value
			}
		}
	case "last":
		if len(entries) > 0 {
			for key, value := range entries[len(entries)-1].Data {
				result.Output[key] = value
			}
		}
	default: // combine, later entries win on key collisions
		for _, entry := range entries {
			for key, value := range entry.Data {
				result.Output[key] = value
			}
		}
		if len(entries) == 0 {
			for key, value := range input.SearchMap() {
				result.Output[key] = value
			}
		}
	}

	result.Success = true
	result.Output["merged_branches"] = len(entries)
	result.Duration = time.Since(startTime).Milliseconds()
	return result, nil
}

func (e *MergeExecutor) SupportsType(nodeType engine.NodeType) bool {
	return nodeType == engine.NodeTypeMerge
}

func (e *MergeExecutor) ValidateConfig(config map[string]any) error {
	_, err := engine.ExtractMergeConfig(config)
	return err
}

// ============================================================================
// Result Helpers
// ============================================================================

func newNodeResult(node engine.Node, startTime time.Time) *engine.NodeResult {
	return &engine.NodeResult{
		NodeID:    node.ID,
		NodeLabel: node.Label,
		NodeType:  node.Type,
		Timestamp: startTime,
		Output:    make(map[string]any),
	}
}

func failResult(result *engine.NodeResult, startTime time.Time, format string, args ...any) *engine.NodeResult {
	result.Success = false
	result.Error = fmt.Sprintf(format, args...)
	result.Duration = time.Since(startTime).Milliseconds()
	return result
}
