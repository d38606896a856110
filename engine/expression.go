package engine

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types/ref"
)

// ============================================================================
// Cascading Input
// ============================================================================

// CascadingInput is what a node sees of its upstream graph: either the
// ordered list of upstream node outputs, or a single flat object (the
// trigger payload). Normalization happens here, once, instead of shape
// sniffing inside every lookup.
type CascadingInput struct {
	Entries []NodeOutput
	Flat    map[string]any
}

// NewCascadingInput wraps ordered upstream outputs
func NewCascadingInput(entries []NodeOutput) CascadingInput {
	return CascadingInput{Entries: entries}
}

// FlatInput wraps a single payload object
func FlatInput(data map[string]any) CascadingInput {
	return CascadingInput{Flat: data}
}

// IsEmpty reports whether there is nothing to resolve against
func (in CascadingInput) IsEmpty() bool {
	return len(in.Entries) == 0 && len(in.Flat) == 0
}

// SearchMap flattens the input into the map expressions resolve
// against. Each upstream entry is indexed under "{order}. {label}"
// (falling back to the node type) and under its node id; its data keys
// are merged in directly for convenience lookups. Later entries win on
// key collisions, matching cascade order.
func (in CascadingInput) SearchMap() map[string]any {
	search := make(map[string]any)

	for k, v := range in.Flat {
		search[k] = v
	}

	for _, entry := range in.Entries {
		label := entry.NodeLabel
		if label == "" {
			label = string(entry.NodeType)
		}
		search[fmt.Sprintf("%d. %s", entry.Order, label)] = entry.Data
		if entry.NodeID != "" {
			search[entry.NodeID] = entry.Data
		}
		for k, v := range entry.Data {
			search[k] = v
		}
	}

	return search
}

// ============================================================================
// Template Resolver
// ============================================================================

// UnresolvedPolicy is what Resolve does with a {{path}} it cannot find
// a value for.
type UnresolvedPolicy string

const (
	// PolicyKeepLiteral leaves the {{path}} text in place (fail open,
	// the observed widget behavior).
	PolicyKeepLiteral UnresolvedPolicy = "keep-literal"
	// PolicyEmpty substitutes the empty string.
	PolicyEmpty UnresolvedPolicy = "empty"
	// PolicyError fails the resolution.
	PolicyError UnresolvedPolicy = "error"
)

// ParseUnresolvedPolicy validates a policy name from config
func ParseUnresolvedPolicy(s string) (UnresolvedPolicy, error) {
	switch UnresolvedPolicy(s) {
	case PolicyKeepLiteral, PolicyEmpty, PolicyError:
		return UnresolvedPolicy(s), nil
	case "":
		return PolicyKeepLiteral, nil
	}
	return "", ErrInvalidWorkflowConfig().WithDetail("reason", "unknown unresolved policy: "+s)
}

// ExpressionEvaluator resolves {{path.to.value}} expressions against
// accumulated node outputs.
type ExpressionEvaluator interface {
	// Resolve substitutes every {{...}} occurrence in text. It never
	// panics; an error is only returned under PolicyError.
	Resolve(text string, input CascadingInput) (string, error)

	// Evaluate recursively walks a data structure (a node's config)
	// replacing expressions. A string that is exactly one expression
	// yields the typed value, not its string form.
	Evaluate(data any, input CascadingInput) (any, error)
}

// TemplateResolver implements ExpressionEvaluator with layered lookup
// strategies: direct key, dot-path traversal, heuristic scan across
// upstream entries, deep search for known shapes, and finally a CEL
// expression evaluation for non-path expressions.
type TemplateResolver struct {
	expressionRegex *regexp.Regexp
	policy          UnresolvedPolicy
}

var _ ExpressionEvaluator = (*TemplateResolver)(nil)

func NewTemplateResolver(policy UnresolvedPolicy) *TemplateResolver {
	if policy == "" {
		policy = PolicyKeepLiteral
	}
	return &TemplateResolver{
		expressionRegex: regexp.MustCompile(`\{\{([^}]+)\}\}`),
		policy:          policy,
	}
}

// Resolve substitutes all {{...}} occurrences in text
func (r *TemplateResolver) Resolve(text string, input CascadingInput) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	search := input.SearchMap()

	var unresolved []string
	result := r.expressionRegex.ReplaceAllStringFunc(text, func(match string) string {
		path := strings.TrimSpace(r.expressionRegex.FindStringSubmatch(match)[1])

		if value, found := r.lookup(path, search); found {
			return stringify(value)
		}

		switch r.policy {
		case PolicyEmpty:
			return ""
		case PolicyError:
			unresolved = append(unresolved, path)
			return match
		default:
			return match
		}
	})

	if len(unresolved) > 0 {
		return text, ErrInvalidWorkflowNode().
			WithDetail("reason", "unresolved template expressions").
			WithDetail("expressions", strings.Join(unresolved, ", "))
	}

	return result, nil
}

// Evaluate walks data replacing expressions, keeping types for
// whole-string expressions.
func (r *TemplateResolver) Evaluate(data any, input CascadingInput) (any, error) {
	return r.evaluateRecursive(reflect.ValueOf(data), input)
}

func (r *TemplateResolver) evaluateRecursive(val reflect.Value, input CascadingInput) (any, error) {
	if val.Kind() == reflect.Ptr || val.Kind() == reflect.Interface {
		if val.IsNil() {
			return nil, nil
		}
		val = val.Elem()
	}

	switch val.Kind() {
	case reflect.String:
		return r.evaluateString(val.String(), input)

	case reflect.Map:
		newMap := make(map[string]any)
		for _, key := range val.MapKeys() {
			evaluated, err := r.evaluateRecursive(val.MapIndex(key), input)
			if err != nil {
				return nil, err
			}
			newMap[key.String()] = evaluated
		}
		return newMap, nil

	case reflect.Slice:
		newSlice := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			evaluated, err := r.evaluateRecursive(val.Index(i), input)
			if err != nil {
				return nil, err
			}
			newSlice[i] = evaluated
		}
		return newSlice, nil

	default:
		return val.Interface(), nil
	}
}

func (r *TemplateResolver) evaluateString(s string, input CascadingInput) (any, error) {
	matches := r.expressionRegex.FindStringSubmatch(s)

	// A string that is exactly one expression returns the typed value
	// (a map or a number), not its string form.
	if len(matches) > 0 && s == matches[0] {
		path := strings.TrimSpace(matches[1])
		if value, found := r.lookup(path, input.SearchMap()); found {
			return value, nil
		}
		switch r.policy {
		case PolicyEmpty:
			return "", nil
		case PolicyError:
			return nil, ErrInvalidWorkflowNode().
				WithDetail("reason", "unresolved template expression").
				WithDetail("expression", path)
		}
		return s, nil
	}

	return r.Resolve(s, input)
}

// ============================================================================
// Lookup Strategies
// ============================================================================

// markerSubstrings are the upstream labels worth scanning when a path
// does not resolve from the top: agent-style nodes that wrap their
// payload one level deep.
var markerSubstrings = []string{"agent", "ai", "result", "trigger"}

func (r *TemplateResolver) lookup(path string, search map[string]any) (any, bool) {
	// a. Direct key lookup of the full path
	if value, ok := search[path]; ok && value != nil {
		return value, true
	}

	// b. Dot-notation traversal
	if value, ok := getNestedValue(search, path); ok && value != nil {
		return value, true
	}

	// c. Heuristic scan: retry the traversal rooted at entries whose
	// key looks like a wrapping node output.
	lowerPath := strings.ToLower(path)
	for key, value := range search {
		nested, isMap := value.(map[string]any)
		if !isMap {
			continue
		}
		if !keyMatchesMarker(key) && !strings.Contains(lowerPath, strings.ToLower(key)) {
			continue
		}
		if found, ok := getNestedValue(nested, path); ok && found != nil {
			return found, true
		}
	}

	// d. Pattern-specific deep search for known shapes
	if strings.HasSuffix(path, "result.response") || path == "result.response" {
		if found, ok := deepSearchShape(search, "result", "response", 0); ok {
			return found, true
		}
	}

	// e. CEL expression evaluation for anything richer than a path
	if value, err := evaluateCEL(path, search); err == nil && value != nil {
		return value, true
	}

	return nil, false
}

func keyMatchesMarker(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range markerSubstrings {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// LookupPath resolves a dot path against a cascading input using the
// same direct-key-then-nested order the template resolver applies
func (in CascadingInput) LookupPath(path string) (any, bool) {
	search := in.SearchMap()
	if value, ok := search[path]; ok {
		return value, true
	}
	return getNestedValue(search, path)
}

// getNestedValue walks a dot path through nested maps
func getNestedValue(data map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	current := any(data)

	for _, part := range parts {
		switch v := current.(type) {
		case map[string]any:
			val, ok := v[part]
			if !ok {
				return nil, false
			}
			current = val
		default:
			return nil, false
		}
	}

	return current, true
}

// deepSearchShape finds the first nested object exposing
// outer -> inner, depth-first.
func deepSearchShape(data map[string]any, outer, inner string, depth int) (any, bool) {
	if depth > 8 {
		return nil, false
	}

	if wrapper, ok := data[outer].(map[string]any); ok {
		if value, ok := wrapper[inner]; ok && value != nil {
			return value, true
		}
	}

	for _, v := range data {
		if nested, ok := v.(map[string]any); ok {
			if value, found := deepSearchShape(nested, outer, inner, depth+1); found {
				return value, true
			}
		}
	}

	return nil, false
}

// ============================================================================
// CEL Evaluation
// ============================================================================

var celIdentRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// evaluateCEL compiles and runs a single CEL expression over the
// search map. Keys that are not valid identifiers (the synthesized
// "1. Label" entries) are skipped from the environment.
func evaluateCEL(expression string, search map[string]any) (any, error) {
	var envOptions []cel.EnvOption
	activation := make(map[string]any)

	for key, value := range search {
		if !celIdentRegex.MatchString(key) {
			continue
		}
		envOptions = append(envOptions, cel.Variable(key, cel.DynType))
		activation[key] = value
	}

	env, err := cel.NewEnv(envOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile expression %q: %w", expression, issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for %q: %w", expression, err)
	}

	out, _, err := prg.Eval(activation)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate %q: %w", expression, err)
	}

	return convertToNative(out), nil
}

// convertToNative converts a CEL ref.Val to a native Go type
func convertToNative(val ref.Val) any {
	if val == nil || val.Value() == nil {
		return nil
	}
	native, err := val.ConvertToNative(reflect.TypeOf(map[string]any{}))
	if err == nil {
		return native
	}
	return val.Value()
}

// ============================================================================
// Stringification
// ============================================================================

// stringify renders a resolved value for substitution: objects and
// slices JSON-encode, numbers drop the float artifacts of JSON
// decoding so 42 renders "42".
func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", v)
	}
}
