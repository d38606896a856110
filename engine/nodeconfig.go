package engine

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/Abraxas-365/craftable/ai/llm"
	"github.com/Abraxas-365/craftable/ai/providers/aiopenai"
	"github.com/Abraxas-365/craftable/ptrx"
)

// ============================================================================
// Node Config Interface
// ============================================================================

// NodeConfig interface that all typed node configs implement
type NodeConfig interface {
	Validate() error
	GetType() NodeType
	GetTimeout() int
}

// ============================================================================
// Telegram Send Config
// ============================================================================

type TelegramSendConfig struct {
	BotToken            string         `json:"bot_token"`
	ChatID              string         `json:"chat_id"`
	Text                string         `json:"text"`
	ParseMode           string         `json:"parse_mode,omitempty"` // Markdown, HTML
	DisableNotification bool           `json:"disable_notification,omitempty"`
	ReplyToMessageID    *int64         `json:"reply_to_message_id,omitempty"`
	Timeout             *int           `json:"timeout,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}

func (c TelegramSendConfig) Validate() error {
	if c.BotToken == "" {
		return ErrInvalidWorkflowNode().WithDetail("reason", "Bot API Token is required")
	}
	if c.ChatID == "" {
		return ErrInvalidWorkflowNode().WithDetail("reason", "Chat ID is required")
	}
	if c.Text == "" {
		return ErrInvalidWorkflowNode().WithDetail("reason", "Message text is required")
	}
	if c.ParseMode != "" && c.ParseMode != "Markdown" && c.ParseMode != "MarkdownV2" && c.ParseMode != "HTML" {
		return ErrInvalidWorkflowNode().WithDetail("reason", "parse_mode must be Markdown, MarkdownV2 or HTML")
	}
	return nil
}

func (c TelegramSendConfig) GetType() NodeType { return NodeTypeTelegramSend }

func (c TelegramSendConfig) GetTimeout() int {
	if c.Timeout != nil && *c.Timeout > 0 {
		return *c.Timeout
	}
	return 30
}

// ============================================================================
// Chat Response Config
// ============================================================================

type ChatResponseConfig struct {
	Content  string         `json:"content"`
	Type     string         `json:"type,omitempty"` // text, buttons, card
	Buttons  []ChatButton   `json:"buttons,omitempty"`
	Delay    *int           `json:"delay,omitempty"` // seconds before delivery
	Metadata map[string]any `json:"metadata,omitempty"`
}

type ChatButton struct {
	Label string `json:"label"`
	Value string `json:"value"`
	URL   string `json:"url,omitempty"`
}

func (c ChatResponseConfig) Validate() error {
	if c.Content == "" {
		return ErrInvalidWorkflowNode().WithDetail("reason", "Response content is required")
	}
	if c.Delay != nil && *c.Delay < 0 {
		return ErrInvalidWorkflowNode().WithDetail("reason", "delay cannot be negative")
	}
	return nil
}

func (c ChatResponseConfig) GetType() NodeType { return NodeTypeChatResponse }
func (c ChatResponseConfig) GetTimeout() int   { return 10 }

func (c ChatResponseConfig) GetDelay() time.Duration {
	if c.Delay != nil && *c.Delay > 0 {
		return time.Duration(*c.Delay) * time.Second
	}
	return 0
}

// ============================================================================
// AI Agent Config
// ============================================================================

type AIAgentConfig struct {
	Provider     string         `json:"provider"`
	Model        string         `json:"model"`
	SystemPrompt string         `json:"system_prompt"`
	Prompt       string         `json:"prompt,omitempty"`
	Temperature  *float32       `json:"temperature,omitempty"`
	MaxTokens    *int           `json:"max_tokens,omitempty"`
	Timeout      *int           `json:"timeout,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func (c AIAgentConfig) Validate() error {
	if c.Model == "" {
		return ErrInvalidWorkflowNode().WithDetail("reason", "model is required")
	}
	if c.SystemPrompt == "" {
		return ErrInvalidWorkflowNode().WithDetail("reason", "system_prompt is required")
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return ErrInvalidWorkflowNode().WithDetail("reason", "temperature must be between 0 and 2")
	}
	if c.MaxTokens != nil && *c.MaxTokens <= 0 {
		return ErrInvalidWorkflowNode().WithDetail("reason", "max_tokens must be positive")
	}
	return nil
}

func (c AIAgentConfig) GetType() NodeType { return NodeTypeAIAgent }

func (c AIAgentConfig) GetTimeout() int {
	if c.Timeout != nil && *c.Timeout > 0 {
		return *c.Timeout
	}
	return 60 // AI agents need more time
}

// GetLLMClient creates an LLM client based on provider
func (c AIAgentConfig) GetLLMClient() llm.Client {
	switch c.Provider {
	case "openai", "":
		provider := aiopenai.NewOpenAIProvider("") // API key from env
		return *llm.NewClient(provider)
	default:
		provider := aiopenai.NewOpenAIProvider("")
		return *llm.NewClient(provider)
	}
}

// GetLLMOptions returns LLM options for the client
func (c AIAgentConfig) GetLLMOptions() []llm.Option {
	return []llm.Option{
		llm.WithModel(c.Model),
		llm.WithTemperature(ptrx.Float32ValueOr(c.Temperature, 0.7)),
		llm.WithMaxTokens(ptrx.IntValueOr(c.MaxTokens, 1000)),
	}
}

// ============================================================================
// HTTP Config
// ============================================================================

type HTTPConfig struct {
	Method       string            `json:"method"`
	URL          string            `json:"url"`
	Headers      map[string]string `json:"headers,omitempty"`
	Body         map[string]any    `json:"body,omitempty"`
	Timeout      *int              `json:"timeout,omitempty"`
	SuccessCodes []int             `json:"success_codes,omitempty"`
	Metadata     map[string]any    `json:"metadata,omitempty"`
}

func (c HTTPConfig) Validate() error {
	if c.URL == "" {
		return ErrInvalidWorkflowNode().WithDetail("reason", "url is required")
	}

	validMethods := []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	method := c.GetMethod()
	isValid := false
	for _, vm := range validMethods {
		if method == vm {
			isValid = true
			break
		}
	}
	if !isValid {
		return ErrInvalidWorkflowNode().WithDetail("reason", "invalid HTTP method: "+method)
	}

	return nil
}

func (c HTTPConfig) GetType() NodeType { return NodeTypeHTTP }

func (c HTTPConfig) GetTimeout() int {
	if c.Timeout != nil && *c.Timeout > 0 {
		return *c.Timeout
	}
	return 30
}

func (c HTTPConfig) GetMethod() string {
	if c.Method == "" {
		return "GET"
	}
	return c.Method
}

func (c HTTPConfig) GetSuccessCodes() []int {
	if len(c.SuccessCodes) == 0 {
		return []int{200, 201, 202, 204}
	}
	return c.SuccessCodes
}

// ============================================================================
// Instagram Send Config
// ============================================================================

type InstagramSendConfig struct {
	AccessToken string         `json:"access_token"`
	RecipientID string         `json:"recipient_id"`
	Text        string         `json:"text"`
	Timeout     *int           `json:"timeout,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func (c InstagramSendConfig) Validate() error {
	if c.AccessToken == "" {
		return ErrInvalidWorkflowNode().WithDetail("reason", "Access token is required")
	}
	if c.RecipientID == "" {
		return ErrInvalidWorkflowNode().WithDetail("reason", "Recipient ID is required")
	}
	if c.Text == "" {
		return ErrInvalidWorkflowNode().WithDetail("reason", "Message text is required")
	}
	return nil
}

func (c InstagramSendConfig) GetType() NodeType { return NodeTypeInstagramSend }

func (c InstagramSendConfig) GetTimeout() int {
	if c.Timeout != nil && *c.Timeout > 0 {
		return *c.Timeout
	}
	return 30
}

// ============================================================================
// LinkedIn Post Config
// ============================================================================

type LinkedInPostConfig struct {
	AccessToken string         `json:"access_token"`
	AuthorURN   string         `json:"author_urn"` // urn:li:person:... or urn:li:organization:...
	Text        string         `json:"text"`
	Visibility  string         `json:"visibility,omitempty"` // PUBLIC, CONNECTIONS
	Timeout     *int           `json:"timeout,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func (c LinkedInPostConfig) Validate() error {
	if c.AccessToken == "" {
		return ErrInvalidWorkflowNode().WithDetail("reason", "Access token is required")
	}
	if c.AuthorURN == "" {
		return ErrInvalidWorkflowNode().WithDetail("reason", "Author URN is required")
	}
	if c.Text == "" {
		return ErrInvalidWorkflowNode().WithDetail("reason", "Post text is required")
	}
	return nil
}

func (c LinkedInPostConfig) GetType() NodeType { return NodeTypeLinkedInPost }

func (c LinkedInPostConfig) GetTimeout() int {
	if c.Timeout != nil && *c.Timeout > 0 {
		return *c.Timeout
	}
	return 30
}

// ============================================================================
// Delay Config
// ============================================================================

type DelayConfig struct {
	Seconds  int            `json:"seconds"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (c DelayConfig) Validate() error {
	if c.Seconds <= 0 {
		return ErrInvalidWorkflowNode().WithDetail("reason", "seconds must be positive")
	}
	if c.Seconds > 86400 {
		return ErrInvalidWorkflowNode().WithDetail("reason", "delay cannot exceed 24 hours")
	}
	return nil
}

func (c DelayConfig) GetType() NodeType { return NodeTypeDelay }
func (c DelayConfig) GetTimeout() int   { return c.Seconds + 5 }

func (c DelayConfig) Duration() time.Duration {
	return time.Duration(c.Seconds) * time.Second
}

// ============================================================================
// If Config
// ============================================================================

type IfConfig struct {
	Field    string         `json:"field"`
	Operator string         `json:"operator"` // eq, neq, gt, gte, lt, lte, contains, exists
	Value    any            `json:"value,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

var validOperators = map[string]bool{
	"eq": true, "neq": true, "gt": true, "gte": true,
	"lt": true, "lte": true, "contains": true, "exists": true,
}

func (c IfConfig) Validate() error {
	if c.Field == "" {
		return ErrInvalidWorkflowNode().WithDetail("reason", "field is required")
	}
	if !validOperators[c.Operator] {
		return ErrInvalidWorkflowNode().WithDetail("reason", "unknown operator: "+c.Operator)
	}
	return nil
}

func (c IfConfig) GetType() NodeType { return NodeTypeIf }
func (c IfConfig) GetTimeout() int   { return 5 }

// ============================================================================
// Switch Config
// ============================================================================

type SwitchConfig struct {
	Field    string         `json:"field"`
	Cases    map[string]any `json:"cases"` // case_value -> output port
	Default  string         `json:"default,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (c SwitchConfig) Validate() error {
	if c.Field == "" {
		return ErrInvalidWorkflowNode().WithDetail("reason", "field is required")
	}
	if len(c.Cases) == 0 {
		return ErrInvalidWorkflowNode().WithDetail("reason", "cases cannot be empty")
	}
	for key, value := range c.Cases {
		if _, ok := value.(string); !ok {
			return ErrInvalidWorkflowNode().WithDetail("reason", fmt.Sprintf("case %q must map to an output port (string)", key))
		}
	}
	return nil
}

func (c SwitchConfig) GetType() NodeType { return NodeTypeSwitch }
func (c SwitchConfig) GetTimeout() int   { return 5 }

// ============================================================================
// Filter Config
// ============================================================================

type FilterConfig struct {
	Field    string         `json:"field"`
	Operator string         `json:"operator"`
	Value    any            `json:"value,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (c FilterConfig) Validate() error {
	if c.Field == "" {
		return ErrInvalidWorkflowNode().WithDetail("reason", "field is required")
	}
	if !validOperators[c.Operator] {
		return ErrInvalidWorkflowNode().WithDetail("reason", "unknown operator: "+c.Operator)
	}
	return nil
}

func (c FilterConfig) GetType() NodeType { return NodeTypeFilter }
func (c FilterConfig) GetTimeout() int   { return 5 }

// ============================================================================
// Merge Config
// ============================================================================

type MergeConfig struct {
	Strategy string         `json:"strategy,omitempty"` // combine, last, first
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (c MergeConfig) Validate() error {
	switch c.Strategy {
	case "", "combine", "last", "first":
		return nil
	}
	return ErrInvalidWorkflowNode().WithDetail("reason", "strategy must be combine, last or first")
}

func (c MergeConfig) GetType() NodeType { return NodeTypeMerge }
func (c MergeConfig) GetTimeout() int   { return 5 }

func (c MergeConfig) GetStrategy() string {
	if c.Strategy == "" {
		return "combine"
	}
	return c.Strategy
}

// ============================================================================
// Extraction Helpers
// ============================================================================

func extractConfig[T NodeConfig](config map[string]any) (*T, error) {
	var typed T
	data, err := json.Marshal(CoerceStringFields(config, &typed))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := json.Unmarshal(data, &typed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := typed.Validate(); err != nil {
		return nil, err
	}

	return &typed, nil
}

// CoerceStringFields rewrites scalar values bound for string-typed
// fields of target. Template resolution keeps typed values, so a
// config like {"chat_id": "{{message.chat.id}}"} arrives here with a
// number in chat_id and must render back to its string form.
func CoerceStringFields(config map[string]any, target any) map[string]any {
	t := reflect.TypeOf(target)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return config
	}

	coerced := make(map[string]any, len(config))
	for k, v := range config {
		coerced[k] = v
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name := strings.Split(field.Tag.Get("json"), ",")[0]
		if name == "" || name == "-" || field.Type.Kind() != reflect.String {
			continue
		}
		value, ok := coerced[name]
		if !ok || value == nil {
			continue
		}
		switch value.(type) {
		case string:
		case map[string]any, []any:
			// structured values stay for the decoder to reject
		default:
			coerced[name] = stringify(value)
		}
	}

	return coerced
}

func ExtractTelegramSendConfig(config map[string]any) (*TelegramSendConfig, error) {
	return extractConfig[TelegramSendConfig](config)
}

func ExtractChatResponseConfig(config map[string]any) (*ChatResponseConfig, error) {
	return extractConfig[ChatResponseConfig](config)
}

func ExtractAIAgentConfig(config map[string]any) (*AIAgentConfig, error) {
	return extractConfig[AIAgentConfig](config)
}

func ExtractHTTPConfig(config map[string]any) (*HTTPConfig, error) {
	return extractConfig[HTTPConfig](config)
}

func ExtractInstagramSendConfig(config map[string]any) (*InstagramSendConfig, error) {
	return extractConfig[InstagramSendConfig](config)
}

func ExtractLinkedInPostConfig(config map[string]any) (*LinkedInPostConfig, error) {
	return extractConfig[LinkedInPostConfig](config)
}

func ExtractDelayConfig(config map[string]any) (*DelayConfig, error) {
	return extractConfig[DelayConfig](config)
}

func ExtractIfConfig(config map[string]any) (*IfConfig, error) {
	return extractConfig[IfConfig](config)
}

func ExtractSwitchConfig(config map[string]any) (*SwitchConfig, error) {
	return extractConfig[SwitchConfig](config)
}

func ExtractFilterConfig(config map[string]any) (*FilterConfig, error) {
	return extractConfig[FilterConfig](config)
}

func ExtractMergeConfig(config map[string]any) (*MergeConfig, error) {
	return extractConfig[MergeConfig](config)
}
