package main

import (
	"github.com/flowbot-io/flowbot/engine"
	"github.com/flowbot-io/flowbot/engine/nodeexec"
	"github.com/flowbot-io/flowbot/engine/noderegistry"
)

// registerNodeTypes wires every supported node type into the registry,
// together with the parameter schemas the editor renders.
func registerNodeTypes(
	registry *noderegistry.Registry,
	chatStore nodeexec.ChatResponseStore,
	scheduler engine.DelayScheduler,
) {
	trigger := nodeexec.NewTriggerExecutor()

	registry.MustRegister(noderegistry.NodeDescriptor{
		Type:        engine.NodeTypeChatTrigger,
		DisplayName: "Chat Message",
		Description: "Starts the workflow when a chat widget message arrives",
		Icon:        "💬",
		Category:    engine.CategoryTrigger,
		Executor:    trigger,
	})

	registry.MustRegister(noderegistry.NodeDescriptor{
		Type:        engine.NodeTypeWebhookTrigger,
		DisplayName: "Webhook",
		Description: "Starts the workflow on an incoming HTTP request",
		Icon:        "🌐",
		Category:    engine.CategoryTrigger,
		Executor:    trigger,
	})

	registry.MustRegister(noderegistry.NodeDescriptor{
		Type:        engine.NodeTypeTelegramTrigger,
		DisplayName: "Telegram Update",
		Description: "Starts the workflow when the Telegram bot receives an update",
		Icon:        "📨",
		Category:    engine.CategoryTrigger,
		Executor:    trigger,
	})

	registry.MustRegister(noderegistry.NodeDescriptor{
		Type:        engine.NodeTypeTelegramSend,
		DisplayName: "Send Telegram Message",
		Description: "Sends a message through the Telegram Bot API",
		Icon:        "✈️",
		Category:    engine.CategoryAction,
		Parameters: []noderegistry.ParameterSchema{
			{Name: "bot_token", Label: "Bot API Token", Type: "string", Required: true},
			{Name: "chat_id", Label: "Chat ID", Type: "string", Required: true, Placeholder: "{{chat.id}}"},
			{Name: "text", Label: "Message", Type: "textarea", Required: true},
			{Name: "parse_mode", Label: "Parse Mode", Type: "select", Options: []string{"", "Markdown", "HTML"}},
		},
		Executor: nodeexec.NewTelegramSendExecutor(),
	})

	registry.MustRegister(noderegistry.NodeDescriptor{
		Type:        engine.NodeTypeChatResponse,
		DisplayName: "Chat Response",
		Description: "Queues a reply into the chat session",
		Icon:        "💬",
		Category:    engine.CategoryAction,
		Parameters: []noderegistry.ParameterSchema{
			{Name: "content", Label: "Content", Type: "textarea", Required: true},
			{Name: "type", Label: "Type", Type: "select", Options: []string{"text", "buttons", "card"}, DefaultValue: "text"},
			{Name: "delay", Label: "Delay (seconds)", Type: "number"},
		},
		Executor: nodeexec.NewChatResponseExecutor(chatStore),
	})

	registry.MustRegister(noderegistry.NodeDescriptor{
		Type:        engine.NodeTypeAIAgent,
		DisplayName: "AI Agent",
		Description: "Generates a response with a language model",
		Icon:        "🤖",
		Category:    engine.CategoryAction,
		Parameters: []noderegistry.ParameterSchema{
			{Name: "model", Label: "Model", Type: "string", DefaultValue: "gpt-4o-mini"},
			{Name: "system_prompt", Label: "System Prompt", Type: "textarea"},
			{Name: "prompt", Label: "Prompt", Type: "textarea", Placeholder: "Defaults to the incoming message"},
			{Name: "temperature", Label: "Temperature", Type: "number"},
			{Name: "max_tokens", Label: "Max Tokens", Type: "number"},
		},
		Executor: nodeexec.NewAIAgentExecutor(),
	})

	registry.MustRegister(noderegistry.NodeDescriptor{
		Type:        engine.NodeTypeHTTP,
		DisplayName: "HTTP Request",
		Description: "Calls an external HTTP endpoint",
		Icon:        "🔗",
		Category:    engine.CategoryAction,
		Parameters: []noderegistry.ParameterSchema{
			{Name: "url", Label: "URL", Type: "string", Required: true},
			{Name: "method", Label: "Method", Type: "select", Options: []string{"GET", "POST", "PUT", "PATCH", "DELETE"}, DefaultValue: "GET"},
			{Name: "headers", Label: "Headers", Type: "json"},
			{Name: "body", Label: "Body", Type: "json"},
		},
		Executor: nodeexec.NewHTTPExecutor(nil),
	})

	registry.MustRegister(noderegistry.NodeDescriptor{
		Type:        engine.NodeTypeInstagramSend,
		DisplayName: "Send Instagram Message",
		Description: "Sends a direct message through the Instagram Graph API",
		Icon:        "📷",
		Category:    engine.CategoryAction,
		Parameters: []noderegistry.ParameterSchema{
			{Name: "access_token", Label: "Access Token", Type: "string", Required: true},
			{Name: "recipient_id", Label: "Recipient ID", Type: "string", Required: true},
			{Name: "text", Label: "Message", Type: "textarea", Required: true},
		},
		Executor: nodeexec.NewInstagramSendExecutor(),
	})

	registry.MustRegister(noderegistry.NodeDescriptor{
		Type:        engine.NodeTypeLinkedInPost,
		DisplayName: "LinkedIn Post",
		Description: "Publishes a post on LinkedIn",
		Icon:        "💼",
		Category:    engine.CategoryAction,
		Parameters: []noderegistry.ParameterSchema{
			{Name: "access_token", Label: "Access Token", Type: "string", Required: true},
			{Name: "author_urn", Label: "Author URN", Type: "string", Required: true},
			{Name: "text", Label: "Text", Type: "textarea", Required: true},
			{Name: "visibility", Label: "Visibility", Type: "select", Options: []string{"PUBLIC", "CONNECTIONS"}, DefaultValue: "PUBLIC"},
		},
		Executor: nodeexec.NewLinkedInPostExecutor(),
	})

	registry.MustRegister(noderegistry.NodeDescriptor{
		Type:        engine.NodeTypeDelay,
		DisplayName: "Delay",
		Description: "Pauses the branch for a fixed duration",
		Icon:        "⏰",
		Category:    engine.CategoryAction,
		Parameters: []noderegistry.ParameterSchema{
			{Name: "seconds", Label: "Seconds", Type: "number", Required: true},
		},
		Executor: nodeexec.NewDelayExecutor(scheduler),
	})

	registry.MustRegister(noderegistry.NodeDescriptor{
		Type:        engine.NodeTypeIf,
		DisplayName: "If",
		Description: "Routes the run down the true or false branch",
		Icon:        "🔀",
		Category:    engine.CategoryLogic,
		Parameters: []noderegistry.ParameterSchema{
			{Name: "field", Label: "Field", Type: "string", Required: true, Placeholder: "order.total"},
			{Name: "operator", Label: "Operator", Type: "select", Required: true, Options: []string{"eq", "neq", "gt", "gte", "lt", "lte", "contains", "exists"}},
			{Name: "value", Label: "Value", Type: "string"},
		},
		Executor: nodeexec.NewIfExecutor(),
	})

	registry.MustRegister(noderegistry.NodeDescriptor{
		Type:        engine.NodeTypeSwitch,
		DisplayName: "Switch",
		Description: "Routes the run by matching a field against case values",
		Icon:        "🎛️",
		Category:    engine.CategoryLogic,
		Parameters: []noderegistry.ParameterSchema{
			{Name: "field", Label: "Field", Type: "string", Required: true},
			{Name: "cases", Label: "Cases", Type: "json", Required: true},
			{Name: "default", Label: "Default Port", Type: "string"},
		},
		Executor: nodeexec.NewSwitchExecutor(),
	})

	registry.MustRegister(noderegistry.NodeDescriptor{
		Type:        engine.NodeTypeFilter,
		DisplayName: "Filter",
		Description: "Stops the branch when the condition does not match",
		Icon:        "🧹",
		Category:    engine.CategoryLogic,
		Parameters: []noderegistry.ParameterSchema{
			{Name: "field", Label: "Field", Type: "string", Required: true},
			{Name: "operator", Label: "Operator", Type: "select", Required: true, Options: []string{"eq", "neq", "gt", "gte", "lt", "lte", "contains", "exists"}},
			{Name: "value", Label: "Value", Type: "string"},
		},
		Executor: nodeexec.NewFilterExecutor(),
	})

	registry.MustRegister(noderegistry.NodeDescriptor{
		Type:        engine.NodeTypeMerge,
		DisplayName: "Merge",
		Description: "Joins parallel branches into a single output",
		Icon:        "🔃",
		Category:    engine.CategoryLogic,
		Parameters: []noderegistry.ParameterSchema{
			{Name: "strategy", Label: "Strategy", Type: "select", Options: []string{"combine", "first", "last"}, DefaultValue: "combine"},
		},
		Executor: nodeexec.NewMergeExecutor(),
	})
}
