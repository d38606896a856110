package kernel

// ============================================================================
// Context Keys - claves para context.Context
// ============================================================================

type ContextKey string

const (
	// RequestIDKey stores the incoming request id
	RequestIDKey ContextKey = "request_id"

	// SessionContextKey stores the chat SessionID for the current request
	SessionContextKey ContextKey = "session_id"

	// WorkflowContextKey stores the WorkflowID being executed
	WorkflowContextKey ContextKey = "workflow_id"
)
