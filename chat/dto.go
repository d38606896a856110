package chat

import (
	"github.com/flowbot-io/flowbot/pkg/kernel"
)

// Wire DTOs for the chat widget. The widget speaks camelCase JSON, so
// these tags differ from the snake_case used by the internal types.

// ============================================================================
// Webhook DTOs
// ============================================================================

// WebhookRequest is an inbound user message from the chat widget. The
// identity fields ride along on first contact and are recorded on the
// session.
type WebhookRequest struct {
	SessionID  string         `json:"sessionId,omitempty"`
	Message    string         `json:"message" validate:"required"`
	UserID     string         `json:"userId,omitempty"`
	UserName   string         `json:"userName,omitempty"`
	UserEmail  string         `json:"userEmail,omitempty"`
	WebsiteURL string         `json:"websiteUrl,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// User folds the identity fields into a single value
func (r WebhookRequest) User() UserInfo {
	return UserInfo{ID: r.UserID, Name: r.UserName, Email: r.UserEmail}
}

// WebhookResponse acks the inbound message. The run is asynchronous,
// so replies arrive through the poll endpoints.
type WebhookResponse struct {
	Success   bool             `json:"success"`
	SessionID kernel.SessionID `json:"sessionId"`
	MessageID kernel.MessageID `json:"messageId"`
	Status    string           `json:"status"`
}

// ============================================================================
// Poll DTOs
// ============================================================================

// PollResponse is the drain result for GET responses
type PollResponse struct {
	SessionID kernel.SessionID  `json:"sessionId"`
	Responses []PendingResponse `json:"responses"`
	Count     int               `json:"count"`
}

// MessagesResponse is the incremental history page. The widget polls
// this endpoint with the timestamp of the last message it has seen,
// so the pending bot replies are drained and handed back alongside
// the history.
type MessagesResponse struct {
	SessionID      kernel.SessionID  `json:"sessionId"`
	Messages       []ChatMessage     `json:"messages"`
	Pending        []PendingResponse `json:"pendingResponses,omitempty"`
	HasNewMessages bool              `json:"hasNewMessages"`
}

// ============================================================================
// Response Delivery DTOs
// ============================================================================

// PostResponseRequest queues a bot reply into a session, used by the
// chat response node and by external integrations. Delay is in
// seconds; anything above zero routes through the delay scheduler.
type PostResponseRequest struct {
	Content  string           `json:"content" validate:"required"`
	Type     string           `json:"type,omitempty"`
	Metadata map[string]any   `json:"metadata,omitempty"`
	Buttons  []map[string]any `json:"buttons,omitempty"`
	Delay    int              `json:"delay,omitempty"`
}
