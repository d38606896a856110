package chat

import (
	"time"

	"github.com/flowbot-io/flowbot/pkg/kernel"
)

// ============================================================================
// Domain Types
// ============================================================================

// SessionStatus estado de una sesión de chat
type SessionStatus string

const (
	SessionStatusActive  SessionStatus = "ACTIVE"
	SessionStatusExpired SessionStatus = "EXPIRED"
	SessionStatusClosed  SessionStatus = "CLOSED"
)

// MessageRole who authored a message
type MessageRole string

const (
	RoleUser MessageRole = "user"
	RoleBot  MessageRole = "bot"
)

// UserInfo identifica al visitante del widget. The widget sends it on
// first contact; later messages may omit it.
type UserInfo struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// IsZero reports whether no identity field is set
func (u UserInfo) IsZero() bool {
	return u.ID == "" && u.Name == "" && u.Email == ""
}

// ChatSession is one visitor conversation bound to a workflow
type ChatSession struct {
	ID         kernel.SessionID  `json:"id"`
	WorkflowID kernel.WorkflowID `json:"workflow_id"`
	Status     SessionStatus     `json:"status"`
	User       UserInfo          `json:"user"`
	WebsiteURL string            `json:"website_url,omitempty"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

// IsExpired reports whether the session TTL has elapsed
func (s *ChatSession) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Touch extends the session lifetime after activity
func (s *ChatSession) Touch(now time.Time, ttl time.Duration) {
	s.UpdatedAt = now
	s.ExpiresAt = now.Add(ttl)
}

// ChatMessage is one line of the conversation history. Seq is a
// per-session monotonic counter used by incremental polling.
type ChatMessage struct {
	ID        kernel.MessageID `json:"id"`
	SessionID kernel.SessionID `json:"session_id"`
	Seq       int64            `json:"seq"`
	Role      MessageRole      `json:"role"`
	Content   string           `json:"content"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// PendingResponse is a bot reply waiting to be collected by the
// client's next poll. Draining is atomic: a response is delivered to
// exactly one poll.
type PendingResponse struct {
	ID        kernel.MessageID `json:"id"`
	SessionID kernel.SessionID `json:"session_id"`
	Content   string           `json:"content"`
	Type      string           `json:"type,omitempty"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
