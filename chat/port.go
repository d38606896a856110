package chat

import (
	"context"
	"time"

	"github.com/flowbot-io/flowbot/pkg/kernel"
)

// ============================================================================
// Repository Interfaces
// ============================================================================

// SessionRepository persistencia de sesiones de chat
type SessionRepository interface {
	// GetOrCreate returns the existing session or creates it bound to
	// the workflow, recording the visitor identity on first contact.
	// Creation is idempotent: concurrent calls with the same ID
	// converge on a single row, and identity from later calls is
	// ignored.
	GetOrCreate(ctx context.Context, id kernel.SessionID, workflowID kernel.WorkflowID, user UserInfo, websiteURL string, ttl time.Duration) (*ChatSession, error)

	FindByID(ctx context.Context, id kernel.SessionID) (*ChatSession, error)
	Touch(ctx context.Context, id kernel.SessionID, ttl time.Duration) error
	Close(ctx context.Context, id kernel.SessionID, status SessionStatus) error

	// DeleteExpired removes sessions whose TTL elapsed before the
	// cutoff and returns how many were removed
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// MessageRepository historial de mensajes
type MessageRepository interface {
	Append(ctx context.Context, message ChatMessage) (*ChatMessage, error)

	// ListAfter returns messages with Seq greater than after, oldest
	// first. after=0 returns the whole history.
	ListAfter(ctx context.Context, sessionID kernel.SessionID, after int64, limit int) ([]ChatMessage, error)

	// ListSince returns messages created strictly after the instant,
	// oldest first. A zero time returns the whole history.
	ListSince(ctx context.Context, sessionID kernel.SessionID, since time.Time, limit int) ([]ChatMessage, error)
}

// PendingResponseRepository cola de respuestas pendientes
type PendingResponseRepository interface {
	Add(ctx context.Context, response PendingResponse) error

	// Drain atomically removes and returns every pending response for
	// the session. Two concurrent drains never both see the same
	// response.
	Drain(ctx context.Context, sessionID kernel.SessionID) ([]PendingResponse, error)
}
