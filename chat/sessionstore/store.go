package sessionstore

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flowbot-io/flowbot/chat"
	"github.com/flowbot-io/flowbot/engine"
	"github.com/flowbot-io/flowbot/pkg/kernel"
)

// Store is the chat session service: session lifecycle, message
// history, and the pending response queue the widget polls.
type Store struct {
	sessions  chat.SessionRepository
	messages  chat.MessageRepository
	pending   chat.PendingResponseRepository
	scheduler engine.DelayScheduler
	ttl       time.Duration
}

func NewStore(
	sessions chat.SessionRepository,
	messages chat.MessageRepository,
	pending chat.PendingResponseRepository,
	scheduler engine.DelayScheduler,
	ttl time.Duration,
) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{
		sessions:  sessions,
		messages:  messages,
		pending:   pending,
		scheduler: scheduler,
		ttl:       ttl,
	}
}

// ============================================================================
// Session Lifecycle
// ============================================================================

// EnsureSession returns the session, creating it on first contact
// with the visitor identity the widget sent. Re-posting with an
// existing ID is normal widget behavior and never errors.
func (s *Store) EnsureSession(ctx context.Context, id kernel.SessionID, workflowID kernel.WorkflowID, user chat.UserInfo, websiteURL string) (*chat.ChatSession, error) {
	if strings.TrimSpace(id.String()) == "" {
		return nil, chat.ErrInvalidSessionID()
	}

	session, err := s.sessions.GetOrCreate(ctx, id, workflowID, user, websiteURL, s.ttl)
	if err != nil {
		return nil, err
	}

	if session.IsExpired(time.Now()) {
		return nil, chat.ErrSessionExpired().WithDetail("session_id", id.String())
	}

	return session, nil
}

func (s *Store) GetSession(ctx context.Context, id kernel.SessionID) (*chat.ChatSession, error) {
	return s.sessions.FindByID(ctx, id)
}

// ============================================================================
// Messages
// ============================================================================

// RecordUserMessage appends an inbound message and refreshes the
// session TTL
func (s *Store) RecordUserMessage(ctx context.Context, sessionID kernel.SessionID, content string, metadata map[string]any) (*chat.ChatMessage, error) {
	if strings.TrimSpace(content) == "" {
		return nil, chat.ErrMessageEmpty()
	}

	message, err := s.messages.Append(ctx, chat.ChatMessage{
		ID:        kernel.NewMessageID(uuid.NewString()),
		SessionID: sessionID,
		Role:      chat.RoleUser,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Touch(ctx, sessionID, s.ttl); err != nil {
		log.Printf("⚠️ Failed to touch session %s: %v", sessionID, err)
	}

	return message, nil
}

// RecordBotResponse appends the bot reply to history and queues it as
// a pending response in one call, so history and the poll queue never
// disagree about what the bot said.
func (s *Store) RecordBotResponse(ctx context.Context, sessionID kernel.SessionID, content string, responseType string, metadata map[string]any) (*chat.ChatMessage, error) {
	if strings.TrimSpace(content) == "" {
		return nil, chat.ErrMessageEmpty()
	}

	if _, err := s.sessions.FindByID(ctx, sessionID); err != nil {
		return nil, err
	}

	message, err := s.messages.Append(ctx, chat.ChatMessage{
		ID:        kernel.NewMessageID(uuid.NewString()),
		SessionID: sessionID,
		Role:      chat.RoleBot,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return nil, err
	}

	err = s.pending.Add(ctx, chat.PendingResponse{
		ID:        message.ID,
		SessionID: sessionID,
		Content:   content,
		Type:      responseType,
		Metadata:  metadata,
		CreatedAt: message.CreatedAt,
	})
	if err != nil {
		return nil, err
	}

	return message, nil
}

// ScheduleBotResponse parks a bot reply in the delay scheduler instead
// of delivering it now
func (s *Store) ScheduleBotResponse(ctx context.Context, sessionID kernel.SessionID, content string, responseType string, delay time.Duration) error {
	if s.scheduler == nil {
		// No scheduler wired: deliver immediately rather than drop
		_, err := s.RecordBotResponse(ctx, sessionID, content, responseType, nil)
		return err
	}

	continuation := &engine.WorkflowContinuation{
		Kind:      engine.ContinuationChatResponse,
		SessionID: sessionID,
		Payload: map[string]any{
			"content": content,
			"type":    responseType,
		},
		ScheduledFor: time.Now().Add(delay),
	}
	return s.scheduler.Schedule(ctx, continuation, delay)
}

// DeliverContinuation is the scheduler callback for delayed chat
// responses
func (s *Store) DeliverContinuation(ctx context.Context, continuation *engine.WorkflowContinuation) error {
	content, _ := continuation.Payload["content"].(string)
	responseType, _ := continuation.Payload["type"].(string)

	_, err := s.RecordBotResponse(ctx, continuation.SessionID, content, responseType, nil)
	return err
}

// History returns messages after the given sequence number
func (s *Store) History(ctx context.Context, sessionID kernel.SessionID, after int64, limit int) ([]chat.ChatMessage, error) {
	if _, err := s.sessions.FindByID(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.messages.ListAfter(ctx, sessionID, after, limit)
}

// HistorySince returns messages created after the given instant. The
// widget polls with the timestamp of the last message it has seen.
func (s *Store) HistorySince(ctx context.Context, sessionID kernel.SessionID, since time.Time, limit int) ([]chat.ChatMessage, error) {
	if _, err := s.sessions.FindByID(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.messages.ListSince(ctx, sessionID, since, limit)
}

// ============================================================================
// Pending Responses
// ============================================================================

// DrainResponses hands every queued bot reply to the caller and
// removes them in the same operation
func (s *Store) DrainResponses(ctx context.Context, sessionID kernel.SessionID) ([]chat.PendingResponse, error) {
	if _, err := s.sessions.FindByID(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.pending.Drain(ctx, sessionID)
}

// ============================================================================
// Maintenance
// ============================================================================

// CleanupExpired removes sessions past their TTL; wired to the cron
// schedule at startup
func (s *Store) CleanupExpired(ctx context.Context) {
	removed, err := s.sessions.DeleteExpired(ctx, time.Now())
	if err != nil {
		log.Printf("❌ Session cleanup failed: %v", err)
		return
	}
	if removed > 0 {
		log.Printf("🧹 Session cleanup removed %d expired sessions", removed)
	}
}
