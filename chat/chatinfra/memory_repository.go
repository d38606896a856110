package chatinfra

import (
	"context"
	"sync"
	"time"

	"github.com/flowbot-io/flowbot/chat"
	"github.com/flowbot-io/flowbot/pkg/kernel"
)

// In-memory repositories for tests and single-process development.
// The pending queue mirrors the SQL drain contract: remove-and-return
// under one lock.

// ============================================================================
// Session Repository
// ============================================================================

type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[kernel.SessionID]chat.ChatSession
}

var _ chat.SessionRepository = (*MemorySessionRepository)(nil)

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[kernel.SessionID]chat.ChatSession)}
}

func (r *MemorySessionRepository) GetOrCreate(ctx context.Context, id kernel.SessionID, workflowID kernel.WorkflowID, user chat.UserInfo, websiteURL string, ttl time.Duration) (*chat.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session, ok := r.sessions[id]; ok {
		return &session, nil
	}

	now := time.Now()
	session := chat.ChatSession{
		ID:         id,
		WorkflowID: workflowID,
		Status:     chat.SessionStatusActive,
		User:       user,
		WebsiteURL: websiteURL,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	r.sessions[id] = session
	return &session, nil
}

func (r *MemorySessionRepository) FindByID(ctx context.Context, id kernel.SessionID) (*chat.ChatSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, chat.ErrSessionNotFound().WithDetail("session_id", id.String())
	}
	return &session, nil
}

func (r *MemorySessionRepository) Touch(ctx context.Context, id kernel.SessionID, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return chat.ErrSessionNotFound().WithDetail("session_id", id.String())
	}
	session.Touch(time.Now(), ttl)
	r.sessions[id] = session
	return nil
}

func (r *MemorySessionRepository) Close(ctx context.Context, id kernel.SessionID, status chat.SessionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return chat.ErrSessionNotFound().WithDetail("session_id", id.String())
	}
	session.Status = status
	session.UpdatedAt = time.Now()
	r.sessions[id] = session
	return nil
}

func (r *MemorySessionRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for id, session := range r.sessions {
		if session.IsExpired(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// ============================================================================
// Message Repository
// ============================================================================

type MemoryMessageRepository struct {
	mu       sync.RWMutex
	messages map[kernel.SessionID][]chat.ChatMessage
}

var _ chat.MessageRepository = (*MemoryMessageRepository)(nil)

func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{messages: make(map[kernel.SessionID][]chat.ChatMessage)}
}

func (r *MemoryMessageRepository) Append(ctx context.Context, message chat.ChatMessage) (*chat.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	history := r.messages[message.SessionID]
	message.Seq = int64(len(history)) + 1
	r.messages[message.SessionID] = append(history, message)
	return &message, nil
}

func (r *MemoryMessageRepository) ListAfter(ctx context.Context, sessionID kernel.SessionID, after int64, limit int) ([]chat.ChatMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 200
	}

	var result []chat.ChatMessage
	for _, message := range r.messages[sessionID] {
		if message.Seq > after {
			result = append(result, message)
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (r *MemoryMessageRepository) ListSince(ctx context.Context, sessionID kernel.SessionID, since time.Time, limit int) ([]chat.ChatMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 200
	}

	var result []chat.ChatMessage
	for _, message := range r.messages[sessionID] {
		if message.CreatedAt.After(since) {
			result = append(result, message)
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

// ============================================================================
// Pending Response Repository
// ============================================================================

type MemoryPendingResponseRepository struct {
	mu      sync.Mutex
	pending map[kernel.SessionID][]chat.PendingResponse
}

var _ chat.PendingResponseRepository = (*MemoryPendingResponseRepository)(nil)

func NewMemoryPendingResponseRepository() *MemoryPendingResponseRepository {
	return &MemoryPendingResponseRepository{pending: make(map[kernel.SessionID][]chat.PendingResponse)}
}

func (r *MemoryPendingResponseRepository) Add(ctx context.Context, response chat.PendingResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending[response.SessionID] = append(r.pending[response.SessionID], response)
	return nil
}

func (r *MemoryPendingResponseRepository) Drain(ctx context.Context, sessionID kernel.SessionID) ([]chat.PendingResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	responses := r.pending[sessionID]
	delete(r.pending, sessionID)
	return responses, nil
}
