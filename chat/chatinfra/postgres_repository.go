package chatinfra

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/Abraxas-365/craftable/logx"
	"github.com/jmoiron/sqlx"

	"github.com/flowbot-io/flowbot/chat"
	"github.com/flowbot-io/flowbot/pkg/kernel"
)

// ============================================================================
// Session Repository
// ============================================================================

type PostgresSessionRepository struct {
	db *sqlx.DB
}

var _ chat.SessionRepository = (*PostgresSessionRepository)(nil)

func NewPostgresSessionRepository(db *sqlx.DB) *PostgresSessionRepository {
	return &PostgresSessionRepository{db: db}
}

// dbChatSession is an intermediate struct for database operations
type dbChatSession struct {
	ID         string          `db:"id"`
	WorkflowID string          `db:"workflow_id"`
	Status     string          `db:"status"`
	UserID     sql.NullString  `db:"user_id"`
	UserName   sql.NullString  `db:"user_name"`
	UserEmail  sql.NullString  `db:"user_email"`
	WebsiteURL sql.NullString  `db:"website_url"`
	Metadata   json.RawMessage `db:"metadata"`
	CreatedAt  time.Time       `db:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at"`
	ExpiresAt  time.Time       `db:"expires_at"`
}

func toDomainSession(row *dbChatSession) (*chat.ChatSession, error) {
	var metadata map[string]any
	if len(row.Metadata) > 0 && string(row.Metadata) != "null" {
		if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &chat.ChatSession{
		ID:         kernel.SessionID(row.ID),
		WorkflowID: kernel.WorkflowID(row.WorkflowID),
		Status:     chat.SessionStatus(row.Status),
		User: chat.UserInfo{
			ID:    row.UserID.String,
			Name:  row.UserName.String,
			Email: row.UserEmail.String,
		},
		WebsiteURL: row.WebsiteURL.String,
		Metadata:   metadata,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
		ExpiresAt:  row.ExpiresAt,
	}, nil
}

// GetOrCreate relies on ON CONFLICT DO NOTHING so concurrent first
// messages from the same widget converge on one row
func (r *PostgresSessionRepository) GetOrCreate(ctx context.Context, id kernel.SessionID, workflowID kernel.WorkflowID, user chat.UserInfo, websiteURL string, ttl time.Duration) (*chat.ChatSession, error) {
	now := time.Now()

	insert := `
		INSERT INTO chat_sessions (id, workflow_id, status, user_id, user_name, user_email, website_url, metadata, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, '{}', $8, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, insert,
		id.String(), workflowID.String(), string(chat.SessionStatusActive),
		nullString(user.ID), nullString(user.Name), nullString(user.Email), nullString(websiteURL),
		now, now.Add(ttl))
	if err != nil {
		return nil, errx.Wrap(err, "failed to create chat session", errx.TypeInternal).
			WithDetail("session_id", id.String())
	}

	return r.FindByID(ctx, id)
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func (r *PostgresSessionRepository) FindByID(ctx context.Context, id kernel.SessionID) (*chat.ChatSession, error) {
	query := `
		SELECT id, workflow_id, status, user_id, user_name, user_email, website_url, metadata, created_at, updated_at, expires_at
		FROM chat_sessions
		WHERE id = $1`

	var row dbChatSession
	err := r.db.GetContext(ctx, &row, query, id.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, chat.ErrSessionNotFound().WithDetail("session_id", id.String())
		}
		return nil, errx.Wrap(err, "failed to find chat session", errx.TypeInternal).
			WithDetail("session_id", id.String())
	}

	return toDomainSession(&row)
}

func (r *PostgresSessionRepository) Touch(ctx context.Context, id kernel.SessionID, ttl time.Duration) error {
	query := `UPDATE chat_sessions SET updated_at = $2, expires_at = $3 WHERE id = $1`

	now := time.Now()
	result, err := r.db.ExecContext(ctx, query, id.String(), now, now.Add(ttl))
	if err != nil {
		return errx.Wrap(err, "failed to touch chat session", errx.TypeInternal)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}
	if affected == 0 {
		return chat.ErrSessionNotFound().WithDetail("session_id", id.String())
	}
	return nil
}

func (r *PostgresSessionRepository) Close(ctx context.Context, id kernel.SessionID, status chat.SessionStatus) error {
	query := `UPDATE chat_sessions SET status = $2, updated_at = $3 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id.String(), string(status), time.Now())
	if err != nil {
		return errx.Wrap(err, "failed to close chat session", errx.TypeInternal)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}
	if affected == 0 {
		return chat.ErrSessionNotFound().WithDetail("session_id", id.String())
	}
	return nil
}

func (r *PostgresSessionRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM chat_sessions WHERE expires_at < $1`

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, errx.Wrap(err, "failed to delete expired sessions", errx.TypeInternal)
	}
	return result.RowsAffected()
}

// ============================================================================
// Message Repository
// ============================================================================

type PostgresMessageRepository struct {
	db *sqlx.DB
}

var _ chat.MessageRepository = (*PostgresMessageRepository)(nil)

func NewPostgresMessageRepository(db *sqlx.DB) *PostgresMessageRepository {
	return &PostgresMessageRepository{db: db}
}

type dbChatMessage struct {
	ID        string          `db:"id"`
	SessionID string          `db:"session_id"`
	Seq       int64           `db:"seq"`
	Role      string          `db:"role"`
	Content   string          `db:"content"`
	Metadata  json.RawMessage `db:"metadata"`
	CreatedAt time.Time       `db:"created_at"`
}

func toDomainMessage(row *dbChatMessage) (*chat.ChatMessage, error) {
	var metadata map[string]any
	if len(row.Metadata) > 0 && string(row.Metadata) != "null" {
		if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &chat.ChatMessage{
		ID:        kernel.MessageID(row.ID),
		SessionID: kernel.SessionID(row.SessionID),
		Seq:       row.Seq,
		Role:      chat.MessageRole(row.Role),
		Content:   row.Content,
		Metadata:  metadata,
		CreatedAt: row.CreatedAt,
	}, nil
}

// Append assigns the per-session sequence number inside the insert so
// concurrent appends never collide
func (r *PostgresMessageRepository) Append(ctx context.Context, message chat.ChatMessage) (*chat.ChatMessage, error) {
	metadataJSON := []byte("{}")
	if len(message.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(message.Metadata)
		if err != nil {
			logx.Error("Error marshaling message metadata: %v", err)
			return nil, errx.Wrap(err, "failed to marshal message metadata", errx.TypeInternal)
		}
	}

	query := `
		INSERT INTO chat_messages (id, session_id, seq, role, content, metadata, created_at)
		VALUES (
			$1, $2,
			COALESCE((SELECT MAX(seq) FROM chat_messages WHERE session_id = $2), 0) + 1,
			$3, $4, $5, $6
		)
		RETURNING seq`

	var seq int64
	err := r.db.QueryRowContext(ctx, query,
		message.ID.String(), message.SessionID.String(),
		string(message.Role), message.Content, metadataJSON, message.CreatedAt,
	).Scan(&seq)
	if err != nil {
		return nil, errx.Wrap(err, "failed to append chat message", errx.TypeInternal).
			WithDetail("session_id", message.SessionID.String())
	}

	message.Seq = seq
	return &message, nil
}

func (r *PostgresMessageRepository) ListAfter(ctx context.Context, sessionID kernel.SessionID, after int64, limit int) ([]chat.ChatMessage, error) {
	if limit <= 0 {
		limit = 200
	}

	query := `
		SELECT id, session_id, seq, role, content, metadata, created_at
		FROM chat_messages
		WHERE session_id = $1 AND seq > $2
		ORDER BY seq ASC
		LIMIT $3`

	var rows []dbChatMessage
	err := r.db.SelectContext(ctx, &rows, query, sessionID.String(), after, limit)
	if err != nil {
		return nil, errx.Wrap(err, "failed to list chat messages", errx.TypeInternal).
			WithDetail("session_id", sessionID.String())
	}

	messages := make([]chat.ChatMessage, 0, len(rows))
	for i := range rows {
		message, err := toDomainMessage(&rows[i])
		if err != nil {
			return nil, err
		}
		messages = append(messages, *message)
	}
	return messages, nil
}

func (r *PostgresMessageRepository) ListSince(ctx context.Context, sessionID kernel.SessionID, since time.Time, limit int) ([]chat.ChatMessage, error) {
	if limit <= 0 {
		limit = 200
	}

	query := `
		SELECT id, session_id, seq, role, content, metadata, created_at
		FROM chat_messages
		WHERE session_id = $1 AND created_at > $2
		ORDER BY seq ASC
		LIMIT $3`

	var rows []dbChatMessage
	err := r.db.SelectContext(ctx, &rows, query, sessionID.String(), since, limit)
	if err != nil {
		return nil, errx.Wrap(err, "failed to list chat messages", errx.TypeInternal).
			WithDetail("session_id", sessionID.String())
	}

	messages := make([]chat.ChatMessage, 0, len(rows))
	for i := range rows {
		message, err := toDomainMessage(&rows[i])
		if err != nil {
			return nil, err
		}
		messages = append(messages, *message)
	}
	return messages, nil
}

// ============================================================================
// Pending Response Repository
// ============================================================================

type PostgresPendingResponseRepository struct {
	db *sqlx.DB
}

var _ chat.PendingResponseRepository = (*PostgresPendingResponseRepository)(nil)

func NewPostgresPendingResponseRepository(db *sqlx.DB) *PostgresPendingResponseRepository {
	return &PostgresPendingResponseRepository{db: db}
}

type dbPendingResponse struct {
	ID        string          `db:"id"`
	SessionID string          `db:"session_id"`
	Content   string          `db:"content"`
	Type      sql.NullString  `db:"type"`
	Metadata  json.RawMessage `db:"metadata"`
	CreatedAt time.Time       `db:"created_at"`
}

func (r *PostgresPendingResponseRepository) Add(ctx context.Context, response chat.PendingResponse) error {
	metadataJSON := []byte("{}")
	if len(response.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(response.Metadata)
		if err != nil {
			return errx.Wrap(err, "failed to marshal response metadata", errx.TypeInternal)
		}
	}

	query := `
		INSERT INTO chat_pending_responses (id, session_id, content, type, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.ExecContext(ctx, query,
		response.ID.String(), response.SessionID.String(),
		response.Content, response.Type, metadataJSON, response.CreatedAt,
	)
	if err != nil {
		return errx.Wrap(err, "failed to queue pending response", errx.TypeInternal).
			WithDetail("session_id", response.SessionID.String())
	}
	return nil
}

// Drain deletes and returns in one statement; the RETURNING clause
// makes the swap atomic so concurrent polls never share a response
func (r *PostgresPendingResponseRepository) Drain(ctx context.Context, sessionID kernel.SessionID) ([]chat.PendingResponse, error) {
	query := `
		DELETE FROM chat_pending_responses
		WHERE session_id = $1
		RETURNING id, session_id, content, type, metadata, created_at`

	var rows []dbPendingResponse
	err := r.db.SelectContext(ctx, &rows, query, sessionID.String())
	if err != nil {
		return nil, errx.Wrap(err, "failed to drain pending responses", errx.TypeInternal).
			WithDetail("session_id", sessionID.String())
	}

	responses := make([]chat.PendingResponse, 0, len(rows))
	for _, row := range rows {
		var metadata map[string]any
		if len(row.Metadata) > 0 && string(row.Metadata) != "null" {
			if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
				return nil, errx.Wrap(err, "failed to unmarshal response metadata", errx.TypeInternal)
			}
		}
		responses = append(responses, chat.PendingResponse{
			ID:        kernel.MessageID(row.ID),
			SessionID: kernel.SessionID(row.SessionID),
			Content:   row.Content,
			Type:      row.Type.String,
			Metadata:  metadata,
			CreatedAt: row.CreatedAt,
		})
	}

	// Oldest first for in-order rendering
	for i := 1; i < len(responses); i++ {
		for j := i; j > 0 && responses[j].CreatedAt.Before(responses[j-1].CreatedAt); j-- {
			responses[j], responses[j-1] = responses[j-1], responses[j]
		}
	}

	return responses, nil
}
