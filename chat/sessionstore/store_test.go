package sessionstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/uuid"

	"github.com/flowbot-io/flowbot/chat"
	"github.com/flowbot-io/flowbot/chat/chatinfra"
	"github.com/flowbot-io/flowbot/pkg/kernel"
)

func newTestStore() *Store {
	return NewStore(
		chatinfra.NewMemorySessionRepository(),
		chatinfra.NewMemoryMessageRepository(),
		chatinfra.NewMemoryPendingResponseRepository(),
		nil,
		time.Hour,
	)
}

func TestEnsureSessionIsIdempotent(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	sessionID := kernel.NewSessionID(uuid.NewString())
	workflowID := kernel.NewWorkflowID(uuid.NewString())

	first, err := store.EnsureSession(ctx, sessionID, workflowID, chat.UserInfo{}, "")
	require.NoError(t, err)

	second, err := store.EnsureSession(ctx, sessionID, workflowID, chat.UserInfo{}, "")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, first.WorkflowID, second.WorkflowID)
}

func TestEnsureSessionStoresVisitorIdentity(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	sessionID := kernel.NewSessionID(uuid.NewString())
	user := chat.UserInfo{ID: "u-1", Name: "Ana", Email: "ana@example.com"}

	created, err := store.EnsureSession(ctx, sessionID, kernel.NewWorkflowID(uuid.NewString()), user, "https://tienda.example.com")
	require.NoError(t, err)
	assert.Equal(t, user, created.User)
	assert.Equal(t, "https://tienda.example.com", created.WebsiteURL)

	// Identity from later contacts never overwrites the first one
	again, err := store.EnsureSession(ctx, sessionID, created.WorkflowID, chat.UserInfo{Name: "Otra"}, "")
	require.NoError(t, err)
	assert.Equal(t, user, again.User)
}

func TestEnsureSessionRejectsBlankID(t *testing.T) {
	store := newTestStore()

	_, err := store.EnsureSession(context.Background(), kernel.SessionID("  "), kernel.NewWorkflowID(uuid.NewString()), chat.UserInfo{}, "")
	require.Error(t, err)
}

func TestMessageHistoryOrdering(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	sessionID := kernel.NewSessionID(uuid.NewString())
	_, err := store.EnsureSession(ctx, sessionID, kernel.NewWorkflowID(uuid.NewString()), chat.UserInfo{}, "")
	require.NoError(t, err)

	_, err = store.RecordUserMessage(ctx, sessionID, "hola", nil)
	require.NoError(t, err)
	_, err = store.RecordBotResponse(ctx, sessionID, "¿en qué puedo ayudarte?", "text", nil)
	require.NoError(t, err)
	_, err = store.RecordUserMessage(ctx, sessionID, "precios", nil)
	require.NoError(t, err)

	history, err := store.History(ctx, sessionID, 0, 50)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, chat.RoleUser, history[0].Role)
	assert.Equal(t, chat.RoleBot, history[1].Role)
	assert.Equal(t, int64(3), history[2].Seq)

	// Incremental poll picks up only the tail
	tail, err := store.History(ctx, sessionID, history[1].Seq, 50)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, "precios", tail[0].Content)
}

func TestRecordUserMessageRejectsEmpty(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	sessionID := kernel.NewSessionID(uuid.NewString())
	_, err := store.EnsureSession(ctx, sessionID, kernel.NewWorkflowID(uuid.NewString()), chat.UserInfo{}, "")
	require.NoError(t, err)

	_, err = store.RecordUserMessage(ctx, sessionID, "   ", nil)
	require.Error(t, err)
}

func TestBotResponseReachesBothHistoryAndQueue(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	sessionID := kernel.NewSessionID(uuid.NewString())
	_, err := store.EnsureSession(ctx, sessionID, kernel.NewWorkflowID(uuid.NewString()), chat.UserInfo{}, "")
	require.NoError(t, err)

	_, err = store.RecordBotResponse(ctx, sessionID, "hola!", "text", nil)
	require.NoError(t, err)

	responses, err := store.DrainResponses(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.Equal(t, "hola!", responses[0].Content)

	history, err := store.History(ctx, sessionID, 0, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, chat.RoleBot, history[0].Role)
}

func TestDrainDeliversEachResponseOnce(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	sessionID := kernel.NewSessionID(uuid.NewString())
	_, err := store.EnsureSession(ctx, sessionID, kernel.NewWorkflowID(uuid.NewString()), chat.UserInfo{}, "")
	require.NoError(t, err)

	const queued = 20
	for i := 0; i < queued; i++ {
		_, err := store.RecordBotResponse(ctx, sessionID, "respuesta", "text", nil)
		require.NoError(t, err)
	}

	// Concurrent polls race the drain; every response must land in
	// exactly one poll
	const pollers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0

	for i := 0; i < pollers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			responses, err := store.DrainResponses(ctx, sessionID)
			assert.NoError(t, err)
			mu.Lock()
			total += len(responses)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, queued, total)

	// Nothing left
	responses, err := store.DrainResponses(ctx, sessionID)
	require.NoError(t, err)
	assert.Empty(t, responses)
}

func TestDrainUnknownSessionFails(t *testing.T) {
	store := newTestStore()

	_, err := store.DrainResponses(context.Background(), kernel.NewSessionID(uuid.NewString()))
	require.Error(t, err)
}

func TestCleanupExpiredRemovesOnlyStaleSessions(t *testing.T) {
	sessions := chatinfra.NewMemorySessionRepository()
	store := NewStore(sessions, chatinfra.NewMemoryMessageRepository(), chatinfra.NewMemoryPendingResponseRepository(), nil, 10*time.Millisecond)
	ctx := context.Background()

	stale := kernel.NewSessionID(uuid.NewString())
	_, err := store.EnsureSession(ctx, stale, kernel.NewWorkflowID(uuid.NewString()), chat.UserInfo{}, "")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	fresh := kernel.NewSessionID(uuid.NewString())
	_, err = sessions.GetOrCreate(ctx, fresh, kernel.NewWorkflowID(uuid.NewString()), chat.UserInfo{}, "", time.Hour)
	require.NoError(t, err)

	store.CleanupExpired(ctx)

	_, err = store.GetSession(ctx, stale)
	require.Error(t, err)
	_, err = store.GetSession(ctx, fresh)
	require.NoError(t, err)
}
