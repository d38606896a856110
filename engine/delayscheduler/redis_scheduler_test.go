package delayscheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbot-io/flowbot/engine"
	"github.com/flowbot-io/flowbot/pkg/kernel"
)

func newTestScheduler(t *testing.T, handler engine.ContinuationHandler) (*RedisDelayScheduler, *miniredis.Miniredis) {
	t.Helper()

	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	t.Cleanup(srv.Close)

	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisDelayScheduler(client, handler), srv
}

func TestScheduleStoresContinuation(t *testing.T) {
	scheduler, srv := newTestScheduler(t, nil)
	ctx := context.Background()

	continuation := &engine.WorkflowContinuation{
		Kind:         engine.ContinuationResumeRun,
		WorkflowID:   kernel.WorkflowID("wf-1"),
		ResumeNodeID: "delay-1",
	}

	err := scheduler.Schedule(ctx, continuation, 5*time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, continuation.ID, "schedule should assign an id")

	assert.True(t, srv.Exists(delayedExecutionsKey))
	assert.True(t, srv.Exists(continuationPrefix+continuation.ID))

	count, err := scheduler.GetPendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	stored, err := scheduler.GetContinuation(ctx, continuation.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.ContinuationResumeRun, stored.Kind)
	assert.Equal(t, kernel.WorkflowID("wf-1"), stored.WorkflowID)
	assert.Equal(t, "delay-1", stored.ResumeNodeID)
}

func TestShouldUseAsyncThreshold(t *testing.T) {
	scheduler, _ := newTestScheduler(t, nil)

	assert.False(t, scheduler.ShouldUseAsync(5*time.Second))
	assert.False(t, scheduler.ShouldUseAsync(30*time.Second))
	assert.True(t, scheduler.ShouldUseAsync(31*time.Second))
	assert.True(t, scheduler.ShouldUseAsync(2*time.Minute))
}

func TestProcessDueExecutionsDispatchesHandler(t *testing.T) {
	received := make(chan *engine.WorkflowContinuation, 1)
	scheduler, _ := newTestScheduler(t, func(ctx context.Context, c *engine.WorkflowContinuation) error {
		received <- c
		return nil
	})
	ctx := context.Background()

	continuation := &engine.WorkflowContinuation{
		Kind:       engine.ContinuationChatResponse,
		SessionID:  kernel.SessionID("sess-1"),
		Payload:    map[string]any{"content": "hola"},
		WorkflowID: kernel.WorkflowID("wf-1"),
	}
	require.NoError(t, scheduler.Schedule(ctx, continuation, 0))

	require.NoError(t, scheduler.processDueExecutions(ctx))

	select {
	case got := <-received:
		assert.Equal(t, continuation.ID, got.ID)
		assert.Equal(t, engine.ContinuationChatResponse, got.Kind)
		assert.Equal(t, kernel.SessionID("sess-1"), got.SessionID)
		assert.Equal(t, "hola", got.Payload["content"])
	case <-time.After(2 * time.Second):
		t.Fatal("continuation handler was not invoked")
	}

	// Claimed jobs leave the queue even before cleanup finishes
	count, err := scheduler.GetPendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestProcessSkipsFutureExecutions(t *testing.T) {
	invoked := make(chan struct{}, 1)
	scheduler, _ := newTestScheduler(t, func(ctx context.Context, c *engine.WorkflowContinuation) error {
		invoked <- struct{}{}
		return nil
	})
	ctx := context.Background()

	continuation := &engine.WorkflowContinuation{
		Kind:         engine.ContinuationResumeRun,
		WorkflowID:   kernel.WorkflowID("wf-1"),
		ResumeNodeID: "delay-1",
	}
	require.NoError(t, scheduler.Schedule(ctx, continuation, time.Hour))

	require.NoError(t, scheduler.processDueExecutions(ctx))

	select {
	case <-invoked:
		t.Fatal("handler ran for a continuation that is not due yet")
	case <-time.After(100 * time.Millisecond):
	}

	count, err := scheduler.GetPendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCancelRemovesScheduledContinuation(t *testing.T) {
	scheduler, srv := newTestScheduler(t, nil)
	ctx := context.Background()

	continuation := &engine.WorkflowContinuation{
		Kind:         engine.ContinuationResumeRun,
		WorkflowID:   kernel.WorkflowID("wf-1"),
		ResumeNodeID: "delay-1",
	}
	require.NoError(t, scheduler.Schedule(ctx, continuation, time.Hour))

	require.NoError(t, scheduler.Cancel(ctx, continuation.ID))

	count, err := scheduler.GetPendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
	assert.False(t, srv.Exists(continuationPrefix+continuation.ID))
}
