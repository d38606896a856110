package delayscheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/flowbot-io/flowbot/engine"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	delayedExecutionsKey = "flowbot:delayed_executions" // Sorted set
	continuationPrefix   = "flowbot:continuation:"      // String keys
	syncDelayThreshold   = 30 * time.Second
)

var _ engine.DelayScheduler = (*RedisDelayScheduler)(nil)

type RedisDelayScheduler struct {
	redis          *redis.Client
	syncThreshold  time.Duration
	onContinuation engine.ContinuationHandler
	workerRunning  bool
	stopChan       chan struct{}
}

func NewRedisDelayScheduler(
	redisClient *redis.Client,
	handler engine.ContinuationHandler,
) *RedisDelayScheduler {
	return &RedisDelayScheduler{
		redis:          redisClient,
		syncThreshold:  syncDelayThreshold,
		onContinuation: handler,
		stopChan:       make(chan struct{}),
	}
}

// SetHandler swaps the continuation handler. Useful when the handler
// needs components that are constructed after the scheduler.
func (r *RedisDelayScheduler) SetHandler(handler engine.ContinuationHandler) {
	r.onContinuation = handler
}

// Schedule persists a workflow continuation and queues it for the
// scheduled time.
func (r *RedisDelayScheduler) Schedule(
	ctx context.Context,
	continuation *engine.WorkflowContinuation,
	delay time.Duration,
) error {
	if continuation.ID == "" {
		continuation.ID = uuid.New().String()
	}

	continuation.ScheduledFor = time.Now().Add(delay)
	continuation.CreatedAt = time.Now()

	data, err := json.Marshal(continuation)
	if err != nil {
		return fmt.Errorf("failed to marshal continuation: %w", err)
	}

	// Store continuation data with some slack past the due time
	key := fmt.Sprintf("%s%s", continuationPrefix, continuation.ID)
	if err := r.redis.Set(ctx, key, data, delay+time.Hour).Err(); err != nil {
		return fmt.Errorf("failed to store continuation: %w", err)
	}

	// Add to sorted set with execution timestamp as score
	score := float64(continuation.ScheduledFor.Unix())
	if err := r.redis.ZAdd(ctx, delayedExecutionsKey, &redis.Z{
		Score:  score,
		Member: continuation.ID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to schedule continuation: %w", err)
	}

	log.Printf("⏰ Scheduled continuation %s (%s) for %v (delay: %v)",
		continuation.ID, continuation.Kind, continuation.ScheduledFor, delay)

	return nil
}

// ShouldUseAsync determines if a delay should be parked in Redis
// instead of blocking the run.
func (r *RedisDelayScheduler) ShouldUseAsync(duration time.Duration) bool {
	return duration > r.syncThreshold
}

// StartWorker starts the background worker
func (r *RedisDelayScheduler) StartWorker(ctx context.Context) {
	if r.workerRunning {
		log.Println("⚠️  Delay scheduler worker already running")
		return
	}

	r.workerRunning = true
	log.Println("🚀 Starting delay scheduler worker...")

	go r.workerLoop(ctx)
}

// StopWorker stops the background worker
func (r *RedisDelayScheduler) StopWorker() {
	if !r.workerRunning {
		return
	}

	log.Println("🛑 Stopping delay scheduler worker...")
	close(r.stopChan)
	r.workerRunning = false
}

func (r *RedisDelayScheduler) workerLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("⏹️  Delay scheduler worker stopped (context done)")
			return
		case <-r.stopChan:
			log.Println("⏹️  Delay scheduler worker stopped")
			return
		case <-ticker.C:
			if err := r.processDueExecutions(ctx); err != nil {
				log.Printf("❌ Error processing due executions: %v", err)
			}
		}
	}
}

func (r *RedisDelayScheduler) processDueExecutions(ctx context.Context) error {
	now := float64(time.Now().Unix())

	jobs, err := r.redis.ZRangeByScore(ctx, delayedExecutionsKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%f", now),
		Count: 10,
	}).Result()

	if err != nil {
		return fmt.Errorf("failed to fetch due executions: %w", err)
	}

	if len(jobs) == 0 {
		return nil
	}

	log.Printf("📋 Found %d due executions to process", len(jobs))

	for _, jobID := range jobs {
		// Claim the job atomically; another worker may get here first
		removed, err := r.redis.ZRem(ctx, delayedExecutionsKey, jobID).Result()
		if err != nil || removed == 0 {
			continue
		}

		go r.executeJob(context.Background(), jobID)
	}

	return nil
}

func (r *RedisDelayScheduler) executeJob(ctx context.Context, jobID string) {
	log.Printf("▶️  Executing delayed job: %s", jobID)

	key := fmt.Sprintf("%s%s", continuationPrefix, jobID)
	data, err := r.redis.Get(ctx, key).Result()
	if err != nil {
		log.Printf("❌ Failed to retrieve continuation %s: %v", jobID, err)
		return
	}

	var continuation engine.WorkflowContinuation
	if err := json.Unmarshal([]byte(data), &continuation); err != nil {
		log.Printf("❌ Failed to unmarshal continuation %s: %v", jobID, err)
		return
	}

	if r.onContinuation != nil {
		if err := r.onContinuation(ctx, &continuation); err != nil {
			log.Printf("❌ Failed to execute continuation %s: %v", jobID, err)
			return
		}
	}

	r.redis.Del(ctx, key)
	log.Printf("✅ Completed delayed job: %s", jobID)
}

// GetPendingCount returns the number of pending delayed executions
func (r *RedisDelayScheduler) GetPendingCount(ctx context.Context) (int64, error) {
	return r.redis.ZCard(ctx, delayedExecutionsKey).Result()
}

// GetContinuation retrieves a continuation by ID
func (r *RedisDelayScheduler) GetContinuation(ctx context.Context, id string) (*engine.WorkflowContinuation, error) {
	key := fmt.Sprintf("%s%s", continuationPrefix, id)
	data, err := r.redis.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	var continuation engine.WorkflowContinuation
	if err := json.Unmarshal([]byte(data), &continuation); err != nil {
		return nil, err
	}

	return &continuation, nil
}

// Cancel removes a scheduled continuation before it runs.
func (r *RedisDelayScheduler) Cancel(ctx context.Context, id string) error {
	if err := r.redis.ZRem(ctx, delayedExecutionsKey, id).Err(); err != nil {
		return err
	}

	key := fmt.Sprintf("%s%s", continuationPrefix, id)
	return r.redis.Del(ctx, key).Err()
}
