package main

import (
	"context"
	"fmt"
	"log"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"

	"github.com/flowbot-io/flowbot/chat"
	"github.com/flowbot-io/flowbot/chat/chatapi"
	"github.com/flowbot-io/flowbot/chat/chatinfra"
	"github.com/flowbot-io/flowbot/chat/sessionstore"
	"github.com/flowbot-io/flowbot/engine"
	"github.com/flowbot-io/flowbot/engine/activeregistry"
	"github.com/flowbot-io/flowbot/engine/delayscheduler"
	"github.com/flowbot-io/flowbot/engine/engineapi"
	"github.com/flowbot-io/flowbot/engine/engineinfra"
	"github.com/flowbot-io/flowbot/engine/noderegistry"
	"github.com/flowbot-io/flowbot/engine/triggerhandler"
	"github.com/flowbot-io/flowbot/engine/workflowexec"
	"github.com/flowbot-io/flowbot/pkg/config"
)

// Container contains all application dependencies
type Container struct {
	// =================================================================
	// CONFIGURATION & INFRASTRUCTURE
	// =================================================================
	Config      *config.Config
	DB          *sqlx.DB
	RedisClient *redis.Client

	// =================================================================
	// ENGINE - REPOSITORIES
	// =================================================================
	WorkflowRepo     engine.WorkflowRepository
	ExecutionLogRepo engine.ExecutionLogRepository

	// =================================================================
	// ENGINE - RUNTIME
	// =================================================================
	ExpressionEvaluator engine.ExpressionEvaluator
	NodeRegistry        *noderegistry.Registry
	ActiveRegistry      *activeregistry.Registry
	DriftDetector       *activeregistry.DriftDetector
	WorkflowExecutor    *workflowexec.GraphExecutor
	TriggerHandler      *triggerhandler.TriggerHandler
	DelayScheduler      *delayscheduler.RedisDelayScheduler

	// =================================================================
	// CHAT
	// =================================================================
	ChatSessionRepo chat.SessionRepository
	ChatMessageRepo chat.MessageRepository
	PendingRepo     chat.PendingResponseRepository
	SessionStore    *sessionstore.Store

	// =================================================================
	// API HANDLERS
	// =================================================================
	WorkflowHandler *engineapi.WorkflowHandler
	ChatHandler     *chatapi.ChatHandler

	// =================================================================
	// BACKGROUND JOBS
	// =================================================================
	Cron *cron.Cron
}

// NewContainer creates a new dependency container
func NewContainer(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client) *Container {
	c := &Container{
		Config:      cfg,
		DB:          db,
		RedisClient: redisClient,
	}

	log.Println("📦 Initializing dependency container...")

	c.initRepositories()
	c.initDelayScheduler()
	c.initChatComponents()
	c.initEngineComponents()
	c.initAPIHandlers()
	c.initBackgroundJobs()

	// The continuation handler needs the executor and the session
	// store, both built after the scheduler
	c.DelayScheduler.SetHandler(c.handleWorkflowContinuation)
	c.DelayScheduler.StartWorker(context.Background())
	log.Println("    ✅ Delay scheduler worker started")

	if cfg.Engine.AutoReactivate {
		c.restoreActiveWorkflows()
	}

	log.Println("✅ Dependency container initialized successfully")
	return c
}

// =================================================================
// REPOSITORIES
// =================================================================

func (c *Container) initRepositories() {
	log.Println("  🗄️  Initializing repositories...")

	c.WorkflowRepo = engineinfra.NewPostgresWorkflowRepository(c.DB)
	c.ExecutionLogRepo = engineinfra.NewPostgresExecutionLogRepository(c.DB, c.Config.Engine.ExecutionLogCap)

	c.ChatSessionRepo = chatinfra.NewPostgresSessionRepository(c.DB)
	c.ChatMessageRepo = chatinfra.NewPostgresMessageRepository(c.DB)
	c.PendingRepo = chatinfra.NewPostgresPendingResponseRepository(c.DB)
}

// =================================================================
// DELAY SCHEDULER
// =================================================================

func (c *Container) initDelayScheduler() {
	log.Println("  ⏰ Initializing delay scheduler...")

	// Handler is wired after the executor and session store exist
	c.DelayScheduler = delayscheduler.NewRedisDelayScheduler(c.RedisClient, nil)
}

// =================================================================
// CHAT
// =================================================================

func (c *Container) initChatComponents() {
	log.Println("  💬 Initializing chat components...")

	c.SessionStore = sessionstore.NewStore(
		c.ChatSessionRepo,
		c.ChatMessageRepo,
		c.PendingRepo,
		c.DelayScheduler,
		c.Config.Chat.SessionTTL,
	)
	log.Println("    ✅ Session store initialized")
}

// =================================================================
// ENGINE
// =================================================================

func (c *Container) initEngineComponents() {
	log.Println("  ⚙️  Initializing engine components...")

	policy, err := engine.ParseUnresolvedPolicy(c.Config.Engine.UnresolvedPolicy)
	if err != nil {
		log.Fatalf("❌ Invalid unresolved policy: %v", err)
	}
	c.ExpressionEvaluator = engine.NewTemplateResolver(policy)
	log.Println("    ✅ Template resolver initialized")

	c.NodeRegistry = noderegistry.NewRegistry()
	registerNodeTypes(c.NodeRegistry, c.SessionStore, c.DelayScheduler)
	log.Printf("    ✅ Node registry initialized (%d node types)", len(c.NodeRegistry.Catalog()))

	c.WorkflowExecutor = workflowexec.NewGraphExecutor(
		c.NodeRegistry,
		c.ExpressionEvaluator,
		c.ExecutionLogRepo,
		workflowexec.Options{
			NodeTimeout: c.Config.Engine.NodeTimeout,
			RunTimeout:  c.Config.Engine.RunTimeout,
		},
	)
	log.Println("    ✅ Workflow executor initialized")

	c.ActiveRegistry = activeregistry.NewRegistry()
	c.DriftDetector = activeregistry.NewDriftDetector(c.ActiveRegistry, c.WorkflowRepo)
	log.Println("    ✅ Active workflow registry initialized")

	c.TriggerHandler = triggerhandler.NewTriggerHandler(
		c.ActiveRegistry,
		c.WorkflowRepo,
		c.WorkflowExecutor,
	)
	log.Println("    ✅ Trigger handler initialized")
}

// =================================================================
// API HANDLERS
// =================================================================

func (c *Container) initAPIHandlers() {
	log.Println("  🌐 Initializing API handlers...")

	baseURL := fmt.Sprintf("http://localhost:%s", c.Config.Server.Port)

	c.WorkflowHandler = engineapi.NewWorkflowHandler(
		c.WorkflowRepo,
		c.ExecutionLogRepo,
		c.ActiveRegistry,
		c.NodeRegistry,
		c.DriftDetector,
		c.TriggerHandler,
		baseURL,
	)

	c.ChatHandler = chatapi.NewChatHandler(c.SessionStore, c.TriggerHandler)
}

// =================================================================
// BACKGROUND JOBS
// =================================================================

func (c *Container) initBackgroundJobs() {
	log.Println("  🕐 Initializing background jobs...")

	c.Cron = cron.New()

	schedule := c.Config.Chat.CleanupSchedule
	if _, err := c.Cron.AddFunc(schedule, func() {
		c.SessionStore.CleanupExpired(context.Background())
	}); err != nil {
		log.Fatalf("❌ Invalid chat cleanup schedule %q: %v", schedule, err)
	}

	if _, err := c.Cron.AddFunc("@hourly", func() {
		reports, err := c.DriftDetector.CheckAll(context.Background())
		if err != nil {
			log.Printf("⚠️  Drift check failed: %v", err)
			return
		}
		drifted := 0
		for _, report := range reports {
			if report.Status != engine.DriftNone {
				drifted++
			}
		}
		if drifted > 0 {
			log.Printf("⚠️  Drift check: %d of %d workflows out of sync", drifted, len(reports))
		}
	}); err != nil {
		log.Fatalf("❌ Failed to schedule drift check: %v", err)
	}

	c.Cron.Start()
	log.Printf("    ✅ Session cleanup scheduled (%s), drift check hourly", schedule)
}

// =================================================================
// WORKFLOW CONTINUATION HANDLER
// =================================================================

// handleWorkflowContinuation is called when a delayed execution is due
func (c *Container) handleWorkflowContinuation(
	ctx context.Context,
	continuation *engine.WorkflowContinuation,
) error {
	switch continuation.Kind {
	case engine.ContinuationResumeRun:
		log.Printf("🔄 Resuming workflow %s from node %s",
			continuation.WorkflowID, continuation.ResumeNodeID)

		workflow, err := c.WorkflowRepo.FindByID(ctx, continuation.WorkflowID)
		if err != nil {
			return fmt.Errorf("failed to load workflow for continuation: %w", err)
		}

		result, err := c.WorkflowExecutor.ResumeFrom(ctx, *workflow, continuation.ResumeNodeID, continuation.Input)
		if err != nil {
			return fmt.Errorf("failed to resume workflow: %w", err)
		}

		log.Printf("✅ Resumed run finished: %s (status=%s)", result.RunID, result.Status)
		return nil

	case engine.ContinuationChatResponse:
		return c.SessionStore.DeliverContinuation(ctx, continuation)

	default:
		return fmt.Errorf("unknown continuation kind: %s", continuation.Kind)
	}
}

// =================================================================
// BOOT RECONCILIATION
// =================================================================

// restoreActiveWorkflows re-registers persisted active workflows after
// a restart. Without this the registry starts cold and the debug
// surface reports PERSISTED_NOT_REGISTERED for each of them.
func (c *Container) restoreActiveWorkflows() {
	log.Println("  ♻️  Restoring active workflows from storage...")

	workflows, err := c.WorkflowRepo.FindActive(context.Background())
	if err != nil {
		log.Printf("  ⚠️  Failed to load active workflows: %v", err)
		return
	}

	for _, wf := range workflows {
		c.ActiveRegistry.Activate(*wf, nil)
		log.Printf("    ✅ Re-registered workflow: %s (%s)", wf.Name, wf.ID)
	}

	c.ActiveRegistry.MarkRestored(len(workflows))
	log.Printf("  ✅ Restored %d active workflows", len(workflows))
}

// =================================================================
// LIFECYCLE
// =================================================================

func (c *Container) Cleanup() {
	log.Println("🧹 Cleaning up container resources...")

	if c.Cron != nil {
		log.Println("  🕐 Stopping cron jobs...")
		c.Cron.Stop()
	}

	if c.DelayScheduler != nil {
		log.Println("  ⏰ Stopping delay scheduler...")
		c.DelayScheduler.StopWorker()
	}

	if c.DB != nil {
		log.Println("  🗄️  Closing database connections...")
		c.DB.Close()
	}

	if c.RedisClient != nil {
		log.Println("  🔴 Closing Redis connections...")
		c.RedisClient.Close()
	}

	log.Println("✅ Container cleanup complete")
}

func (c *Container) HealthCheck() map[string]bool {
	health := make(map[string]bool)

	if c.DB != nil {
		health["database"] = c.DB.Ping() == nil
	} else {
		health["database"] = false
	}

	if c.RedisClient != nil {
		health["redis"] = c.RedisClient.Ping(c.RedisClient.Context()).Err() == nil
	} else {
		health["redis"] = false
	}

	health["workflow_executor"] = c.WorkflowExecutor != nil
	health["node_registry"] = c.NodeRegistry != nil
	health["session_store"] = c.SessionStore != nil
	health["delay_scheduler"] = c.DelayScheduler != nil

	return health
}

func (c *Container) GetServiceNames() []string {
	return []string{
		"WorkflowExecutor",
		"TriggerHandler",
		"SessionStore",
		"DelayScheduler",
		"DriftDetector",
	}
}

func (c *Container) GetRepositoryNames() []string {
	return []string{
		"WorkflowRepo",
		"ExecutionLogRepo",
		"ChatSessionRepo",
		"ChatMessageRepo",
		"PendingRepo",
	}
}

// GetDelaySchedulerMetrics expone el backlog del scheduler
func (c *Container) GetDelaySchedulerMetrics(ctx context.Context) (int64, error) {
	return c.DelayScheduler.GetPendingCount(ctx)
}
