package chatapi

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/flowbot-io/flowbot/chat"
	"github.com/flowbot-io/flowbot/chat/sessionstore"
	"github.com/flowbot-io/flowbot/engine"
	"github.com/flowbot-io/flowbot/pkg/kernel"
)

// EventDispatcher routes chat events into the workflow engine
type EventDispatcher interface {
	HandleEvent(ctx context.Context, event engine.TriggerEvent) error
}

// ChatHandler maneja las rutas del chat widget con Fiber
type ChatHandler struct {
	store      *sessionstore.Store
	dispatcher EventDispatcher
}

func NewChatHandler(store *sessionstore.Store, dispatcher EventDispatcher) *ChatHandler {
	return &ChatHandler{
		store:      store,
		dispatcher: dispatcher,
	}
}

// RegisterRoutes registra las rutas del chat en Fiber
func (h *ChatHandler) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api/chat")

	api.Post("/webhook/:workflowId", h.HandleWebhook)
	api.Post("/response/:sessionId", h.PostResponse)
	api.Get("/responses/:sessionId", h.PollResponses)
	api.Get("/session/:sessionId/messages", h.GetMessages)
}

// HandleWebhook receives a user message, records it and fires the
// workflow. The run is asynchronous; replies land in the pending queue
// and are picked up by polling.
func (h *ChatHandler) HandleWebhook(c *fiber.Ctx) error {
	workflowID := kernel.WorkflowID(c.Params("workflowId"))

	var req chat.WebhookRequest
	if err := c.BodyParser(&req); err != nil {
		return chat.ErrInvalidSessionID().WithDetail("reason", "invalid request body")
	}

	// The widget may omit the session id on first contact
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	sessionID := kernel.SessionID(req.SessionID)
	if _, err := h.store.EnsureSession(c.Context(), sessionID, workflowID, req.User(), req.WebsiteURL); err != nil {
		return err
	}

	message, err := h.store.RecordUserMessage(c.Context(), sessionID, req.Message, req.Metadata)
	if err != nil {
		return err
	}

	eventData := map[string]any{
		"session_id": req.SessionID,
		"message":    req.Message,
		"user": map[string]any{
			"id":    req.UserID,
			"name":  req.UserName,
			"email": req.UserEmail,
		},
	}
	if req.WebsiteURL != "" {
		eventData["websiteUrl"] = req.WebsiteURL
	}
	if req.Metadata != nil {
		eventData["metadata"] = req.Metadata
	}

	event := engine.TriggerEvent{
		Type:       engine.TriggerTypeChatMessage,
		WorkflowID: workflowID,
		SessionID:  sessionID,
		Data:       eventData,
		ReceivedAt: time.Now(),
	}

	if err := h.dispatcher.HandleEvent(c.Context(), event); err != nil {
		return err
	}

	// Replies arrive via the poll endpoints once the run finishes
	return c.JSON(chat.WebhookResponse{
		Success:   true,
		SessionID: sessionID,
		MessageID: message.ID,
		Status:    "processing",
	})
}

// PostResponse queues a bot reply into a session from outside a run
func (h *ChatHandler) PostResponse(c *fiber.Ctx) error {
	sessionID := kernel.SessionID(c.Params("sessionId"))

	var req chat.PostResponseRequest
	if err := c.BodyParser(&req); err != nil {
		return chat.ErrMessageEmpty().WithDetail("reason", "invalid request body")
	}

	metadata := req.Metadata
	if len(req.Buttons) > 0 {
		if metadata == nil {
			metadata = make(map[string]any)
		}
		metadata["buttons"] = req.Buttons
	}

	if req.Delay > 0 {
		delay := time.Duration(req.Delay) * time.Second
		if err := h.store.ScheduleBotResponse(c.Context(), sessionID, req.Content, req.Type, delay); err != nil {
			return err
		}
		log.Printf("⏰ Bot response scheduled for session %s (delay=%s)", sessionID, delay)
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"session_id": sessionID,
			"status":     "scheduled",
			"delay":      delay.String(),
		})
	}

	message, err := h.store.RecordBotResponse(c.Context(), sessionID, req.Content, req.Type, metadata)
	if err != nil {
		return err
	}

	log.Printf("💬 Bot response queued for session %s (seq=%d)", sessionID, message.Seq)
	return c.Status(fiber.StatusCreated).JSON(message)
}

// PollResponses drains the pending queue. Each reply is delivered to
// exactly one poller.
func (h *ChatHandler) PollResponses(c *fiber.Ctx) error {
	sessionID := kernel.SessionID(c.Params("sessionId"))

	responses, err := h.store.DrainResponses(c.Context(), sessionID)
	if err != nil {
		return err
	}

	return c.JSON(chat.PollResponse{
		SessionID: sessionID,
		Responses: responses,
		Count:     len(responses),
	})
}

// GetMessages returns session history after an ISO timestamp cursor.
// The widget passes the created_at of the last message it rendered.
func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	sessionID := kernel.SessionID(c.Params("sessionId"))
	limit := c.QueryInt("limit", 0)

	var since time.Time
	if after := c.Query("after"); after != "" {
		parsed, err := time.Parse(time.RFC3339, after)
		if err != nil {
			return chat.ErrInvalidCursor().
				WithDetail("reason", "after must be an ISO timestamp").
				WithDetail("after", after)
		}
		since = parsed
	}

	messages, err := h.store.HistorySince(c.Context(), sessionID, since, limit)
	if err != nil {
		return err
	}

	// The widget polls here, so waiting bot replies ride along
	pending, err := h.store.DrainResponses(c.Context(), sessionID)
	if err != nil {
		return err
	}

	return c.JSON(chat.MessagesResponse{
		SessionID:      sessionID,
		Messages:       messages,
		Pending:        pending,
		HasNewMessages: len(messages) > 0 || len(pending) > 0,
	})
}
