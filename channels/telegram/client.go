package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/Abraxas-365/craftable/errx"

	"github.com/flowbot-io/flowbot/channels"
)

const defaultAPIBaseURL = "https://api.telegram.org"

// Client llama a la Bot API de Telegram
type Client struct {
	botToken   string
	httpClient *http.Client
	apiBaseURL string
}

// NewClient creates a client for one bot token. The base URL is
// overridable so tests can point at a local server.
func NewClient(botToken string, opts ...Option) *Client {
	client := &Client{
		botToken:   botToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiBaseURL: defaultAPIBaseURL,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithAPIBaseURL(baseURL string) Option {
	return func(c *Client) { c.apiBaseURL = baseURL }
}

// sendMessageRequest is the Bot API sendMessage payload
type sendMessageRequest struct {
	ChatID              string `json:"chat_id"`
	Text                string `json:"text"`
	ParseMode           string `json:"parse_mode,omitempty"`
	DisableNotification bool   `json:"disable_notification,omitempty"`
	ReplyToMessageID    *int64 `json:"reply_to_message_id,omitempty"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

// SendMessage delivers a text message to a chat
func (c *Client) SendMessage(ctx context.Context, msg channels.OutgoingMessage) (*channels.SendReceipt, error) {
	if c.botToken == "" {
		return nil, channels.ErrMissingCredentials().WithDetail("reason", "Bot API Token is required")
	}

	payload := sendMessageRequest{
		ChatID:    msg.RecipientID,
		Text:      msg.Text,
		ParseMode: msg.ParseMode,
	}
	if disable, ok := msg.Metadata["disable_notification"].(bool); ok {
		payload.DisableNotification = disable
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, errx.Wrap(err, "failed to encode telegram payload", errx.TypeInternal)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.apiBaseURL, c.botToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, errx.Wrap(err, "failed to build telegram request", errx.TypeInternal)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errx.Wrap(err, "telegram request failed", errx.TypeExternal)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var apiResp sendMessageResponse
	if err := json.Unmarshal(body, &apiResp); err != nil || !apiResp.OK {
		log.Printf("❌ Telegram API error - status: %d, body: %s", resp.StatusCode, string(body))
		return nil, channels.ErrAPIError().
			WithDetail("status_code", resp.StatusCode).
			WithDetail("description", apiResp.Description)
	}

	log.Printf("✅ Telegram message sent to chat %s (message_id=%d)", msg.RecipientID, apiResp.Result.MessageID)

	return &channels.SendReceipt{
		MessageID: strconv.FormatInt(apiResp.Result.MessageID, 10),
		Channel:   channels.ChannelTypeTelegram,
		SentAt:    time.Now(),
	}, nil
}
