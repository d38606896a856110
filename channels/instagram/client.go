package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/Abraxas-365/craftable/errx"

	"github.com/flowbot-io/flowbot/channels"
)

const (
	defaultAPIBaseURL = "https://graph.facebook.com"
	defaultAPIVersion = "v24.0"
)

// Client llama a la Instagram Messaging API (Graph API)
type Client struct {
	accessToken string
	httpClient  *http.Client
	apiBaseURL  string
	apiVersion  string
}

func NewClient(accessToken string, opts ...Option) *Client {
	client := &Client{
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		apiBaseURL:  defaultAPIBaseURL,
		apiVersion:  defaultAPIVersion,
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

type sendMessagePayload struct {
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Message struct {
		Text string `json:"text"`
	} `json:"message"`
}

type sendMessageResponse struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
	Error       *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

// SendMessage delivers a direct message to an Instagram user
func (c *Client) SendMessage(ctx context.Context, msg channels.OutgoingMessage) (*channels.SendReceipt, error) {
	if c.accessToken == "" {
		return nil, channels.ErrMissingCredentials().WithDetail("reason", "Access token is required")
	}

	var payload sendMessagePayload
	payload.Recipient.ID = msg.RecipientID
	payload.Message.Text = msg.Text

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, errx.Wrap(err, "failed to encode instagram payload", errx.TypeInternal)
	}

	url := fmt.Sprintf("%s/%s/me/messages?access_token=%s", c.apiBaseURL, c.apiVersion, c.accessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, errx.Wrap(err, "failed to build instagram request", errx.TypeInternal)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errx.Wrap(err, "instagram request failed", errx.TypeExternal)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var apiResp sendMessageResponse
	if err := json.Unmarshal(body, &apiResp); err != nil || apiResp.Error != nil || resp.StatusCode != http.StatusOK {
		log.Printf("❌ Instagram API error - status: %d, body: %s", resp.StatusCode, string(body))
		message := ""
		if apiResp.Error != nil {
			message = apiResp.Error.Message
		}
		return nil, channels.ErrAPIError().
			WithDetail("status_code", resp.StatusCode).
			WithDetail("description", message)
	}

	log.Printf("✅ Instagram message sent to %s (message_id=%s)", msg.RecipientID, apiResp.MessageID)

	return &channels.SendReceipt{
		MessageID: apiResp.MessageID,
		Channel:   channels.ChannelTypeInstagram,
		SentAt:    time.Now(),
	}, nil
}
