package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/Abraxas-365/craftable/errx"

	"github.com/flowbot-io/flowbot/channels"
)

const defaultAPIBaseURL = "https://api.linkedin.com"

// Client publishes posts through the LinkedIn UGC API
type Client struct {
	accessToken string
	httpClient  *http.Client
	apiBaseURL  string
}

func NewClient(accessToken string, opts ...Option) *Client {
	client := &Client{
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		apiBaseURL:  defaultAPIBaseURL,
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

// PostRequest is a text share
type PostRequest struct {
	AuthorURN  string
	Text       string
	Visibility string // PUBLIC or CONNECTIONS
}

// ugcPost mirrors the ugcPosts wire format
type ugcPost struct {
	Author          string `json:"author"`
	LifecycleState  string `json:"lifecycleState"`
	SpecificContent struct {
		ShareContent struct {
			ShareCommentary struct {
				Text string `json:"text"`
			} `json:"shareCommentary"`
			ShareMediaCategory string `json:"shareMediaCategory"`
		} `json:"com.linkedin.ugc.ShareContent"`
	} `json:"specificContent"`
	Visibility struct {
		MemberNetworkVisibility string `json:"com.linkedin.ugc.MemberNetworkVisibility"`
	} `json:"visibility"`
}

// Publish creates a post and returns its URN
func (c *Client) Publish(ctx context.Context, post PostRequest) (*channels.SendReceipt, error) {
	if c.accessToken == "" {
		return nil, channels.ErrMissingCredentials().WithDetail("reason", "Access token is required")
	}

	visibility := post.Visibility
	if visibility == "" {
		visibility = "PUBLIC"
	}

	var payload ugcPost
	payload.Author = post.AuthorURN
	payload.LifecycleState = "PUBLISHED"
	payload.SpecificContent.ShareContent.ShareCommentary.Text = post.Text
	payload.SpecificContent.ShareContent.ShareMediaCategory = "NONE"
	payload.Visibility.MemberNetworkVisibility = visibility

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, errx.Wrap(err, "failed to encode linkedin payload", errx.TypeInternal)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBaseURL+"/v2/ugcPosts", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, errx.Wrap(err, "failed to build linkedin request", errx.TypeInternal)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errx.Wrap(err, "linkedin request failed", errx.TypeExternal)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		log.Printf("❌ LinkedIn API error - status: %d, body: %s", resp.StatusCode, string(body))
		return nil, channels.ErrAPIError().
			WithDetail("status_code", resp.StatusCode).
			WithDetail("description", string(body))
	}

	postURN := resp.Header.Get("X-RestLi-Id")
	if postURN == "" {
		var created struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(body, &created) == nil {
			postURN = created.ID
		}
	}

	log.Printf("✅ LinkedIn post published: %s", postURN)

	return &channels.SendReceipt{
		MessageID: postURN,
		Channel:   channels.ChannelTypeLinkedIn,
		SentAt:    time.Now(),
	}, nil
}
