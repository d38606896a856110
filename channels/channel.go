package channels

import (
	"net/http"
	"time"

	"github.com/Abraxas-365/craftable/errx"
)

// ============================================================================
// Channel Types
// ============================================================================

// ChannelType identifies an outbound messaging platform
type ChannelType string

const (
	ChannelTypeTelegram  ChannelType = "telegram"
	ChannelTypeInstagram ChannelType = "instagram"
	ChannelTypeLinkedIn  ChannelType = "linkedin"
)

// OutgoingMessage is the platform-independent send request
type OutgoingMessage struct {
	RecipientID string         `json:"recipient_id"`
	Text        string         `json:"text"`
	ParseMode   string         `json:"parse_mode,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// SendReceipt is what a platform returns on a successful send
type SendReceipt struct {
	MessageID string         `json:"message_id"`
	Channel   ChannelType    `json:"channel"`
	SentAt    time.Time      `json:"sent_at"`
	Raw       map[string]any `json:"raw,omitempty"`
}

// ============================================================================
// Errors
// ============================================================================

var ErrRegistry = errx.NewRegistry("CHANNEL")

var (
	CodeMissingCredentials = ErrRegistry.Register("MISSING_CREDENTIALS", errx.TypeValidation, http.StatusBadRequest, "Channel credentials are missing")
	CodeSendFailed         = ErrRegistry.Register("SEND_FAILED", errx.TypeExternal, http.StatusBadGateway, "Channel send failed")
	CodeAPIError           = ErrRegistry.Register("API_ERROR", errx.TypeExternal, http.StatusBadGateway, "Channel API returned an error")
)

func ErrMissingCredentials() *errx.Error {
	return ErrRegistry.New(CodeMissingCredentials)
}

func ErrSendFailed() *errx.Error {
	return ErrRegistry.New(CodeSendFailed)
}

func ErrAPIError() *errx.Error {
	return ErrRegistry.New(CodeAPIError)
}
