package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTelegramSendConfigCoercesNumericChatID(t *testing.T) {
	// A whole-string template like {{message.chat.id}} resolves to the
	// upstream's typed value, so a numeric chat id lands here as a
	// float64 and must decode into the string field without a decimal
	// point.
	cfg, err := ExtractTelegramSendConfig(map[string]any{
		"bot_token": "123:abc",
		"chat_id":   float64(42),
		"text":      "hola",
	})
	require.NoError(t, err)
	assert.Equal(t, "42", cfg.ChatID)
}

func TestExtractTelegramSendConfigRejectsStructuredChatID(t *testing.T) {
	_, err := ExtractTelegramSendConfig(map[string]any{
		"bot_token": "123:abc",
		"chat_id":   map[string]any{"id": 42},
		"text":      "hola",
	})
	require.Error(t, err)
}

func TestCoerceStringFieldsLeavesNonStringFieldsAlone(t *testing.T) {
	var cfg DelayConfig
	coerced := CoerceStringFields(map[string]any{"seconds": float64(30)}, &cfg)
	assert.Equal(t, float64(30), coerced["seconds"])
}

func TestExtractDelayConfigBounds(t *testing.T) {
	_, err := ExtractDelayConfig(map[string]any{"seconds": float64(0)})
	require.Error(t, err)

	_, err = ExtractDelayConfig(map[string]any{"seconds": float64(90000)})
	require.Error(t, err)

	cfg, err := ExtractDelayConfig(map[string]any{"seconds": float64(30)})
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Seconds)
}
