package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("DATABASE_URL", "postgres://localhost/reports")
}

func TestLoadRequiresBotToken(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("DATABASE_URL", "postgres://localhost/reports")

	_, err := Load()
	assert.ErrorIs(t, err, ErrMissingBotToken)

	cfg, err := LoadForTools()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/reports", cfg.DatabaseURL)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	assert.ErrorIs(t, err, ErrMissingDatabaseURL)
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("SESSION_TTL", "")
	t.Setenv("GROUP_CHAT_ID", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Zero(t, cfg.Sessions.TTL, "sessions never expire unless configured")
	assert.Zero(t, cfg.Telegram.GroupChatID)
	assert.Equal(t, 64, cfg.Dispatch.QueueSize)
	assert.False(t, cfg.WhatsApp.Enabled())
}

func TestLoadParsesOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SESSION_TTL", "45m")
	t.Setenv("GROUP_CHAT_ID", "-1001234567890")
	t.Setenv("DISPATCH_QUEUE_SIZE", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 45*time.Minute, cfg.Sessions.TTL)
	assert.Equal(t, int64(-1001234567890), cfg.Telegram.GroupChatID)
	assert.Equal(t, 1, cfg.Dispatch.QueueSize)
}

func TestLoadRejectsBadValues(t *testing.T) {
	setRequired(t)

	t.Setenv("GROUP_CHAT_ID", "general")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("GROUP_CHAT_ID", "")
	t.Setenv("SESSION_TTL", "soon")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadRejectsMalformedNumbersAndFlags(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"USE_WEBHOOK", "sometimes"},
		{"DISPATCH_QUEUE_SIZE", "lots"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoadParsesWebhookFlag(t *testing.T) {
	setRequired(t)
	t.Setenv("USE_WEBHOOK", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Telegram.UseWebhook)
}

func TestTelegramWebhookURL(t *testing.T) {
	tests := []struct {
		base, path, want string
	}{
		{"", "/webhook/telegram", ""},
		{"https://example.org", "/webhook/telegram", "https://example.org/webhook/telegram"},
		{"https://example.org/", "webhook/telegram", "https://example.org/webhook/telegram"},
		{"https://example.org/webhook/telegram", "/webhook/telegram", "https://example.org/webhook/telegram"},
	}
	for _, tt := range tests {
		cfg := Config{Telegram: TelegramConfig{PublicBaseURL: tt.base, WebhookPath: tt.path}}
		assert.Equal(t, tt.want, cfg.TelegramWebhookURL(), "base=%q path=%q", tt.base, tt.path)
	}
}
