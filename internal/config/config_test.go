package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DB_SOURCE", "postgresql://localhost/chatpay_test")
	t.Setenv("OPENROUTER_API_KEY", "sk-test")
	t.Setenv("RAZORPAY_KEY_ID", "rzp_test_key")
	t.Setenv("RAZORPAY_KEY_SECRET", "rzp_secret")
	t.Setenv("RAZORPAY_WEBHOOK_SECRET", "whsec")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, 30*time.Second, cfg.GatewayTimeout)
	assert.False(t, cfg.RefundDebits)
	assert.True(t, cfg.ChatMessageCost.IsZero())
	assert.True(t, cfg.LMStudioEnabled)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.NotEmpty(t, cfg.OpenRouterModels)
}

func TestLoadMissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("RAZORPAY_WEBHOOK_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RAZORPAY_WEBHOOK_SECRET")
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("CACHE_TTL", "120")
	t.Setenv("WALLET_REFUND_DEBITS", "true")
	t.Setenv("CHAT_MESSAGE_COST", "1.50")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.CacheTTL)
	assert.True(t, cfg.RefundDebits)
	assert.True(t, cfg.ChatMessageCost.Equal(decimal.RequireFromString("1.50")))
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoadInvalidNumeric(t *testing.T) {
	setRequired(t)
	t.Setenv("CACHE_TTL", "not-a-number")

	_, err := Load()
	assert.Error(t, err)
}
