package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port string
	Env  string

	DBSource string

	RedisURL string
	CacheTTL time.Duration

	// Payment gateway
	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
	RazorpayBaseURL       string
	GatewayTimeout        time.Duration

	// Wallet
	RefundDebits    bool
	ChatMessageCost decimal.Decimal

	// LLM backends
	DefaultBackend       string
	OpenRouterAPIKey     string
	OpenRouterBaseURL    string
	OpenRouterModel      string
	OpenRouterModels     []string
	LMStudioEnabled      bool
	LMStudioURL          string
	LMStudioDefaultModel string
	LMStudioModels       []string

	AllowedOrigins []string
}

// Load reads configuration from the environment, after loading an optional
// .env file. Missing required keys produce an error rather than a partial
// config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getenv("SERVER_PORT", "8080"),
		Env:                  getenv("ENVIRONMENT", "development"),
		RedisURL:             getenv("REDIS_URL", "redis://localhost:6379/0"),
		RazorpayBaseURL:      getenv("RAZORPAY_BASE_URL", "https://api.razorpay.com/v1"),
		DefaultBackend:       getenv("DEFAULT_LLM_BACKEND", "openrouter"),
		OpenRouterBaseURL:    getenv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterModel:      getenv("DEFAULT_MODEL", "meta-llama/llama-3.1-8b-instruct"),
		LMStudioURL:          getenv("LM_STUDIO_URL", "http://localhost:1234"),
		LMStudioDefaultModel: getenv("LM_STUDIO_DEFAULT_MODEL", "gemma-3-1b-it"),
	}

	for _, req := range []struct {
		key string
		dst *string
	}{
		{"DB_SOURCE", &cfg.DBSource},
		{"OPENROUTER_API_KEY", &cfg.OpenRouterAPIKey},
		{"RAZORPAY_KEY_ID", &cfg.RazorpayKeyID},
		{"RAZORPAY_KEY_SECRET", &cfg.RazorpayKeySecret},
		{"RAZORPAY_WEBHOOK_SECRET", &cfg.RazorpayWebhookSecret},
	} {
		v := os.Getenv(req.key)
		if v == "" {
			return nil, fmt.Errorf("%s environment variable is required", req.key)
		}
		*req.dst = v
	}

	cacheTTL, err := strconv.Atoi(getenv("CACHE_TTL", "3600"))
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}
	cfg.CacheTTL = time.Duration(cacheTTL) * time.Second

	gwTimeout, err := strconv.Atoi(getenv("GATEWAY_TIMEOUT_SECONDS", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid GATEWAY_TIMEOUT_SECONDS: %w", err)
	}
	cfg.GatewayTimeout = time.Duration(gwTimeout) * time.Second

	cfg.RefundDebits = getenv("WALLET_REFUND_DEBITS", "false") == "true"
	cfg.LMStudioEnabled = getenv("LM_STUDIO_ENABLED", "true") == "true"

	cfg.ChatMessageCost, err = decimal.NewFromString(getenv("CHAT_MESSAGE_COST", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid CHAT_MESSAGE_COST: %w", err)
	}

	cfg.OpenRouterModels = splitList(getenv("OPENROUTER_MODELS",
		"meta-llama/llama-3.1-8b-instruct,meta-llama/llama-3.1-70b-instruct,meta-llama/llama-3.3-70b-instruct,qwen/qwen-2.5-72b-instruct"))
	cfg.LMStudioModels = splitList(getenv("LM_STUDIO_MODELS",
		"gemma-3-1b-it,llama-3.1-8b-instant,mixtral-8x7b-32768"))
	cfg.AllowedOrigins = splitList(getenv("ALLOWED_ORIGINS", "*"))

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
