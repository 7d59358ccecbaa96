package llm

import (
	"context"
	"net/http"
	"time"
)

// LMStudioClient talks to a self-hosted LM Studio server, which exposes an
// OpenAI-compatible completions endpoint without authentication.
type LMStudioClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewLMStudioClient(baseURL string, timeout time.Duration) *LMStudioClient {
	return &LMStudioClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *LMStudioClient) Complete(ctx context.Context, model string, messages []Message, maxTokens int, temperature float64) (*Completion, error) {
	payload := completionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Stream:      false,
	}
	return doCompletion(ctx, c.httpClient, BackendLMStudio,
		c.baseURL+"/v1/chat/completions", "", payload)
}
