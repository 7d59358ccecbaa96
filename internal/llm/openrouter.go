package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// legacy model aliases still sent by older clients.
var openRouterAliases = map[string]string{
	"gpt-oss-120b":  "meta-llama/llama-3.1-8b-instruct",
	"llama3.1-8b":   "meta-llama/llama-3.1-8b-instruct",
	"llama3.1-70b":  "meta-llama/llama-3.1-70b-instruct",
	"llama-3.3-70b": "meta-llama/llama-3.3-70b-instruct",
}

// OpenRouterClient talks to the OpenRouter chat-completions API.
type OpenRouterClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewOpenRouterClient(baseURL, apiKey string, timeout time.Duration) *OpenRouterClient {
	return &OpenRouterClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type completionRequest struct {
	Model       string         `json:"model"`
	Provider    map[string]any `json:"provider,omitempty"`
	Messages    []Message      `json:"messages"`
	MaxTokens   int            `json:"max_tokens"`
	Temperature float64        `json:"temperature"`
	Stream      bool           `json:"stream,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *OpenRouterClient) Complete(ctx context.Context, model string, messages []Message, maxTokens int, temperature float64) (*Completion, error) {
	if mapped, ok := openRouterAliases[model]; ok {
		model = mapped
	}

	payload := completionRequest{
		Model:       model,
		Provider:    map[string]any{"only": []string{"Cerebras"}},
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	return doCompletion(ctx, c.httpClient, BackendOpenRouter,
		c.baseURL+"/chat/completions", c.apiKey, payload)
}

func doCompletion(ctx context.Context, hc *http.Client, backend Backend, url, apiKey string, payload completionRequest) (*Completion, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("completion request encode failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("completion request build failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("completion response read failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &BackendError{Backend: backend, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result completionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("completion response decode failed: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("completion response contained no choices")
	}
	return &Completion{
		Content:    result.Choices[0].Message.Content,
		TokensUsed: result.Usage.TotalTokens,
	}, nil
}
