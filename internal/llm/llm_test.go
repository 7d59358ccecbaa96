package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct{}

func (stubClient) Complete(context.Context, string, []Message, int, float64) (*Completion, error) {
	return &Completion{Content: "ok"}, nil
}

func newTestRegistry() *Registry {
	r := NewRegistry(BackendOpenRouter)
	r.Register(BackendOpenRouter, stubClient{}, "meta-llama/llama-3.1-8b-instruct",
		[]string{"meta-llama/llama-3.1-8b-instruct", "qwen/qwen-2.5-72b-instruct"})
	r.Register(BackendLMStudio, stubClient{}, "gemma-3-1b-it", []string{"gemma-3-1b-it"})
	return r
}

func TestRegistryParse(t *testing.T) {
	r := newTestRegistry()

	cases := []struct {
		name     string
		selector string
		backend  Backend
		model    string
	}{
		{"empty selector uses defaults", "", BackendOpenRouter, "meta-llama/llama-3.1-8b-instruct"},
		{"bare backend uses its default model", "lm_studio", BackendLMStudio, "gemma-3-1b-it"},
		{"full selector", "lm_studio/custom-model", BackendLMStudio, "custom-model"},
		{"nested model path", "openrouter/qwen/qwen-2.5-72b-instruct", BackendOpenRouter, "qwen/qwen-2.5-72b-instruct"},
		{"unknown backend falls back", "bedrock/some-model", BackendOpenRouter, "some-model"},
		{"trailing slash uses default model", "openrouter/", BackendOpenRouter, "meta-llama/llama-3.1-8b-instruct"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sel := r.Parse(tc.selector)
			assert.Equal(t, tc.backend, sel.Backend)
			assert.Equal(t, tc.model, sel.Model)
		})
	}
}

func TestRegistryParseUnregisteredBackend(t *testing.T) {
	r := NewRegistry(BackendOpenRouter)
	r.Register(BackendOpenRouter, stubClient{}, "default-model", nil)

	sel := r.Parse("lm_studio/gemma-3-1b-it")
	assert.Equal(t, BackendOpenRouter, sel.Backend)
}

func TestRegistryProviders(t *testing.T) {
	r := newTestRegistry()

	all, byBackend, def := r.Providers()
	assert.Len(t, all, 3)
	assert.Contains(t, all, "lm_studio/gemma-3-1b-it")
	assert.Contains(t, byBackend["openrouter"], "qwen/qwen-2.5-72b-instruct")
	assert.Equal(t, "openrouter/meta-llama/llama-3.1-8b-instruct", def)
}

func TestOpenRouterComplete(t *testing.T) {
	var captured completionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "Hello there"}},
			},
			"usage": map[string]any{"total_tokens": 42},
		})
	}))
	defer srv.Close()

	c := NewOpenRouterClient(srv.URL, "sk-test", 5*time.Second)
	got, err := c.Complete(context.Background(), "llama3.1-8b",
		[]Message{{Role: "user", Content: "hi"}}, 1000, 0.7)
	require.NoError(t, err)

	assert.Equal(t, "Hello there", got.Content)
	assert.Equal(t, 42, got.TokensUsed)
	// legacy alias resolved before the wire
	assert.Equal(t, "meta-llama/llama-3.1-8b-instruct", captured.Model)
}

func TestOpenRouterRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	c := NewOpenRouterClient(srv.URL, "sk-test", 5*time.Second)
	_, err := c.Complete(context.Background(), "meta-llama/llama-3.1-8b-instruct",
		[]Message{{Role: "user", Content: "hi"}}, 1000, 0.7)

	var beErr *BackendError
	require.ErrorAs(t, err, &beErr)
	assert.Equal(t, http.StatusTooManyRequests, beErr.StatusCode)
	assert.Equal(t, BackendOpenRouter, beErr.Backend)
}

func TestLMStudioComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Empty(t, r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "local reply"}},
			},
			"usage": map[string]any{"total_tokens": 7},
		})
	}))
	defer srv.Close()

	c := NewLMStudioClient(srv.URL, 5*time.Second)
	got, err := c.Complete(context.Background(), "gemma-3-1b-it",
		[]Message{{Role: "user", Content: "hi"}}, 1000, 0.7)
	require.NoError(t, err)
	assert.Equal(t, "local reply", got.Content)
}
