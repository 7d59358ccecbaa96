// Package llm abstracts chat-completion backends behind a capability
// interface. Backends are identified by a typed enum; the "backend/model"
// selector strings clients send are parsed once at the boundary, never
// branched on as raw strings downstream.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Backend identifies a completion provider.
type Backend int

const (
	BackendOpenRouter Backend = iota
	BackendLMStudio
)

func (b Backend) String() string {
	switch b {
	case BackendLMStudio:
		return "lm_studio"
	default:
		return "openrouter"
	}
}

// ParseBackend maps a backend name to its enum value. Unknown names fall
// back to OpenRouter, matching the permissive selector behavior clients
// expect.
func ParseBackend(s string) Backend {
	if s == "lm_studio" {
		return BackendLMStudio
	}
	return BackendOpenRouter
}

// Message is one turn of a conversation sent upstream.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completion is the upstream response plus its token accounting.
type Completion struct {
	Content    string
	TokensUsed int
}

// Client is a single completion backend.
type Client interface {
	Complete(ctx context.Context, model string, messages []Message, maxTokens int, temperature float64) (*Completion, error)
}

// BackendError is a non-2xx response from a completion backend. The API
// layer maps its status code; nothing matches on message text.
type BackendError struct {
	Backend    Backend
	StatusCode int
	Body       string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s completion failed: status %d", e.Backend, e.StatusCode)
}

// Selection is a resolved (backend, model) pair.
type Selection struct {
	Backend Backend
	Model   string
}

// Registry resolves selector strings to a concrete client and model.
type Registry struct {
	clients        map[Backend]Client
	defaultModels  map[Backend]string
	models         map[Backend][]string
	defaultBackend Backend
	lmStudio       bool
}

func NewRegistry(defaultBackend Backend) *Registry {
	return &Registry{
		clients:        make(map[Backend]Client),
		defaultModels:  make(map[Backend]string),
		models:         make(map[Backend][]string),
		defaultBackend: defaultBackend,
	}
}

// Register wires a backend client with its default model and model list.
func (r *Registry) Register(b Backend, c Client, defaultModel string, models []string) {
	r.clients[b] = c
	r.defaultModels[b] = defaultModel
	r.models[b] = models
	if b == BackendLMStudio {
		r.lmStudio = true
	}
}

// Parse resolves a "backend/model" selector. An empty selector yields the
// default backend and its default model; a bare backend name yields that
// backend's default model. A selector naming an unregistered backend falls
// back to the default backend.
func (r *Registry) Parse(selector string) Selection {
	if selector == "" {
		return Selection{Backend: r.defaultBackend, Model: r.defaultModels[r.defaultBackend]}
	}

	name, model, found := strings.Cut(selector, "/")
	b := ParseBackend(name)
	if _, ok := r.clients[b]; !ok {
		b = r.defaultBackend
	}
	if !found || model == "" {
		model = r.defaultModels[b]
	}
	return Selection{Backend: b, Model: model}
}

// Client returns the registered client for a backend.
func (r *Registry) Client(b Backend) (Client, error) {
	c, ok := r.clients[b]
	if !ok {
		return nil, fmt.Errorf("backend %s not configured", b)
	}
	return c, nil
}

// BackendInfo describes one registered backend for the listing endpoints.
type BackendInfo struct {
	Enabled      bool     `json:"enabled"`
	Models       []string `json:"models"`
	DefaultModel string   `json:"default_model"`
}

// Backends returns the registered backends keyed by name.
func (r *Registry) Backends() map[string]BackendInfo {
	out := make(map[string]BackendInfo, len(r.clients))
	for b := range r.clients {
		out[b.String()] = BackendInfo{
			Enabled:      true,
			Models:       r.models[b],
			DefaultModel: r.defaultModels[b],
		}
	}
	return out
}

// DefaultBackend returns the configured default backend name.
func (r *Registry) DefaultBackend() string { return r.defaultBackend.String() }

// Providers returns all "backend/model" selector strings grouped by backend.
func (r *Registry) Providers() (all []string, byBackend map[string][]string, defaultProvider string) {
	byBackend = make(map[string][]string, len(r.clients))
	for b := range r.clients {
		for _, m := range r.models[b] {
			all = append(all, b.String()+"/"+m)
			byBackend[b.String()] = append(byBackend[b.String()], m)
		}
	}
	defaultProvider = r.defaultBackend.String() + "/" + r.defaultModels[r.defaultBackend]
	return all, byBackend, defaultProvider
}
