package model

import (
	"sync"
	"time"
)

// ClientKey identifies one client configuration. Clients are expensive to
// warm up on the Ollama side, so one instance per distinct configuration is
// constructed and reused across requests.
type ClientKey struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Registry hands out shared Ollama clients keyed by configuration values.
// Construction is idempotent: the same key always yields the same client.
type Registry struct {
	mu        sync.Mutex
	llms      map[ClientKey]*Ollama
	embedders map[ClientKey]*OllamaEmbedder
}

func NewRegistry() *Registry {
	return &Registry{
		llms:      make(map[ClientKey]*Ollama),
		embedders: make(map[ClientKey]*OllamaEmbedder),
	}
}

func (r *Registry) LLM(key ClientKey) *Ollama {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.llms[key]; ok {
		return c
	}
	c := NewOllama(key.BaseURL, key.Model, key.Timeout)
	r.llms[key] = c
	return c
}

func (r *Registry) Embedder(key ClientKey) *OllamaEmbedder {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.embedders[key]; ok {
		return c
	}
	c := NewOllamaEmbedder(key.BaseURL, key.Model, key.Timeout)
	r.embedders[key] = c
	return c
}
