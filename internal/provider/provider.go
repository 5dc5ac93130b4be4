// Package provider implements the model-provider abstraction: a uniform
// interface over generation/embedding backends, tier-based routing, a
// fallback chain with cool-down, and non-blocking cost accounting.
package provider

import (
	"context"

	"github.com/groundline/groundline/internal/domain"
)

// Provider is one configured backend (OpenAI-like, Anthropic-like,
// Google-like, or a self-hosted OpenAI-compatible endpoint).
type Provider interface {
	ID() string

	// Generate runs one chat completion against the given model.
	Generate(ctx context.Context, req domain.GenerationRequest, modelID string) (*domain.GenerationResult, error)

	// Embed returns one vector per input text, with reported token usage
	// when the backend surfaces it. Providers that do not support
	// embeddings return ErrKindBadRequest.
	Embed(ctx context.Context, texts []string, modelID string) (*domain.EmbeddingResult, error)
}

// Registry maps provider IDs to live adapters.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[p.ID()] = p
	}
	return &Registry{providers: m}
}

// Get returns the adapter for a provider ID, or nil if unconfigured.
func (r *Registry) Get(id string) Provider {
	return r.providers[id]
}

// Has reports whether a provider ID is configured.
func (r *Registry) Has(id string) bool {
	_, ok := r.providers[id]
	return ok
}
