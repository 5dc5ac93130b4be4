package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/groundline/groundline/internal/domain"
)

// QueryCache caches query embeddings for a short TTL keyed by normalized
// query text, so repeated questions (common greetings especially) skip the
// provider round trip.
type QueryCache interface {
	Get(ctx context.Context, key string) ([]float32, string, bool)
	Set(ctx context.Context, key string, vector []float32, modelVersion string)
}

// EmbeddingService produces vectors through the provider fallback chain and
// inherits its cost-tracking and failover behavior.
type EmbeddingService struct {
	chain    EmbeddingChain
	profiles []domain.ProviderProfile
	cache    QueryCache
}

// NewEmbeddingService wires the embedding service. profiles is the ordered
// list of embedding-capable provider/model pairs from configuration. cache
// may be nil.
func NewEmbeddingService(chain EmbeddingChain, profiles []domain.ProviderProfile, cache QueryCache) *EmbeddingService {
	return &EmbeddingService{chain: chain, profiles: profiles, cache: cache}
}

// Embed returns the vector and generating model version for one text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, "", domain.NewDomainError(domain.ErrCodeValidation, "cannot embed empty text")
	}

	vectors, modelVersion, err := s.chain.Embed(ctx, []string{text}, s.profiles)
	if err != nil {
		return nil, "", domain.NewDomainErrorWithCause(domain.ErrCodeEmbeddingFailed, "embedding generation failed", err)
	}
	if len(vectors) != 1 {
		return nil, "", domain.NewDomainError(domain.ErrCodeEmbeddingFailed, fmt.Sprintf("expected 1 vector, got %d", len(vectors)))
	}
	return vectors[0], modelVersion, nil
}

// EmbedBatch embeds texts in one provider call for indexing throughput.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, string, error) {
	if len(texts) == 0 {
		return nil, "", nil
	}

	vectors, modelVersion, err := s.chain.Embed(ctx, texts, s.profiles)
	if err != nil {
		return nil, "", domain.NewDomainErrorWithCause(domain.ErrCodeEmbeddingFailed, "batch embedding generation failed", err)
	}
	if len(vectors) != len(texts) {
		return nil, "", domain.NewDomainError(domain.ErrCodeEmbeddingFailed,
			fmt.Sprintf("expected %d vectors, got %d", len(texts), len(vectors)))
	}
	return vectors, modelVersion, nil
}

// EmbedQuery embeds query text through the TTL cache.
func (s *EmbeddingService) EmbedQuery(ctx context.Context, text string) ([]float32, string, error) {
	key := NormalizeQuery(text)
	if key == "" {
		return nil, "", domain.ErrEmptyQuery
	}

	if s.cache != nil {
		if vec, modelVersion, ok := s.cache.Get(ctx, key); ok {
			return vec, modelVersion, nil
		}
	}

	vec, modelVersion, err := s.Embed(ctx, text)
	if err != nil {
		return nil, "", err
	}

	if s.cache != nil {
		s.cache.Set(ctx, key, vec, modelVersion)
	}
	return vec, modelVersion, nil
}

// NormalizeQuery is the cache key normalization: lowercased with collapsed
// whitespace. Punctuation is kept; "Hi!" and "hi" are different questions.
func NormalizeQuery(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}
