package service

import (
	"context"

	"github.com/groundline/groundline/internal/domain"
)

// ChunkStore is the persistence contract for chunks and their embeddings.
// Implemented by the Postgres repository and the in-memory store; mutated
// only through the ingestion path, read concurrently by every query.
type ChunkStore interface {
	// Upsert is idempotent keyed by content hash: unchanged content is a
	// no-op returning the existing chunk, changed content inserts a new
	// version and tombstones the prior one. The bool reports whether a new
	// chunk version was created.
	Upsert(ctx context.Context, chunk *domain.Chunk) (*domain.Chunk, bool, error)

	Get(ctx context.Context, chunkID string) (*domain.Chunk, error)
	BulkGet(ctx context.Context, chunkIDs []string) ([]*domain.Chunk, error)

	// SearchByVector only compares embeddings generated by modelVersion.
	SearchByVector(ctx context.Context, queryVector []float32, modelVersion string, topK int) ([]*domain.ChunkMatch, error)
	SearchByKeyword(ctx context.Context, queryText string, topK int) ([]*domain.ChunkMatch, error)

	MarkStale(ctx context.Context, documentID string) error
}

// IndexingStore extends ChunkStore with the operations the background
// embedding backfill worker needs.
type IndexingStore interface {
	ChunkStore
	ListUnembedded(ctx context.Context, limit int) ([]*domain.Chunk, error)
	SetEmbedding(ctx context.Context, chunkID string, vector []float32, modelVersion string) error
}

// GenerationChain is the fallback-chain surface the pipeline generates with.
type GenerationChain interface {
	Generate(ctx context.Context, req domain.GenerationRequest, profiles []domain.ProviderProfile) (*domain.GenerationResult, error)
}

// EmbeddingChain is the fallback-chain surface the embedding service uses.
type EmbeddingChain interface {
	Embed(ctx context.Context, texts []string, profiles []domain.ProviderProfile) ([][]float32, string, error)
}

// ModelRouter selects provider profiles for a request.
type ModelRouter interface {
	Classify(queryText string) domain.ComplexityHint
	Select(kind domain.RequestKind, hint domain.ComplexityHint, pref domain.CostPreference) []domain.ProviderProfile
}

// QueryEmbedder embeds query text, with short-TTL caching behind it.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, string, error)
}

// TokenCounter counts tokens for the target generation model.
type TokenCounter interface {
	Count(text string) int
}

// Reranker reorders hybrid-search candidates. Implementations must return
// the same candidates (same cardinality) and degrade to the input order when
// the underlying relevance model is unavailable.
type Reranker interface {
	Rerank(ctx context.Context, queryText string, candidates []*domain.SearchCandidate) []*domain.SearchCandidate
}

// ApprovalGate is an optional post-validation policy hook (human review
// before an answer is released). A nil gate means answers are released
// directly.
type ApprovalGate interface {
	Approve(ctx context.Context, answer string, citations []domain.Citation) (bool, error)
}
