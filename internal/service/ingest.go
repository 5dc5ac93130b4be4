package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/groundline/groundline/internal/domain"
)

// ChunkInput is one chunk as submitted by an ingestion pipeline. Token count
// and content hash are computed server-side when absent. SourceType is
// document-level metadata and defaults to page.
type ChunkInput struct {
	DocumentID string
	SourceURI  string
	SourceType domain.SourceType
	Ordinal    int
	Text       string
}

// IngestService owns the write path: validation, hashing, token counting and
// idempotent upserts into the chunk store. Embedding happens asynchronously
// through the backfill worker, so ingestion stays fast and never blocks on a
// provider.
type IngestService struct {
	store          ChunkStore
	counter        TokenCounter
	maxChunkTokens int
}

func NewIngestService(store ChunkStore, counter TokenCounter, maxChunkTokens int) *IngestService {
	return &IngestService{
		store:          store,
		counter:        counter,
		maxChunkTokens: maxChunkTokens,
	}
}

// UpsertChunk validates and stores a single chunk. The bool reports whether a
// new chunk version was created; re-submitting unchanged content returns the
// existing chunk unchanged.
func (s *IngestService) UpsertChunk(ctx context.Context, input ChunkInput) (*domain.Chunk, bool, error) {
	sourceType := input.SourceType
	if sourceType == "" {
		sourceType = domain.SourceTypePage
	}

	chunk := &domain.Chunk{
		ID:          uuid.New().String(),
		DocumentID:  input.DocumentID,
		SourceURI:   input.SourceURI,
		SourceType:  sourceType,
		Ordinal:     input.Ordinal,
		Text:        input.Text,
		TokenCount:  s.counter.Count(input.Text),
		ContentHash: domain.HashContent(input.Text),
		RefreshedAt: time.Now().UTC(),
	}

	if err := domain.ValidateChunk(chunk, s.maxChunkTokens); err != nil {
		return nil, false, err
	}
	if err := domain.ValidateDocument(&domain.Document{
		ID:         chunk.DocumentID,
		SourceURI:  chunk.SourceURI,
		SourceType: chunk.SourceType,
	}); err != nil {
		return nil, false, err
	}

	stored, created, err := s.store.Upsert(ctx, chunk)
	if err != nil {
		return nil, false, domain.NewDomainErrorWithCause(domain.ErrCodeStoreUnavailable, "chunk upsert failed", err)
	}
	return stored, created, nil
}

// UpsertBatch stores a document's chunks in submission order. It stops at the
// first validation failure so a malformed pipeline run does not half-index a
// document silently.
func (s *IngestService) UpsertBatch(ctx context.Context, inputs []ChunkInput) ([]*domain.Chunk, int, error) {
	chunks := make([]*domain.Chunk, 0, len(inputs))
	created := 0
	for i, input := range inputs {
		chunk, isNew, err := s.UpsertChunk(ctx, input)
		if err != nil {
			return chunks, created, fmt.Errorf("chunk %d: %w", i, err)
		}
		chunks = append(chunks, chunk)
		if isNew {
			created++
		}
	}
	return chunks, created, nil
}

// MarkStale tombstones every live chunk of a document. Stale chunks stop
// appearing in retrieval immediately but remain resolvable by ID for
// citations already handed out.
func (s *IngestService) MarkStale(ctx context.Context, documentID string) error {
	if documentID == "" {
		return domain.NewDomainError(domain.ErrCodeValidation, "document ID is required")
	}
	if err := s.store.MarkStale(ctx, documentID); err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeStoreUnavailable, "mark stale failed", err)
	}
	return nil
}
