package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundline/groundline/internal/domain"
	"github.com/groundline/groundline/internal/store"
)

type wordCounter struct{}

func (wordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

func TestUpsertChunkComputesDerivedFields(t *testing.T) {
	svc := NewIngestService(store.NewMemory(), wordCounter{}, 0)

	chunk, created, err := svc.UpsertChunk(context.Background(), ChunkInput{
		DocumentID: "doc-1",
		SourceURI:  "https://example.com/pricing",
		Ordinal:    0,
		Text:       "Plans start at $49 per month.",
	})
	require.NoError(t, err)

	assert.True(t, created)
	assert.NotEmpty(t, chunk.ID)
	assert.Equal(t, 6, chunk.TokenCount)
	assert.Equal(t, domain.HashContent("Plans start at $49 per month."), chunk.ContentHash)
	assert.Equal(t, domain.SourceTypePage, chunk.SourceType)
	assert.False(t, chunk.RefreshedAt.IsZero())
}

func TestUpsertChunkCarriesSourceType(t *testing.T) {
	svc := NewIngestService(store.NewMemory(), wordCounter{}, 0)

	chunk, _, err := svc.UpsertChunk(context.Background(), ChunkInput{
		DocumentID: "doc-1",
		SourceURI:  "https://example.com/guide.pdf",
		SourceType: domain.SourceTypePDF,
		Text:       "installation guide",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceTypePDF, chunk.SourceType)
}

func TestUpsertChunkRejectsUnknownSourceType(t *testing.T) {
	svc := NewIngestService(store.NewMemory(), wordCounter{}, 0)

	_, _, err := svc.UpsertChunk(context.Background(), ChunkInput{
		DocumentID: "doc-1",
		SourceURI:  "https://example.com/a",
		SourceType: "spreadsheet",
		Text:       "some content",
	})
	require.Error(t, err)

	var domErr *domain.DomainError
	require.ErrorAs(t, err, &domErr)
	assert.Equal(t, domain.ErrCodeValidation, domErr.Code)
}

func TestUpsertChunkRequiresSourceURI(t *testing.T) {
	svc := NewIngestService(store.NewMemory(), wordCounter{}, 0)

	_, _, err := svc.UpsertChunk(context.Background(), ChunkInput{
		DocumentID: "doc-1",
		Text:       "content without provenance",
	})
	require.Error(t, err)

	var domErr *domain.DomainError
	require.ErrorAs(t, err, &domErr)
	assert.Equal(t, domain.ErrCodeValidation, domErr.Code)
}

func TestUpsertChunkIdempotentResubmission(t *testing.T) {
	svc := NewIngestService(store.NewMemory(), wordCounter{}, 0)

	input := ChunkInput{DocumentID: "doc-1", SourceURI: "https://example.com/a", Text: "same content"}

	first, created, err := svc.UpsertChunk(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := svc.UpsertChunk(context.Background(), input)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
}

func TestUpsertChunkRejectsInvalidInput(t *testing.T) {
	svc := NewIngestService(store.NewMemory(), wordCounter{}, 0)

	_, _, err := svc.UpsertChunk(context.Background(), ChunkInput{DocumentID: "doc-1", Text: "   "})
	require.Error(t, err)

	var domErr *domain.DomainError
	require.ErrorAs(t, err, &domErr)
	assert.Equal(t, domain.ErrCodeValidation, domErr.Code)

	_, _, err = svc.UpsertChunk(context.Background(), ChunkInput{Text: "missing document"})
	assert.Error(t, err)
}

func TestUpsertChunkEnforcesTokenCeiling(t *testing.T) {
	svc := NewIngestService(store.NewMemory(), wordCounter{}, 3)

	_, _, err := svc.UpsertChunk(context.Background(), ChunkInput{
		DocumentID: "doc-1",
		Text:       "one two three four five",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidChunk)
}

func TestUpsertBatchStopsAtFirstFailure(t *testing.T) {
	svc := NewIngestService(store.NewMemory(), wordCounter{}, 0)

	chunks, created, err := svc.UpsertBatch(context.Background(), []ChunkInput{
		{DocumentID: "doc-1", SourceURI: "https://example.com/a", Text: "first chunk", Ordinal: 0},
		{DocumentID: "doc-1", SourceURI: "https://example.com/a", Text: "   ", Ordinal: 1},
		{DocumentID: "doc-1", SourceURI: "https://example.com/a", Text: "never reached", Ordinal: 2},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk 1")
	assert.Len(t, chunks, 1)
	assert.Equal(t, 1, created)
}

func TestMarkStaleValidatesDocumentID(t *testing.T) {
	svc := NewIngestService(store.NewMemory(), wordCounter{}, 0)

	err := svc.MarkStale(context.Background(), "")
	var domErr *domain.DomainError
	require.ErrorAs(t, err, &domErr)
	assert.Equal(t, domain.ErrCodeValidation, domErr.Code)
}

func TestMarkStaleUnknownDocument(t *testing.T) {
	svc := NewIngestService(store.NewMemory(), wordCounter{}, 0)

	err := svc.MarkStale(context.Background(), "missing-doc")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}
