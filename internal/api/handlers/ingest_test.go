package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/groundline/groundline/internal/domain"
	"github.com/groundline/groundline/internal/service"
)

type MockIngestionService struct {
	mock.Mock
}

func (m *MockIngestionService) UpsertBatch(ctx context.Context, inputs []service.ChunkInput) ([]*domain.Chunk, int, error) {
	args := m.Called(ctx, inputs)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*domain.Chunk), args.Int(1), args.Error(2)
}

func (m *MockIngestionService) MarkStale(ctx context.Context, documentID string) error {
	args := m.Called(ctx, documentID)
	return args.Error(0)
}

func TestIngestHandler_UpsertChunks_Success(t *testing.T) {
	mockSvc := new(MockIngestionService)
	handler := NewIngestHandler(mockSvc)

	expected := []service.ChunkInput{
		{DocumentID: "doc-1", SourceURI: "https://docs.example.com/a", Ordinal: 0, Text: "first"},
		{DocumentID: "doc-1", SourceURI: "https://docs.example.com/a", Ordinal: 1, Text: "second"},
	}
	mockSvc.On("UpsertBatch", mock.Anything, expected).Return(
		[]*domain.Chunk{{ID: "c1"}, {ID: "c2"}}, 2, nil)

	req := postJSON(t, "/chunks", UpsertChunksRequest{
		DocumentID: "doc-1",
		SourceURI:  "https://docs.example.com/a",
		Chunks:     []ChunkRequest{{Ordinal: 0, Text: "first"}, {Ordinal: 1, Text: "second"}},
	})
	w := httptest.NewRecorder()

	handler.UpsertChunks(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Len(t, data["chunk_ids"], 2)
	assert.Equal(t, float64(2), data["created"])
	mockSvc.AssertExpectations(t)
}

func TestIngestHandler_UpsertChunks_SourceType(t *testing.T) {
	mockSvc := new(MockIngestionService)
	handler := NewIngestHandler(mockSvc)

	expected := []service.ChunkInput{
		{DocumentID: "doc-2", SourceURI: "https://docs.example.com/guide.pdf", SourceType: domain.SourceTypePDF, Ordinal: 0, Text: "manual"},
	}
	mockSvc.On("UpsertBatch", mock.Anything, expected).Return(
		[]*domain.Chunk{{ID: "c1"}}, 1, nil)

	req := postJSON(t, "/chunks", UpsertChunksRequest{
		DocumentID: "doc-2",
		SourceURI:  "https://docs.example.com/guide.pdf",
		SourceType: "pdf",
		Chunks:     []ChunkRequest{{Ordinal: 0, Text: "manual"}},
	})
	w := httptest.NewRecorder()

	handler.UpsertChunks(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestIngestHandler_UpsertChunks_MissingDocumentID(t *testing.T) {
	handler := NewIngestHandler(new(MockIngestionService))

	req := postJSON(t, "/chunks", UpsertChunksRequest{
		Chunks: []ChunkRequest{{Ordinal: 0, Text: "first"}},
	})
	w := httptest.NewRecorder()

	handler.UpsertChunks(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestHandler_UpsertChunks_ValidationError(t *testing.T) {
	mockSvc := new(MockIngestionService)
	handler := NewIngestHandler(mockSvc)

	mockSvc.On("UpsertBatch", mock.Anything, mock.Anything).Return(nil, 0, domain.ErrInvalidChunk)

	req := postJSON(t, "/chunks", UpsertChunksRequest{
		DocumentID: "doc-1",
		Chunks:     []ChunkRequest{{Ordinal: 0, Text: "oversized"}},
	})
	w := httptest.NewRecorder()

	handler.UpsertChunks(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestHandler_MarkStale(t *testing.T) {
	mockSvc := new(MockIngestionService)
	handler := NewIngestHandler(mockSvc)

	mockSvc.On("MarkStale", mock.Anything, "doc-1").Return(nil)

	r := chi.NewRouter()
	r.Post("/documents/{id}/stale", handler.MarkStale)

	req := httptest.NewRequest(http.MethodPost, "/documents/doc-1/stale", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestIngestHandler_MarkStale_NotFound(t *testing.T) {
	mockSvc := new(MockIngestionService)
	handler := NewIngestHandler(mockSvc)

	mockSvc.On("MarkStale", mock.Anything, "doc-missing").Return(domain.ErrDocumentNotFound)

	r := chi.NewRouter()
	r.Post("/documents/{id}/stale", handler.MarkStale)

	req := httptest.NewRequest(http.MethodPost, "/documents/doc-missing/stale", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
