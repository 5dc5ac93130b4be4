package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/groundline/groundline/internal/api"
	"github.com/groundline/groundline/internal/domain"
	"github.com/groundline/groundline/internal/service"
)

// IngestionService is the write-path surface exposed to ingestion pipelines.
type IngestionService interface {
	UpsertBatch(ctx context.Context, inputs []service.ChunkInput) ([]*domain.Chunk, int, error)
	MarkStale(ctx context.Context, documentID string) error
}

type IngestHandler struct {
	svc IngestionService
}

func NewIngestHandler(svc IngestionService) *IngestHandler {
	return &IngestHandler{svc: svc}
}

type ChunkRequest struct {
	Ordinal int    `json:"ordinal"`
	Text    string `json:"text"`
}

type UpsertChunksRequest struct {
	DocumentID string         `json:"document_id"`
	SourceURI  string         `json:"source_uri"`
	SourceType string         `json:"source_type,omitempty"`
	Chunks     []ChunkRequest `json:"chunks"`
}

type UpsertChunksResponse struct {
	ChunkIDs []string `json:"chunk_ids"`
	Created  int      `json:"created"`
}

// UpsertChunks handles POST /chunks
func (h *IngestHandler) UpsertChunks(w http.ResponseWriter, r *http.Request) {
	var req UpsertChunksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.DocumentID) == "" {
		api.Error(w, http.StatusBadRequest, "document_id is required")
		return
	}
	if len(req.Chunks) == 0 {
		api.Error(w, http.StatusBadRequest, "chunks cannot be empty")
		return
	}

	inputs := make([]service.ChunkInput, len(req.Chunks))
	for i, c := range req.Chunks {
		inputs[i] = service.ChunkInput{
			DocumentID: req.DocumentID,
			SourceURI:  req.SourceURI,
			SourceType: domain.SourceType(req.SourceType),
			Ordinal:    c.Ordinal,
			Text:       c.Text,
		}
	}

	chunks, created, err := h.svc.UpsertBatch(r.Context(), inputs)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	api.Success(w, http.StatusOK, UpsertChunksResponse{ChunkIDs: ids, Created: created})
}

// MarkStale handles POST /documents/{id}/stale
func (h *IngestHandler) MarkStale(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "id")
	if documentID == "" {
		api.Error(w, http.StatusBadRequest, "document id is required")
		return
	}

	if err := h.svc.MarkStale(r.Context(), documentID); err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, map[string]string{"status": "stale"})
}
