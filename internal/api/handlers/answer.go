package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/groundline/groundline/internal/api"
	"github.com/groundline/groundline/internal/domain"
	"github.com/groundline/groundline/internal/service"
)

// AnswerService runs the grounded answer pipeline.
type AnswerService interface {
	Answer(ctx context.Context, input service.AnswerInput) (*service.AnswerResult, error)
}

// SearchOnlyService exposes retrieval without generation, for debugging and
// for callers that bring their own model.
type SearchOnlyService interface {
	Search(ctx context.Context, queryText string, topK int) ([]*domain.SearchCandidate, error)
}

type AnswerHandler struct {
	svc    AnswerService
	search SearchOnlyService
}

func NewAnswerHandler(svc AnswerService, search SearchOnlyService) *AnswerHandler {
	return &AnswerHandler{svc: svc, search: search}
}

type AnswerRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Query          string `json:"query"`
	TokenBudget    int    `json:"token_budget,omitempty"`
	CostPreference string `json:"cost_preference,omitempty"`
}

type AnswerResponse struct {
	Answer    string            `json:"answer"`
	Citations []domain.Citation `json:"citations"`
	Provider  string            `json:"provider,omitempty"`
	Model     string            `json:"model,omitempty"`
	TokensIn  int               `json:"tokens_in"`
	TokensOut int               `json:"tokens_out"`
	State     string            `json:"state"`
	LatencyMs int64             `json:"latency_ms"`
}

// Answer handles POST /answer
func (h *AnswerHandler) Answer(w http.ResponseWriter, r *http.Request) {
	var req AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}

	pref := domain.CostPreference(req.CostPreference)
	switch pref {
	case "", domain.CostPreferenceFavorCost, domain.CostPreferenceFavorQuality:
	default:
		api.Error(w, http.StatusBadRequest, "cost_preference must be favor_cost or favor_quality")
		return
	}

	result, err := h.svc.Answer(r.Context(), service.AnswerInput{
		ConversationID: req.ConversationID,
		Query:          req.Query,
		TokenBudget:    req.TokenBudget,
		CostPreference: pref,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	citations := result.Citations
	if citations == nil {
		citations = []domain.Citation{}
	}
	api.Success(w, http.StatusOK, AnswerResponse{
		Answer:    result.Text,
		Citations: citations,
		Provider:  result.ProviderUsed,
		Model:     result.ModelUsed,
		TokensIn:  result.TokensIn,
		TokensOut: result.TokensOut,
		State:     string(result.State),
		LatencyMs: result.LatencyMs,
	})
}

type SearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

type SearchResultResponse struct {
	ChunkID   string  `json:"chunk_id"`
	SourceURI string  `json:"source_uri"`
	Snippet   string  `json:"snippet"`
	Score     float64 `json:"score"`
}

const snippetLength = 240

// Search handles POST /search
func (h *AnswerHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}

	candidates, err := h.search.Search(r.Context(), req.Query, req.TopK)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	results := make([]*SearchResultResponse, 0, len(candidates))
	for _, c := range candidates {
		snippet := c.Chunk.Text
		if len(snippet) > snippetLength {
			snippet = snippet[:snippetLength]
		}
		results = append(results, &SearchResultResponse{
			ChunkID:   c.Chunk.ID,
			SourceURI: c.Chunk.SourceURI,
			Snippet:   snippet,
			Score:     c.CombinedScore,
		})
	}
	api.Success(w, http.StatusOK, map[string]interface{}{"results": results})
}
