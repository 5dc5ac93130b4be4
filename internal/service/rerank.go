package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/groundline/groundline/internal/domain"
)

// PassthroughReranker preserves hybrid-search order. Used when no rerank
// endpoint is configured.
type PassthroughReranker struct{}

func (PassthroughReranker) Rerank(ctx context.Context, queryText string, candidates []*domain.SearchCandidate) []*domain.SearchCandidate {
	return candidates
}

// HTTPReranker scores (query, chunk) pairs against a cross-encoder serving a
// BGE/cohere-style rerank API. Re-ranking is an optimization: any failure
// falls back to the input order unchanged.
type HTTPReranker struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
}

func NewHTTPReranker(endpoint, model, apiKey string, timeout time.Duration) *HTTPReranker {
	return &HTTPReranker{
		endpoint: endpoint,
		model:    model,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

func (r *HTTPReranker) Rerank(ctx context.Context, queryText string, candidates []*domain.SearchCandidate) []*domain.SearchCandidate {
	if len(candidates) < 2 {
		return candidates
	}

	scores, err := r.score(ctx, queryText, candidates)
	if err != nil {
		log.Printf("reranker unavailable, preserving hybrid order: %v", err)
		return candidates
	}

	out := make([]*domain.SearchCandidate, len(candidates))
	copy(out, candidates)
	sort.SliceStable(out, func(i, j int) bool {
		return scores[out[i].Chunk.ID] > scores[out[j].Chunk.ID]
	})
	for _, cand := range out {
		cand.CombinedScore = scores[cand.Chunk.ID]
	}
	return out
}

func (r *HTTPReranker) score(ctx context.Context, queryText string, candidates []*domain.SearchCandidate) (map[string]float64, error) {
	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Chunk.Text
	}

	body, err := json.Marshal(rerankRequest{Model: r.model, Query: queryText, Documents: docs})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank endpoint returned status %d", resp.StatusCode)
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if len(parsed.Results) != len(candidates) {
		return nil, fmt.Errorf("rerank returned %d results for %d documents", len(parsed.Results), len(candidates))
	}

	scores := make(map[string]float64, len(candidates))
	for _, result := range parsed.Results {
		if result.Index < 0 || result.Index >= len(candidates) {
			return nil, fmt.Errorf("rerank result index %d out of range", result.Index)
		}
		scores[candidates[result.Index].Chunk.ID] = result.RelevanceScore
	}
	return scores, nil
}
