package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundline/groundline/internal/domain"
)

func rerankCandidates() []*domain.SearchCandidate {
	return []*domain.SearchCandidate{
		candidate("a", 100),
		candidate("b", 100),
		candidate("c", 100),
	}
}

func TestPassthroughRerankerPreservesOrder(t *testing.T) {
	in := rerankCandidates()
	out := PassthroughReranker{}.Rerank(context.Background(), "q", in)

	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].Chunk.ID)
	assert.Equal(t, "c", out[2].Chunk.ID)
}

func TestHTTPRerankerReordersByRelevance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "bge-reranker-v2-m3", req.Model)
		assert.Equal(t, "enterprise pricing", req.Query)
		require.Len(t, req.Documents, 3)

		json.NewEncoder(w).Encode(rerankResponse{
			Results: []struct {
				Index          int     `json:"index"`
				RelevanceScore float64 `json:"relevance_score"`
			}{
				{Index: 0, RelevanceScore: 0.1},
				{Index: 1, RelevanceScore: 0.9},
				{Index: 2, RelevanceScore: 0.5},
			},
		})
	}))
	defer server.Close()

	reranker := NewHTTPReranker(server.URL, "bge-reranker-v2-m3", "test-key", time.Second)
	out := reranker.Rerank(context.Background(), "enterprise pricing", rerankCandidates())

	require.Len(t, out, 3)
	assert.Equal(t, "b", out[0].Chunk.ID)
	assert.Equal(t, "c", out[1].Chunk.ID)
	assert.Equal(t, "a", out[2].Chunk.ID)
	assert.InDelta(t, 0.9, out[0].CombinedScore, 1e-9)
}

func TestHTTPRerankerFallsBackOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	reranker := NewHTTPReranker(server.URL, "bge-reranker-v2-m3", "", time.Second)
	out := reranker.Rerank(context.Background(), "q", rerankCandidates())

	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].Chunk.ID)
	assert.Equal(t, "b", out[1].Chunk.ID)
	assert.Equal(t, "c", out[2].Chunk.ID)
}

func TestHTTPRerankerFallsBackOnCardinalityMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(rerankResponse{
			Results: []struct {
				Index          int     `json:"index"`
				RelevanceScore float64 `json:"relevance_score"`
			}{
				{Index: 0, RelevanceScore: 0.5},
			},
		})
	}))
	defer server.Close()

	reranker := NewHTTPReranker(server.URL, "bge-reranker-v2-m3", "", time.Second)
	out := reranker.Rerank(context.Background(), "q", rerankCandidates())

	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].Chunk.ID)
}

func TestHTTPRerankerSkipsCallBelowTwoCandidates(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	reranker := NewHTTPReranker(server.URL, "bge-reranker-v2-m3", "", time.Second)

	single := []*domain.SearchCandidate{candidate("a", 100)}
	out := reranker.Rerank(context.Background(), "q", single)

	require.Len(t, out, 1)
	assert.Zero(t, calls.Load())
}
