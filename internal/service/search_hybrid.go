package service

import (
	"context"
	"log"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/groundline/groundline/internal/domain"
)

const (
	// candidateMultiplier widens each branch beyond topK so fusion has
	// material to work with.
	candidateMultiplier = 4
	minCandidates       = 20
	maxCandidates       = 200
)

// SearchConfig holds the score-combination weights. Both weights are business
// tuning and come from configuration.
type SearchConfig struct {
	SemanticWeight float64
	LexicalWeight  float64
}

// SearchService runs hybrid retrieval: vector and lexical branches in
// parallel, per-stream normalization, weighted fusion.
type SearchService struct {
	store    ChunkStore
	embedder QueryEmbedder
	cfg      SearchConfig
}

func NewSearchService(store ChunkStore, embedder QueryEmbedder, cfg SearchConfig) *SearchService {
	return &SearchService{store: store, embedder: embedder, cfg: cfg}
}

// Search returns up to topK candidates ranked by combined score. Losing the
// embedding degrades to lexical-only; losing one search branch degrades to
// the surviving branch. Both branches failing surfaces the store error.
func (s *SearchService) Search(ctx context.Context, queryText string, topK int) ([]*domain.SearchCandidate, error) {
	query := strings.TrimSpace(queryText)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}
	if topK <= 0 {
		topK = 10
	}

	candidateLimit := topK * candidateMultiplier
	if candidateLimit < minCandidates {
		candidateLimit = minCandidates
	}
	if candidateLimit > maxCandidates {
		candidateLimit = maxCandidates
	}

	queryVector, modelVersion, embedErr := s.embedder.EmbedQuery(ctx, query)
	if embedErr != nil {
		// Degrade to lexical-only rather than failing the search.
		log.Printf("query embedding failed, degrading to lexical-only search: %v", embedErr)
	}

	var semantic, lexical []*domain.ChunkMatch
	var semanticErr, lexicalErr error

	g, groupCtx := errgroup.WithContext(ctx)
	if embedErr == nil {
		g.Go(func() error {
			semantic, semanticErr = s.store.SearchByVector(groupCtx, queryVector, modelVersion, candidateLimit)
			return nil
		})
	}
	g.Go(func() error {
		lexical, lexicalErr = s.store.SearchByKeyword(groupCtx, query, candidateLimit)
		return nil
	})
	// Branch errors are held in semanticErr/lexicalErr; the group itself
	// never fails so one slow branch cannot cancel the other.
	_ = g.Wait()

	if semanticErr != nil {
		log.Printf("semantic search branch failed: %v", semanticErr)
	}
	if lexicalErr != nil {
		log.Printf("lexical search branch failed: %v", lexicalErr)
	}

	semanticFailed := embedErr != nil || semanticErr != nil
	if semanticFailed && lexicalErr != nil {
		err := lexicalErr
		if semanticErr != nil {
			err = semanticErr
		}
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeStoreUnavailable, "both search branches failed", err)
	}
	if semanticErr != nil {
		semantic = nil
	}
	if lexicalErr != nil {
		lexical = nil
	}

	return fuse(semantic, lexical, s.cfg, topK), nil
}

// fuse normalizes each score stream to [0,1] independently, combines with the
// configured weights, dedupes by chunk keeping the max combined score, and
// returns the topK. Ties are broken by chunk ID so the ranking is
// deterministic for a fixed corpus.
func fuse(semantic, lexical []*domain.ChunkMatch, cfg SearchConfig, topK int) []*domain.SearchCandidate {
	semanticNorm := normalizeScores(semantic)
	lexicalNorm := normalizeScores(lexical)

	byChunk := make(map[string]*domain.SearchCandidate)

	for i, m := range semantic {
		if m == nil || m.Chunk == nil {
			continue
		}
		cand, ok := byChunk[m.Chunk.ID]
		if !ok {
			cand = &domain.SearchCandidate{Chunk: m.Chunk}
			byChunk[m.Chunk.ID] = cand
		}
		if semanticNorm[i] > cand.SemanticScore {
			cand.SemanticScore = semanticNorm[i]
		}
	}
	for i, m := range lexical {
		if m == nil || m.Chunk == nil {
			continue
		}
		cand, ok := byChunk[m.Chunk.ID]
		if !ok {
			cand = &domain.SearchCandidate{Chunk: m.Chunk}
			byChunk[m.Chunk.ID] = cand
		}
		if lexicalNorm[i] > cand.LexicalScore {
			cand.LexicalScore = lexicalNorm[i]
		}
	}

	out := make([]*domain.SearchCandidate, 0, len(byChunk))
	for _, cand := range byChunk {
		cand.CombinedScore = cfg.SemanticWeight*cand.SemanticScore + cfg.LexicalWeight*cand.LexicalScore
		out = append(out, cand)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CombinedScore != out[j].CombinedScore {
			return out[i].CombinedScore > out[j].CombinedScore
		}
		return out[i].Chunk.ID < out[j].Chunk.ID
	})

	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

// normalizeScores min-max scales one stream to [0,1]. A single-score stream
// maps to 1.0 so it still contributes its full weight.
func normalizeScores(matches []*domain.ChunkMatch) []float64 {
	if len(matches) == 0 {
		return nil
	}

	minScore, maxScore := matches[0].Score, matches[0].Score
	for _, m := range matches[1:] {
		if m.Score < minScore {
			minScore = m.Score
		}
		if m.Score > maxScore {
			maxScore = m.Score
		}
	}

	out := make([]float64, len(matches))
	spread := maxScore - minScore
	for i, m := range matches {
		if spread == 0 {
			out[i] = 1.0
			continue
		}
		out[i] = (m.Score - minScore) / spread
	}
	return out
}
