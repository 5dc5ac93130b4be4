// Package store provides an in-memory chunk store. It backs unit tests and
// single-process deployments where Postgres is not available; the Postgres
// repository is the production implementation.
package store

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/groundline/groundline/internal/domain"
)

// Memory is a mutex-guarded in-memory chunk store. Reads copy chunk structs
// out so callers never observe concurrent mutation.
type Memory struct {
	mu     sync.RWMutex
	chunks map[string]*domain.Chunk
	// live maps documentID:ordinal to the current (non-tombstoned) chunk ID.
	live map[string]string
}

func NewMemory() *Memory {
	return &Memory{
		chunks: make(map[string]*domain.Chunk),
		live:   make(map[string]string),
	}
}

func slotKey(documentID string, ordinal int) string {
	return documentID + ":" + strconv.Itoa(ordinal)
}

// Upsert is idempotent keyed by content hash. Unchanged content is a no-op;
// changed content tombstones the prior version of the slot and inserts a new
// chunk. Identical content already live under another document is stored once
// and shared, mirroring the chunk_documents linking the Postgres repository
// does.
func (m *Memory) Upsert(_ context.Context, chunk *domain.Chunk) (*domain.Chunk, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := slotKey(chunk.DocumentID, chunk.Ordinal)
	if existingID, ok := m.live[key]; ok {
		existing := m.chunks[existingID]
		if existing.ContentHash == chunk.ContentHash {
			return copyChunk(existing), false, nil
		}
		delete(m.live, key)
		m.tombstoneUnreferenced(existingID)
	}

	// Reuse a live chunk with the same content so shared text is embedded
	// once across documents.
	for _, id := range m.live {
		shared := m.chunks[id]
		if shared.ContentHash == chunk.ContentHash && !shared.Tombstoned() {
			m.live[key] = shared.ID
			return copyChunk(shared), true, nil
		}
	}

	stored := copyChunk(chunk)
	m.chunks[stored.ID] = stored
	m.live[key] = stored.ID
	return copyChunk(stored), true, nil
}

// tombstoneUnreferenced tombstones a chunk once no live slot links to it.
func (m *Memory) tombstoneUnreferenced(chunkID string) {
	for _, id := range m.live {
		if id == chunkID {
			return
		}
	}
	if chunk, ok := m.chunks[chunkID]; ok {
		now := time.Now().UTC()
		chunk.TombstonedAt = &now
	}
}

// Get resolves a chunk by ID, tombstoned versions included, so citations from
// in-flight conversations keep resolving after re-ingestion.
func (m *Memory) Get(_ context.Context, chunkID string) (*domain.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chunk, ok := m.chunks[chunkID]
	if !ok {
		return nil, domain.ErrChunkNotFound
	}
	return copyChunk(chunk), nil
}

func (m *Memory) BulkGet(_ context.Context, chunkIDs []string) ([]*domain.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.Chunk, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		if chunk, ok := m.chunks[id]; ok {
			out = append(out, copyChunk(chunk))
		}
	}
	return out, nil
}

// SearchByVector ranks live chunks by cosine similarity. Chunks embedded with
// a different model version are excluded: distances across embedding spaces
// are meaningless.
func (m *Memory) SearchByVector(_ context.Context, queryVector []float32, modelVersion string, topK int) ([]*domain.ChunkMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]*domain.ChunkMatch, 0, topK)
	seen := make(map[string]bool)
	for _, id := range m.live {
		if seen[id] {
			continue
		}
		seen[id] = true
		chunk := m.chunks[id]
		if chunk.Tombstoned() || len(chunk.Embedding) == 0 {
			continue
		}
		if chunk.ModelVersion != modelVersion {
			continue
		}
		score := cosineSimilarity(queryVector, chunk.Embedding)
		matches = append(matches, &domain.ChunkMatch{Chunk: copyChunk(chunk), Score: score})
	}

	sortMatches(matches)
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// SearchByKeyword ranks live chunks by term overlap with the query. It is a
// stand-in for the tsvector ranking the Postgres repository does.
func (m *Memory) SearchByKeyword(_ context.Context, queryText string, topK int) ([]*domain.ChunkMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	terms := strings.Fields(strings.ToLower(queryText))
	if len(terms) == 0 {
		return nil, nil
	}

	matches := make([]*domain.ChunkMatch, 0, topK)
	seen := make(map[string]bool)
	for _, id := range m.live {
		if seen[id] {
			continue
		}
		seen[id] = true
		chunk := m.chunks[id]
		if chunk.Tombstoned() {
			continue
		}
		text := strings.ToLower(chunk.Text)
		hits := 0
		for _, term := range terms {
			if strings.Contains(text, term) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		score := float64(hits) / float64(len(terms))
		matches = append(matches, &domain.ChunkMatch{Chunk: copyChunk(chunk), Score: score})
	}

	sortMatches(matches)
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// MarkStale tombstones every live chunk of a document.
func (m *Memory) MarkStale(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := documentID + ":"
	var released []string
	for key, id := range m.live {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		released = append(released, id)
		delete(m.live, key)
	}
	if len(released) == 0 {
		return domain.ErrDocumentNotFound
	}
	// A chunk shared with another document stays live through its other links.
	for _, id := range released {
		m.tombstoneUnreferenced(id)
	}
	return nil
}

// ListUnembedded returns live chunks with no embedding, oldest first.
func (m *Memory) ListUnembedded(_ context.Context, limit int) ([]*domain.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.Chunk
	seen := make(map[string]bool)
	for _, id := range m.live {
		if seen[id] {
			continue
		}
		seen[id] = true
		chunk := m.chunks[id]
		if chunk.Tombstoned() || len(chunk.Embedding) > 0 {
			continue
		}
		out = append(out, copyChunk(chunk))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RefreshedAt.Equal(out[j].RefreshedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].RefreshedAt.Before(out[j].RefreshedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SetEmbedding attaches an embedding vector to a chunk. Tombstoned chunks are
// skipped silently: the backfill worker may race a re-ingestion.
func (m *Memory) SetEmbedding(_ context.Context, chunkID string, vector []float32, modelVersion string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	chunk, ok := m.chunks[chunkID]
	if !ok {
		return domain.ErrChunkNotFound
	}
	if chunk.Tombstoned() {
		return nil
	}
	chunk.Embedding = append([]float32(nil), vector...)
	chunk.ModelVersion = modelVersion
	return nil
}

func sortMatches(matches []*domain.ChunkMatch) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].Chunk.ID < matches[j].Chunk.ID
		}
		return matches[i].Score > matches[j].Score
	})
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func copyChunk(c *domain.Chunk) *domain.Chunk {
	dup := *c
	if c.Embedding != nil {
		dup.Embedding = append([]float32(nil), c.Embedding...)
	}
	if c.TombstonedAt != nil {
		t := *c.TombstonedAt
		dup.TombstonedAt = &t
	}
	return &dup
}
