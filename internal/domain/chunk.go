package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Chunk is a contiguous slice of a document's text sized for model context
// limits. Chunks are superseded, never mutated: re-ingesting changed content
// inserts a new chunk and tombstones the prior version so in-flight
// conversations keep resolving the version they cited.
type Chunk struct {
	ID          string
	DocumentID  string
	SourceURI   string
	SourceType  SourceType
	Ordinal     int
	Text        string
	TokenCount  int
	ContentHash string
	// Embedding fields are empty until the backfill worker runs or the
	// ingestion path embeds inline.
	Embedding    []float32
	ModelVersion string
	RefreshedAt  time.Time
	TombstonedAt *time.Time
}

// Tombstoned reports whether this chunk has been superseded or marked stale.
func (c *Chunk) Tombstoned() bool {
	return c.TombstonedAt != nil
}

// HashContent computes the deduplication hash for chunk text. Whitespace is
// collapsed first so reflowed but otherwise identical content dedupes.
func HashContent(text string) string {
	normalized := strings.Join(strings.Fields(text), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// ValidateChunk checks chunk invariants prior to upsert. maxTokens is the
// configured per-chunk token ceiling; zero disables the check.
func ValidateChunk(c *Chunk, maxTokens int) error {
	if c == nil {
		return NewDomainError(ErrCodeValidation, "chunk cannot be nil")
	}
	if c.DocumentID == "" {
		return NewDomainError(ErrCodeValidation, "chunk document ID is required")
	}
	if strings.TrimSpace(c.Text) == "" {
		return NewDomainError(ErrCodeValidation, "chunk text is empty")
	}
	if c.Ordinal < 0 {
		return NewDomainError(ErrCodeValidation, "chunk ordinal cannot be negative")
	}
	if c.TokenCount <= 0 {
		return NewDomainError(ErrCodeValidation, "chunk token count must be positive")
	}
	if maxTokens > 0 && c.TokenCount > maxTokens {
		return ErrInvalidChunk
	}
	return nil
}

// ChunkMatch pairs a chunk with a single-stream relevance score. It is the
// raw result of one search branch before fusion.
type ChunkMatch struct {
	Chunk *Chunk
	Score float64
}
