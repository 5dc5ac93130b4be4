package domain

import "fmt"

// Citation binds a generated answer back to a chunk that was part of its
// assembled context. Citations are never fabricated post hoc: validation
// drops any marker referencing a chunk outside the context.
type Citation struct {
	SourceURI string `json:"source_uri"`
	ChunkID   string `json:"chunk_id"`
	Label     string `json:"label"`
}

// NewCitation builds a citation with the bracketed-ordinal display label used
// in prompts and answers.
func NewCitation(ordinal int, sourceURI, chunkID string) Citation {
	return Citation{
		SourceURI: sourceURI,
		ChunkID:   chunkID,
		Label:     fmt.Sprintf("[%d] %s", ordinal, sourceURI),
	}
}
