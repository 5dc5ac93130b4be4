package domain

// SearchCandidate is a hybrid-search result scoped to a single query's
// lifetime. Semantic and lexical scores are normalized to [0,1] before the
// weighted combination.
type SearchCandidate struct {
	Chunk         *Chunk
	SemanticScore float64
	LexicalScore  float64
	CombinedScore float64
}

// AssembledContext is the ordered set of chunks selected for one generation
// call. TokenTotal includes the fixed prompt overhead and never exceeds the
// budget the assembler was given.
type AssembledContext struct {
	Chunks     []*Chunk
	TokenTotal int
	Budget     int
}

// Empty reports whether no chunk fit the budget.
func (c *AssembledContext) Empty() bool {
	return c == nil || len(c.Chunks) == 0
}

// Contains reports whether the given chunk ID is part of this context.
func (c *AssembledContext) Contains(chunkID string) bool {
	if c == nil {
		return false
	}
	for _, ch := range c.Chunks {
		if ch.ID == chunkID {
			return true
		}
	}
	return false
}
