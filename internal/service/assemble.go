package service

import (
	"github.com/groundline/groundline/internal/domain"
)

// Assembler packs ranked candidates into a token-budgeted context. Chunks are
// included atomically in rank order; the first candidate that would exceed
// the budget stops assembly. Chunks are never split.
type Assembler struct {
	// promptOverhead is the fixed token cost of the prompt scaffolding
	// (system instructions, citation framing) counted against the budget.
	promptOverhead int
}

func NewAssembler(promptOverhead int) *Assembler {
	return &Assembler{promptOverhead: promptOverhead}
}

// Assemble selects candidates while overhead plus chunk tokens stay within
// tokenBudget. An empty result (nothing fit) is not an error here; the
// orchestrator maps it to the no-grounding terminal state.
func (a *Assembler) Assemble(ranked []*domain.SearchCandidate, tokenBudget int) (*domain.AssembledContext, error) {
	if tokenBudget <= 0 {
		return nil, domain.ErrInvalidBudget
	}

	assembled := &domain.AssembledContext{
		Budget:     tokenBudget,
		TokenTotal: a.promptOverhead,
	}

	for _, cand := range ranked {
		if cand == nil || cand.Chunk == nil {
			continue
		}
		if assembled.TokenTotal+cand.Chunk.TokenCount > tokenBudget {
			break
		}
		assembled.Chunks = append(assembled.Chunks, cand.Chunk)
		assembled.TokenTotal += cand.Chunk.TokenCount
	}

	if assembled.Empty() {
		// The overhead of an empty context is not meaningful.
		assembled.TokenTotal = 0
	}
	return assembled, nil
}
