package service

import (
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/groundline/groundline/internal/domain"
)

// citationMarker matches the bracketed-ordinal markers the prompt instructs
// the model to emit, e.g. "[2]".
var citationMarker = regexp.MustCompile(`\[(\d+)\]`)

// CitationTracker binds assembled chunks to verifiable source references and
// validates that generated answers cite only included sources.
type CitationTracker struct{}

func NewCitationTracker() *CitationTracker {
	return &CitationTracker{}
}

// TaggedContext is an assembled context with per-chunk citation metadata and
// the rendered grounding block for prompt construction.
type TaggedContext struct {
	Context   *domain.AssembledContext
	Citations []domain.Citation
	// PromptBlock is the source material section of the prompt, one
	// labelled passage per chunk.
	PromptBlock string
}

// Tag assigns ordinal citation labels to the assembled chunks and renders the
// grounding block.
func (t *CitationTracker) Tag(assembled *domain.AssembledContext) *TaggedContext {
	tagged := &TaggedContext{Context: assembled}
	if assembled.Empty() {
		return tagged
	}

	var sb strings.Builder
	for i, chunk := range assembled.Chunks {
		ordinal := i + 1
		tagged.Citations = append(tagged.Citations, domain.NewCitation(ordinal, chunk.SourceURI, chunk.ID))
		fmt.Fprintf(&sb, "[%d] %s\nSource: %s\n\n", ordinal, strings.TrimSpace(chunk.Text), chunk.SourceURI)
	}
	tagged.PromptBlock = strings.TrimSuffix(sb.String(), "\n")
	return tagged
}

// Validate scans generatedText for citation markers and returns the
// citations the answer may carry. Markers referencing chunks outside the
// assembled context are dropped and counted as integrity violations — never
// surfaced to the user. If no valid marker survives but grounding content was
// available, the full citation list is synthesized so the answer stays
// traceable to the material it was given.
func (t *CitationTracker) Validate(generatedText string, tagged *TaggedContext) (citations []domain.Citation, violations int) {
	if tagged == nil || len(tagged.Citations) == 0 {
		return nil, 0
	}

	seen := make(map[int]struct{})
	for _, match := range citationMarker.FindAllStringSubmatch(generatedText, -1) {
		ordinal, err := strconv.Atoi(match[1])
		if err != nil || ordinal < 1 || ordinal > len(tagged.Citations) {
			violations++
			log.Printf("citation integrity violation: marker %s references chunk outside assembled context", match[0])
			continue
		}
		if _, ok := seen[ordinal]; ok {
			continue
		}
		seen[ordinal] = struct{}{}
		citations = append(citations, tagged.Citations[ordinal-1])
	}

	if len(citations) == 0 {
		// Grounding was available but uncited; attach the synthesized list.
		return append([]domain.Citation(nil), tagged.Citations...), violations
	}
	return citations, violations
}
