package domain

import "time"

// RequestKind distinguishes what a provider call is for.
type RequestKind string

const (
	RequestKindGeneration RequestKind = "generation"
	RequestKindEmbedding  RequestKind = "embedding"
)

// CostPreference biases model tier selection.
type CostPreference string

const (
	CostPreferenceFavorCost    CostPreference = "favor_cost"
	CostPreferenceFavorQuality CostPreference = "favor_quality"
)

// ComplexityHint classifies a request for routing. Simple requests (greetings,
// short lookups) go to the cheap tier; complex ones start on the strong tier.
type ComplexityHint string

const (
	ComplexitySimple  ComplexityHint = "simple"
	ComplexityComplex ComplexityHint = "complex"
)

// ProviderProfile describes one configured provider+model pair. Profiles are
// supplied by the settings collaborator and are read-only at request time.
type ProviderProfile struct {
	ProviderID         string
	ModelID            string
	CostPerTokenIn     float64
	CostPerTokenOut    float64
	AvgLatencyMs       int
	MaxContextTokens   int
	SupportsEmbeddings bool
	Tier               int
}

// CostPerToken is the blended per-token cost used for cheapest-first ordering.
func (p ProviderProfile) CostPerToken() float64 {
	return (p.CostPerTokenIn + p.CostPerTokenOut) / 2
}

// GenerationRequest carries one prompt through the fallback chain.
type GenerationRequest struct {
	Kind           RequestKind
	System         string
	Prompt         string
	MaxTokens      int
	ConversationID string
	// MinLength is the validity floor for non-trivial requests: responses
	// shorter than this count as a failed attempt.
	MinLength int
}

// EmbeddingResult is the outcome of one successful embedding attempt.
// TokensIn is zero when the backend does not report embedding usage.
type EmbeddingResult struct {
	Vectors  [][]float32
	TokensIn int
}

// GenerationResult is the outcome of one successful provider attempt.
type GenerationResult struct {
	Text       string
	ProviderID string
	ModelID    string
	TokensIn   int
	TokensOut  int
	Latency    time.Duration
}
