package provider

import (
	"context"
	"errors"
	"time"

	"google.golang.org/genai"

	"github.com/groundline/groundline/internal/domain"
)

// GeminiProvider adapts the Google Gemini API for both generation and
// embeddings.
type GeminiProvider struct {
	client *genai.Client
}

func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiProvider{client: client}, nil
}

func (p *GeminiProvider) ID() string {
	return "gemini"
}

func (p *GeminiProvider) Generate(ctx context.Context, req domain.GenerationRequest, modelID string) (*domain.GenerationResult, error) {
	cfg := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	start := time.Now()
	resp, err := p.client.Models.GenerateContent(ctx, modelID, genai.Text(req.Prompt), cfg)
	if err != nil {
		return nil, p.classify(err)
	}

	text := resp.Text()
	if text == "" {
		return nil, newError(KindInvalidResponse, p.ID(), errors.New("empty response"))
	}

	result := &domain.GenerationResult{
		Text:       text,
		ProviderID: p.ID(),
		ModelID:    modelID,
		Latency:    time.Since(start),
	}
	if resp.UsageMetadata != nil {
		result.TokensIn = int(resp.UsageMetadata.PromptTokenCount)
		result.TokensOut = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return result, nil
}

func (p *GeminiProvider) Embed(ctx context.Context, texts []string, modelID string) (*domain.EmbeddingResult, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	resp, err := p.client.Models.EmbedContent(ctx, modelID, contents, nil)
	if err != nil {
		return nil, p.classify(err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, newError(KindInvalidResponse, p.ID(), errors.New("embedding count does not match input count"))
	}

	result := &domain.EmbeddingResult{Vectors: make([][]float32, len(resp.Embeddings))}
	for i, e := range resp.Embeddings {
		result.Vectors[i] = e.Values
		// Per-embedding statistics are only populated on the Vertex backend.
		if e.Statistics != nil {
			result.TokensIn += int(e.Statistics.TokenCount)
		}
	}
	return result, nil
}

func (p *GeminiProvider) classify(err error) *Error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return newError(classifyStatus(apiErr.Code), p.ID(), err)
	}
	return newError(classifyTransport(err), p.ID(), err)
}
