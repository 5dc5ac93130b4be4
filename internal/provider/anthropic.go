package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/groundline/groundline/internal/domain"
)

const defaultAnthropicMaxTokens = 1024

// AnthropicProvider adapts the Anthropic Messages API. It is
// generation-only; profiles for this provider must not claim embedding
// support.
type AnthropicProvider struct {
	client anthropic.Client
}

func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{client: anthropic.NewClient(option.WithAPIKey(apiKey))}
}

func (p *AnthropicProvider) ID() string {
	return "anthropic"
}

func (p *AnthropicProvider) Generate(ctx context.Context, req domain.GenerationRequest, modelID string) (*domain.GenerationResult, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelID),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	start := time.Now()
	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.classify(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return nil, newError(KindInvalidResponse, p.ID(), errors.New("no text blocks returned"))
	}

	return &domain.GenerationResult{
		Text:       sb.String(),
		ProviderID: p.ID(),
		ModelID:    modelID,
		TokensIn:   int(msg.Usage.InputTokens),
		TokensOut:  int(msg.Usage.OutputTokens),
		Latency:    time.Since(start),
	}, nil
}

func (p *AnthropicProvider) Embed(ctx context.Context, texts []string, modelID string) (*domain.EmbeddingResult, error) {
	return nil, newError(KindBadRequest, p.ID(), errors.New("anthropic does not provide an embedding API"))
}

func (p *AnthropicProvider) classify(err error) *Error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return newError(classifyStatus(apiErr.StatusCode), p.ID(), err)
	}
	return newError(classifyTransport(err), p.ID(), err)
}
