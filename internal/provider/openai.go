package provider

import (
	"context"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/groundline/groundline/internal/domain"
)

// OpenAIProvider adapts the OpenAI chat/embedding API. With a custom base URL
// it also serves any OpenAI-compatible self-hosted backend (vLLM, Ollama),
// which is why the provider ID is injectable.
type OpenAIProvider struct {
	id     string
	client *openai.Client
}

// NewOpenAIProvider creates the hosted-OpenAI adapter.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{id: "openai", client: openai.NewClient(apiKey)}
}

// NewOpenAICompatibleProvider creates an adapter for an OpenAI-compatible
// endpoint under its own provider ID.
func NewOpenAICompatibleProvider(id, apiKey, baseURL string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{id: id, client: openai.NewClientWithConfig(cfg)}
}

func (p *OpenAIProvider) ID() string {
	return p.id
}

func (p *OpenAIProvider) Generate(ctx context.Context, req domain.GenerationRequest, modelID string) (*domain.GenerationResult, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     modelID,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return nil, p.classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, newError(KindInvalidResponse, p.id, errors.New("no choices returned"))
	}

	return &domain.GenerationResult{
		Text:       resp.Choices[0].Message.Content,
		ProviderID: p.id,
		ModelID:    modelID,
		TokensIn:   resp.Usage.PromptTokens,
		TokensOut:  resp.Usage.CompletionTokens,
		Latency:    time.Since(start),
	}, nil
}

func (p *OpenAIProvider) Embed(ctx context.Context, texts []string, modelID string) (*domain.EmbeddingResult, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(modelID),
	})
	if err != nil {
		return nil, p.classify(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, newError(KindInvalidResponse, p.id, errors.New("embedding count does not match input count"))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}
	return &domain.EmbeddingResult{
		Vectors:  vectors,
		TokensIn: resp.Usage.PromptTokens,
	}, nil
}

func (p *OpenAIProvider) classify(err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return newError(classifyStatus(apiErr.HTTPStatusCode), p.id, err)
	}
	return newError(classifyTransport(err), p.id, err)
}
