package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/groundline/groundline/internal/domain"
	"github.com/groundline/groundline/internal/telemetry"
)

// QueryState is the orchestrator-visible pipeline state. Within one query the
// states advance strictly in order; Generating may loop internally across
// fallback-chain attempts without a state change.
type QueryState string

const (
	StateReceived    QueryState = "received"
	StateSearching   QueryState = "searching"
	StateReranking   QueryState = "reranking"
	StateAssembling  QueryState = "assembling"
	StateGenerating  QueryState = "generating"
	StateValidating  QueryState = "validating"
	StateCompleted   QueryState = "completed"
	StateNoGrounding QueryState = "no_grounding_available"
	StateFailed      QueryState = "failed"
)

// Stage shares of the remaining overall deadline. A slow early stage shrinks
// what later stages get instead of silently consuming the whole budget.
const (
	searchDeadlineShare   = 0.25
	rerankDeadlineShare   = 0.10
	generateDeadlineShare = 0.60
)

const noGroundingAnswer = "I can't answer that from the available content."

const answerSystemPrompt = `You answer questions about a website using only the provided source passages.
Cite every claim with the bracketed number of the passage that supports it, e.g. [1].
If the passages do not contain the answer, say so instead of guessing.`

// SearchProvider is the retrieval surface the orchestrator drives.
type SearchProvider interface {
	Search(ctx context.Context, queryText string, topK int) ([]*domain.SearchCandidate, error)
}

// OrchestratorConfig carries the per-deployment pipeline settings, threaded
// in at construction and treated as read-only.
type OrchestratorConfig struct {
	TokenBudget     int
	SearchTopK      int
	QueryTimeout    time.Duration
	MinAnswerLength int
	MaxAnswerTokens int
}

// Orchestrator coordinates one query through
// search -> rerank -> assemble -> generate -> validate.
type Orchestrator struct {
	search    SearchProvider
	reranker  Reranker
	assembler *Assembler
	citations *CitationTracker
	router    ModelRouter
	chain     GenerationChain
	emitter   *EventEmitter
	approval  ApprovalGate
	cfg       OrchestratorConfig
}

func NewOrchestrator(
	search SearchProvider,
	reranker Reranker,
	assembler *Assembler,
	citations *CitationTracker,
	router ModelRouter,
	chain GenerationChain,
	emitter *EventEmitter,
	approval ApprovalGate,
	cfg OrchestratorConfig,
) *Orchestrator {
	if reranker == nil {
		reranker = PassthroughReranker{}
	}
	return &Orchestrator{
		search:    search,
		reranker:  reranker,
		assembler: assembler,
		citations: citations,
		router:    router,
		chain:     chain,
		emitter:   emitter,
		approval:  approval,
		cfg:       cfg,
	}
}

// AnswerInput is one query from the conversation-handling collaborator.
type AnswerInput struct {
	ConversationID string
	Query          string
	TokenBudget    int
	CostPreference domain.CostPreference
}

// AnswerResult is the terminal outcome of a query.
type AnswerResult struct {
	Text         string
	Citations    []domain.Citation
	ProviderUsed string
	ModelUsed    string
	TokensIn     int
	TokensOut    int
	State        QueryState
	LatencyMs    int64
}

// Answer runs the full pipeline. Stage-local recoverable conditions degrade
// in place; pipeline-fatal conditions return a typed error.
func (o *Orchestrator) Answer(ctx context.Context, input AnswerInput) (*AnswerResult, error) {
	start := time.Now()
	state := StateReceived

	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}
	budget := input.TokenBudget
	if budget <= 0 {
		budget = o.cfg.TokenBudget
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && o.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.QueryTimeout)
		defer cancel()
	}

	ctx, span := telemetry.StartSpan(ctx, "Orchestrator.Answer", telemetry.SpanAttributes{
		ConversationID: input.ConversationID,
		Operation:      "answer",
	})
	defer span.End()

	state = StateSearching
	searchCtx, cancelSearch := stageContext(ctx, searchDeadlineShare)
	candidates, err := o.search.Search(searchCtx, query, o.cfg.SearchTopK)
	cancelSearch()
	if err != nil {
		span.SetError(err)
		o.emitFailure(input, query, state, start)
		return nil, err
	}

	state = StateReranking
	rerankCtx, cancelRerank := stageContext(ctx, rerankDeadlineShare)
	ranked := o.reranker.Rerank(rerankCtx, query, candidates)
	cancelRerank()

	state = StateAssembling
	assembled, err := o.assembler.Assemble(ranked, budget)
	if err != nil {
		span.SetError(err)
		o.emitFailure(input, query, state, start)
		return nil, err
	}
	if assembled.TokenTotal > budget {
		// Structurally impossible given the assembler invariant.
		log.Printf("INVARIANT VIOLATION: %v (total=%d budget=%d)", domain.ErrTokenBudgetExceeded, assembled.TokenTotal, budget)
		telemetry.CaptureError(ctx, domain.ErrTokenBudgetExceeded)
	}

	if assembled.Empty() {
		result := &AnswerResult{
			Text:      noGroundingAnswer,
			State:     StateNoGrounding,
			LatencyMs: time.Since(start).Milliseconds(),
		}
		o.emit(input, query, result)
		return result, nil
	}

	tagged := o.citations.Tag(assembled)

	// The fallback chain may loop across providers internally.
	state = StateGenerating
	hint := o.router.Classify(query)
	profiles := o.router.Select(domain.RequestKindGeneration, hint, input.CostPreference)

	genCtx, cancelGen := stageContext(ctx, generateDeadlineShare)
	generated, err := o.chain.Generate(genCtx, domain.GenerationRequest{
		Kind:           domain.RequestKindGeneration,
		System:         answerSystemPrompt,
		Prompt:         buildAnswerPrompt(tagged.PromptBlock, query),
		MaxTokens:      o.cfg.MaxAnswerTokens,
		MinLength:      o.cfg.MinAnswerLength,
		ConversationID: input.ConversationID,
	}, profiles)
	cancelGen()
	if err != nil {
		span.SetError(err)
		o.emitFailure(input, query, state, start)
		return nil, err
	}

	state = StateValidating
	citations, violations := o.citations.Validate(generated.Text, tagged)
	if violations > 0 {
		log.Printf("answer for conversation %s dropped %d invalid citation markers", input.ConversationID, violations)
	}

	if o.approval != nil {
		approved, approveErr := o.approval.Approve(ctx, generated.Text, citations)
		if approveErr != nil {
			span.SetError(approveErr)
			o.emitFailure(input, query, state, start)
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "approval gate failed", approveErr)
		}
		if !approved {
			o.emitFailure(input, query, state, start)
			return nil, domain.NewDomainError(domain.ErrCodeApprovalRejected, "answer rejected by approval gate")
		}
	}

	result := &AnswerResult{
		Text:         generated.Text,
		Citations:    citations,
		ProviderUsed: generated.ProviderID,
		ModelUsed:    generated.ModelID,
		TokensIn:     generated.TokensIn,
		TokensOut:    generated.TokensOut,
		State:        StateCompleted,
		LatencyMs:    time.Since(start).Milliseconds(),
	}
	o.emit(input, query, result)
	return result, nil
}

func (o *Orchestrator) emit(input AnswerInput, query string, result *AnswerResult) {
	if o.emitter == nil {
		return
	}
	o.emitter.Emit(QueryEvent{
		ConversationID: input.ConversationID,
		QueryText:      query,
		Answer:         result.Text,
		Citations:      result.Citations,
		ProviderUsed:   result.ProviderUsed,
		ModelUsed:      result.ModelUsed,
		TokensIn:       result.TokensIn,
		TokensOut:      result.TokensOut,
		LatencyMs:      result.LatencyMs,
		State:          string(result.State),
	})
}

// emitFailure records which stage the pipeline died in. The caller still
// returns the error; the event is analytics-only.
func (o *Orchestrator) emitFailure(input AnswerInput, query string, reached QueryState, start time.Time) {
	if o.emitter == nil {
		return
	}
	o.emitter.Emit(QueryEvent{
		ConversationID: input.ConversationID,
		QueryText:      query,
		LatencyMs:      time.Since(start).Milliseconds(),
		State:          string(StateFailed),
		FailedDuring:   string(reached),
	})
}

// stageContext derives a sub-deadline from the share of whatever remains of
// the overall query deadline.
func stageContext(ctx context.Context, share float64) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return context.WithCancel(ctx)
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(float64(remaining)*share))
}

func buildAnswerPrompt(promptBlock, query string) string {
	return fmt.Sprintf("Source passages:\n\n%s\n\nQuestion: %s", promptBlock, query)
}

// IsRetryable reports whether the caller should retry later (generation
// exhausted the fallback chain).
func IsRetryable(err error) bool {
	var allFailed *domain.AllProvidersFailedError
	return errors.As(err, &allFailed)
}
