package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundline/groundline/internal/domain"
)

type stubSearch struct {
	results []*domain.SearchCandidate
	err     error
}

func (s *stubSearch) Search(ctx context.Context, queryText string, topK int) ([]*domain.SearchCandidate, error) {
	return s.results, s.err
}

type stubRouter struct{}

func (stubRouter) Classify(queryText string) domain.ComplexityHint {
	return domain.ComplexitySimple
}

func (stubRouter) Select(kind domain.RequestKind, hint domain.ComplexityHint, pref domain.CostPreference) []domain.ProviderProfile {
	return []domain.ProviderProfile{
		{ProviderID: "openai", ModelID: "gpt-4o-mini"},
		{ProviderID: "anthropic", ModelID: "claude-sonnet"},
	}
}

type stubGenChain struct {
	mu      sync.Mutex
	lastReq domain.GenerationRequest
	result  *domain.GenerationResult
	err     error
}

func (s *stubGenChain) Generate(ctx context.Context, req domain.GenerationRequest, profiles []domain.ProviderProfile) (*domain.GenerationResult, error) {
	s.mu.Lock()
	s.lastReq = req
	s.mu.Unlock()
	return s.result, s.err
}

type recordingEventSink struct {
	mu     sync.Mutex
	events []QueryEvent
}

func (s *recordingEventSink) RecordQueryEvent(ctx context.Context, event QueryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingEventSink) last() (QueryEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return QueryEvent{}, false
	}
	return s.events[len(s.events)-1], true
}

type stubApproval struct {
	approved bool
	err      error
}

func (s *stubApproval) Approve(ctx context.Context, answer string, citations []domain.Citation) (bool, error) {
	return s.approved, s.err
}

func orchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		TokenBudget:     1000,
		SearchTopK:      5,
		QueryTimeout:    2 * time.Second,
		MaxAnswerTokens: 256,
	}
}

func newTestOrchestrator(search SearchProvider, chain GenerationChain, emitter *EventEmitter, approval ApprovalGate) *Orchestrator {
	return NewOrchestrator(
		search,
		nil,
		NewAssembler(0),
		NewCitationTracker(),
		stubRouter{},
		chain,
		emitter,
		approval,
		orchestratorConfig(),
	)
}

func TestAnswerCompletes(t *testing.T) {
	search := &stubSearch{results: []*domain.SearchCandidate{candidate("c1", 200), candidate("c2", 200)}}
	chain := &stubGenChain{result: &domain.GenerationResult{
		Text:       "Plans start at $49 per month. [1]",
		ProviderID: "openai",
		ModelID:    "gpt-4o-mini",
		TokensIn:   120,
		TokensOut:  18,
	}}
	sink := &recordingEventSink{}
	emitter := NewEventEmitter(sink)
	defer emitter.Close()

	orch := newTestOrchestrator(search, chain, emitter, nil)

	result, err := orch.Answer(context.Background(), AnswerInput{ConversationID: "conv-1", Query: "What do plans cost?"})
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, result.State)
	assert.Equal(t, "openai", result.ProviderUsed)
	assert.Equal(t, "gpt-4o-mini", result.ModelUsed)
	require.Len(t, result.Citations, 1)
	assert.Equal(t, "c1", result.Citations[0].ChunkID)

	chain.mu.Lock()
	req := chain.lastReq
	chain.mu.Unlock()
	assert.Equal(t, domain.RequestKindGeneration, req.Kind)
	assert.Contains(t, req.Prompt, "What do plans cost?")
	assert.Contains(t, req.Prompt, "[1]")
	assert.Equal(t, "conv-1", req.ConversationID)

	assert.Eventually(t, func() bool {
		event, ok := sink.last()
		return ok && event.State == string(StateCompleted) && event.ConversationID == "conv-1"
	}, time.Second, 10*time.Millisecond)
}

func TestAnswerRejectsEmptyQuery(t *testing.T) {
	orch := newTestOrchestrator(&stubSearch{}, &stubGenChain{}, nil, nil)

	_, err := orch.Answer(context.Background(), AnswerInput{Query: "   "})
	assert.ErrorIs(t, err, domain.ErrEmptyQuery)
}

func TestAnswerNoGroundingWhenNothingMatches(t *testing.T) {
	sink := &recordingEventSink{}
	emitter := NewEventEmitter(sink)
	defer emitter.Close()

	orch := newTestOrchestrator(&stubSearch{}, &stubGenChain{}, emitter, nil)

	result, err := orch.Answer(context.Background(), AnswerInput{ConversationID: "conv-2", Query: "anything"})
	require.NoError(t, err)

	assert.Equal(t, StateNoGrounding, result.State)
	assert.NotEmpty(t, result.Text)
	assert.Empty(t, result.Citations)

	assert.Eventually(t, func() bool {
		event, ok := sink.last()
		return ok && event.State == string(StateNoGrounding)
	}, time.Second, 10*time.Millisecond)
}

func TestAnswerNoGroundingWhenNothingFitsBudget(t *testing.T) {
	search := &stubSearch{results: []*domain.SearchCandidate{candidate("huge", 5000)}}
	orch := newTestOrchestrator(search, &stubGenChain{}, nil, nil)

	result, err := orch.Answer(context.Background(), AnswerInput{Query: "anything"})
	require.NoError(t, err)
	assert.Equal(t, StateNoGrounding, result.State)
}

func TestAnswerSurfacesSearchFailure(t *testing.T) {
	search := &stubSearch{err: domain.ErrStoreUnavailable}
	orch := newTestOrchestrator(search, &stubGenChain{}, nil, nil)

	_, err := orch.Answer(context.Background(), AnswerInput{Query: "anything"})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestAnswerSurfacesExhaustedFallbackChain(t *testing.T) {
	search := &stubSearch{results: []*domain.SearchCandidate{candidate("c1", 200)}}
	chain := &stubGenChain{err: &domain.AllProvidersFailedError{
		Attempts: []domain.ProviderAttempt{
			{ProviderID: "openai", ModelID: "gpt-4o-mini", Err: errors.New("rate limited")},
			{ProviderID: "anthropic", ModelID: "claude-sonnet", Err: errors.New("rate limited")},
		},
	}}
	orch := newTestOrchestrator(search, chain, nil, nil)

	_, err := orch.Answer(context.Background(), AnswerInput{Query: "anything"})
	require.Error(t, err)

	var allFailed *domain.AllProvidersFailedError
	require.ErrorAs(t, err, &allFailed)
	assert.Len(t, allFailed.Attempts, 2)
	assert.True(t, IsRetryable(err))
}

func TestAnswerEmitsFailureStageEvents(t *testing.T) {
	t.Run("search failure", func(t *testing.T) {
		sink := &recordingEventSink{}
		emitter := NewEventEmitter(sink)
		defer emitter.Close()

		search := &stubSearch{err: domain.ErrStoreUnavailable}
		orch := newTestOrchestrator(search, &stubGenChain{}, emitter, nil)

		_, err := orch.Answer(context.Background(), AnswerInput{ConversationID: "conv-3", Query: "anything"})
		require.Error(t, err)

		assert.Eventually(t, func() bool {
			event, ok := sink.last()
			return ok &&
				event.State == string(StateFailed) &&
				event.FailedDuring == string(StateSearching) &&
				event.ConversationID == "conv-3"
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("generation failure", func(t *testing.T) {
		sink := &recordingEventSink{}
		emitter := NewEventEmitter(sink)
		defer emitter.Close()

		search := &stubSearch{results: []*domain.SearchCandidate{candidate("c1", 200)}}
		chain := &stubGenChain{err: &domain.AllProvidersFailedError{
			Attempts: []domain.ProviderAttempt{
				{ProviderID: "openai", ModelID: "gpt-4o-mini", Err: errors.New("rate limited")},
			},
		}}
		orch := newTestOrchestrator(search, chain, emitter, nil)

		_, err := orch.Answer(context.Background(), AnswerInput{Query: "anything"})
		require.Error(t, err)

		assert.Eventually(t, func() bool {
			event, ok := sink.last()
			return ok && event.State == string(StateFailed) && event.FailedDuring == string(StateGenerating)
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("approval rejection", func(t *testing.T) {
		sink := &recordingEventSink{}
		emitter := NewEventEmitter(sink)
		defer emitter.Close()

		search := &stubSearch{results: []*domain.SearchCandidate{candidate("c1", 200)}}
		chain := &stubGenChain{result: &domain.GenerationResult{Text: "answer [1]", ProviderID: "openai", ModelID: "gpt-4o-mini"}}
		orch := newTestOrchestrator(search, chain, emitter, &stubApproval{approved: false})

		_, err := orch.Answer(context.Background(), AnswerInput{Query: "anything"})
		require.Error(t, err)

		assert.Eventually(t, func() bool {
			event, ok := sink.last()
			return ok && event.State == string(StateFailed) && event.FailedDuring == string(StateValidating)
		}, time.Second, 10*time.Millisecond)
	})
}

func TestAnswerSynthesizesCitationsForUncitedAnswer(t *testing.T) {
	search := &stubSearch{results: []*domain.SearchCandidate{candidate("c1", 200), candidate("c2", 200)}}
	chain := &stubGenChain{result: &domain.GenerationResult{
		Text:       "Plans start at $49 per month.",
		ProviderID: "openai",
		ModelID:    "gpt-4o-mini",
	}}
	orch := newTestOrchestrator(search, chain, nil, nil)

	result, err := orch.Answer(context.Background(), AnswerInput{Query: "pricing"})
	require.NoError(t, err)
	assert.Len(t, result.Citations, 2)
}

func TestAnswerApprovalRejection(t *testing.T) {
	search := &stubSearch{results: []*domain.SearchCandidate{candidate("c1", 200)}}
	chain := &stubGenChain{result: &domain.GenerationResult{Text: "answer [1]", ProviderID: "openai", ModelID: "gpt-4o-mini"}}
	orch := newTestOrchestrator(search, chain, nil, &stubApproval{approved: false})

	_, err := orch.Answer(context.Background(), AnswerInput{Query: "anything"})
	require.Error(t, err)

	var domErr *domain.DomainError
	require.ErrorAs(t, err, &domErr)
	assert.Equal(t, domain.ErrCodeApprovalRejected, domErr.Code)
}

func TestAnswerApprovalFailureIsInternal(t *testing.T) {
	search := &stubSearch{results: []*domain.SearchCandidate{candidate("c1", 200)}}
	chain := &stubGenChain{result: &domain.GenerationResult{Text: "answer [1]", ProviderID: "openai", ModelID: "gpt-4o-mini"}}
	orch := newTestOrchestrator(search, chain, nil, &stubApproval{err: errors.New("review queue down")})

	_, err := orch.Answer(context.Background(), AnswerInput{Query: "anything"})
	require.Error(t, err)

	var domErr *domain.DomainError
	require.ErrorAs(t, err, &domErr)
	assert.Equal(t, domain.ErrCodeInternalError, domErr.Code)
}

func TestAnswerUsesRequestBudgetOverDefault(t *testing.T) {
	// The configured default budget (1000) would fit this chunk; the
	// per-request budget must win.
	search := &stubSearch{results: []*domain.SearchCandidate{candidate("c1", 500)}}
	orch := newTestOrchestrator(search, &stubGenChain{}, nil, nil)

	result, err := orch.Answer(context.Background(), AnswerInput{Query: "anything", TokenBudget: 100})
	require.NoError(t, err)
	assert.Equal(t, StateNoGrounding, result.State)
}
