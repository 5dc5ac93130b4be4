package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/groundline/groundline/internal/domain"
	"github.com/groundline/groundline/internal/service"
)

type MockAnswerService struct {
	mock.Mock
}

func (m *MockAnswerService) Answer(ctx context.Context, input service.AnswerInput) (*service.AnswerResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AnswerResult), args.Error(1)
}

type MockSearchService struct {
	mock.Mock
}

func (m *MockSearchService) Search(ctx context.Context, queryText string, topK int) ([]*domain.SearchCandidate, error) {
	args := m.Called(ctx, queryText, topK)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.SearchCandidate), args.Error(1)
}

func postJSON(t *testing.T, path string, body interface{}) *http.Request {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	return httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
}

func TestAnswerHandler_Answer_Success(t *testing.T) {
	mockSvc := new(MockAnswerService)
	handler := NewAnswerHandler(mockSvc, nil)

	mockSvc.On("Answer", mock.Anything, service.AnswerInput{
		ConversationID: "conv-1",
		Query:          "how do I rotate keys?",
	}).Return(&service.AnswerResult{
		Text:         "Rotate keys via the admin console [1].",
		Citations:    []domain.Citation{{SourceURI: "https://docs.example.com/keys", ChunkID: "c1", Label: "[1] https://docs.example.com/keys"}},
		ProviderUsed: "openai",
		ModelUsed:    "gpt-4o-mini",
		TokensIn:     120,
		TokensOut:    30,
		State:        service.StateCompleted,
		LatencyMs:    840,
	}, nil)

	req := postJSON(t, "/answer", AnswerRequest{ConversationID: "conv-1", Query: "how do I rotate keys?"})
	w := httptest.NewRecorder()

	handler.Answer(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "Rotate keys via the admin console [1].", data["answer"])
	assert.Equal(t, "completed", data["state"])
	assert.Len(t, data["citations"], 1)
	mockSvc.AssertExpectations(t)
}

func TestAnswerHandler_Answer_EmptyQuery(t *testing.T) {
	mockSvc := new(MockAnswerService)
	handler := NewAnswerHandler(mockSvc, nil)

	req := postJSON(t, "/answer", AnswerRequest{Query: "   "})
	w := httptest.NewRecorder()

	handler.Answer(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockSvc.AssertNotCalled(t, "Answer", mock.Anything, mock.Anything)
}

func TestAnswerHandler_Answer_InvalidCostPreference(t *testing.T) {
	handler := NewAnswerHandler(new(MockAnswerService), nil)

	req := postJSON(t, "/answer", AnswerRequest{Query: "q", CostPreference: "cheapest"})
	w := httptest.NewRecorder()

	handler.Answer(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnswerHandler_Answer_AllProvidersFailed(t *testing.T) {
	mockSvc := new(MockAnswerService)
	handler := NewAnswerHandler(mockSvc, nil)

	mockSvc.On("Answer", mock.Anything, mock.Anything).Return(nil, &domain.AllProvidersFailedError{
		Attempts: []domain.ProviderAttempt{{ProviderID: "openai", ModelID: "gpt-4o-mini"}},
	})

	req := postJSON(t, "/answer", AnswerRequest{Query: "anything"})
	w := httptest.NewRecorder()

	handler.Answer(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.ErrCodeAllProvidersFailed, resp["code"])
}

func TestAnswerHandler_Search_Success(t *testing.T) {
	mockSearch := new(MockSearchService)
	handler := NewAnswerHandler(nil, mockSearch)

	candidates := []*domain.SearchCandidate{
		{
			Chunk:         &domain.Chunk{ID: "c1", SourceURI: "https://docs.example.com/a", Text: "alpha content"},
			CombinedScore: 0.91,
		},
	}
	mockSearch.On("Search", mock.Anything, "alpha", 5).Return(candidates, nil)

	req := postJSON(t, "/search", SearchRequest{Query: "alpha", TopK: 5})
	w := httptest.NewRecorder()

	handler.Search(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	results := data["results"].([]interface{})
	require.Len(t, results, 1)
	first := results[0].(map[string]interface{})
	assert.Equal(t, "c1", first["chunk_id"])
}

func TestAnswerHandler_Search_StoreUnavailable(t *testing.T) {
	mockSearch := new(MockSearchService)
	handler := NewAnswerHandler(nil, mockSearch)

	mockSearch.On("Search", mock.Anything, "alpha", 0).Return(nil, domain.ErrStoreUnavailable)

	req := postJSON(t, "/search", SearchRequest{Query: "alpha"})
	w := httptest.NewRecorder()

	handler.Search(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
