package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundline/groundline/internal/domain"
)

func TestDomainErrorToHTTP(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", domain.ErrEmptyQuery, http.StatusBadRequest},
		{"not found", domain.ErrChunkNotFound, http.StatusNotFound},
		{"store unavailable", domain.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{"provider config", domain.NewDomainError(domain.ErrCodeProviderConfig, "bad key"), http.StatusServiceUnavailable},
		{"embedding failed", domain.ErrEmbeddingFailed, http.StatusBadGateway},
		{"all providers failed", &domain.AllProvidersFailedError{}, http.StatusBadGateway},
		{"approval rejected", domain.NewDomainError(domain.ErrCodeApprovalRejected, "rejected"), http.StatusForbidden},
		{"budget invariant", domain.ErrTokenBudgetExceeded, http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
		{"wrapped domain error", fmt.Errorf("context: %w", domain.ErrDocumentNotFound), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, DomainErrorToHTTP(tt.err))
		})
	}
}

func TestHandleError_DomainErrorBody(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleError(rec, domain.ErrEmptyQuery)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "query text is empty", body.Error)
	assert.Equal(t, domain.ErrCodeValidation, body.Code)
}

func TestHandleError_AllProvidersFailedCarriesCode(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleError(rec, &domain.AllProvidersFailedError{
		Attempts: []domain.ProviderAttempt{{ProviderID: "openai", ModelID: "gpt-4o-mini", Err: errors.New("quota")}},
	})

	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.ErrCodeAllProvidersFailed, body.Code)
}

func TestSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	Success(rec, http.StatusOK, map[string]string{"answer": "yes"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body SuccessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	data, ok := body.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "yes", data["answer"])
}
