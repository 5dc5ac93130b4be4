package domain

import "fmt"

// DomainError represents an engine-level error with a stable code.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{Code: code, Message: message, Err: err}
}

// Error codes for the query pipeline
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeStoreUnavailable    = "STORE_UNAVAILABLE"
	ErrCodeEmbeddingFailed     = "EMBEDDING_FAILED"
	ErrCodeAllProvidersFailed  = "ALL_PROVIDERS_FAILED"
	ErrCodeNoGrounding         = "NO_GROUNDING"
	ErrCodeCitationIntegrity   = "CITATION_INTEGRITY"
	ErrCodeTokenBudgetExceeded = "TOKEN_BUDGET_EXCEEDED"
	ErrCodeProviderConfig      = "PROVIDER_CONFIG"
	ErrCodeApprovalRejected    = "APPROVAL_REJECTED"
	ErrCodeInternalError       = "INTERNAL_ERROR"
)

// Pipeline-fatal errors
var (
	// ErrStoreUnavailable means the chunk store is unreachable. Callers fail
	// fast; they never fall back to stale data.
	ErrStoreUnavailable = NewDomainError(ErrCodeStoreUnavailable, "chunk store unavailable")

	// ErrNoGrounding means the assembled context was empty: either nothing
	// matched or no matching chunk fit the token budget.
	ErrNoGrounding = NewDomainError(ErrCodeNoGrounding, "no relevant content found")

	// ErrTokenBudgetExceeded indicates a broken assembler invariant. It is
	// never expected at runtime and is logged loudly when observed.
	ErrTokenBudgetExceeded = NewDomainError(ErrCodeTokenBudgetExceeded, "assembled context exceeds token budget")
)

// Stage-local recoverable errors
var (
	// ErrEmbeddingFailed degrades hybrid search to lexical-only.
	ErrEmbeddingFailed = NewDomainError(ErrCodeEmbeddingFailed, "embedding generation failed")

	// ErrCitationIntegrity marks a generated citation that references a chunk
	// outside the assembled context. Logged, never surfaced to the caller.
	ErrCitationIntegrity = NewDomainError(ErrCodeCitationIntegrity, "citation references chunk outside assembled context")
)

// Validation errors
var (
	ErrEmptyQuery        = NewDomainError(ErrCodeValidation, "query text is empty")
	ErrInvalidChunk      = NewDomainError(ErrCodeValidation, "chunk failed validation")
	ErrInvalidBudget     = NewDomainError(ErrCodeValidation, "token budget must be positive")
	ErrModelVersionMixed = NewDomainError(ErrCodeValidation, "embeddings from different model versions cannot be compared")
)

// Not found errors
var (
	ErrChunkNotFound    = NewDomainError(ErrCodeNotFound, "chunk not found")
	ErrDocumentNotFound = NewDomainError(ErrCodeNotFound, "document not found")
)

// ProviderAttempt records one failed provider call inside a fallback chain.
type ProviderAttempt struct {
	ProviderID string
	ModelID    string
	Err        error
}

// AllProvidersFailedError is returned when the fallback chain is exhausted.
// It carries every intermediate failure for diagnostics.
type AllProvidersFailedError struct {
	Attempts []ProviderAttempt
}

func (e *AllProvidersFailedError) Error() string {
	return fmt.Sprintf("[%s] all providers failed (%d attempts)", ErrCodeAllProvidersFailed, len(e.Attempts))
}

// Code returns the stable error code so HTTP mapping can treat this like a
// DomainError without flattening the attempt list.
func (e *AllProvidersFailedError) Code() string {
	return ErrCodeAllProvidersFailed
}
