package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies a provider failure for retry/fallback decisions.
type ErrorKind string

const (
	// KindTimeout and KindRateLimited are transient: retried with backoff
	// before the chain advances.
	KindTimeout     ErrorKind = "timeout"
	KindRateLimited ErrorKind = "rate_limited"

	// KindAuth is a provider-config failure: the provider enters cool-down
	// and is skipped for subsequent requests.
	KindAuth ErrorKind = "auth"

	// KindBadRequest and KindInvalidResponse advance the chain immediately.
	KindBadRequest      ErrorKind = "bad_request"
	KindInvalidResponse ErrorKind = "invalid_response"

	KindUnavailable ErrorKind = "unavailable"
)

// Error wraps a backend failure with its classification.
type Error struct {
	Kind       ErrorKind
	ProviderID string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.ProviderID, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure should be retried on the same
// provider before falling back.
func (e *Error) Transient() bool {
	return e.Kind == KindTimeout || e.Kind == KindRateLimited
}

func newError(kind ErrorKind, providerID string, err error) *Error {
	return &Error{Kind: kind, ProviderID: providerID, Err: err}
}

// classifyStatus maps an HTTP status from a provider API to an ErrorKind.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 429:
		return KindRateLimited
	case status == 408 || status == 504:
		return KindTimeout
	case status >= 500:
		return KindUnavailable
	default:
		return KindBadRequest
	}
}

// classifyTransport covers failures that never produced an HTTP status.
func classifyTransport(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindUnavailable
}

// AsError extracts a classified *Error, or wraps err as unavailable.
func AsError(providerID string, err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	return newError(classifyTransport(err), providerID, err)
}
