package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput signals malformed input to a clustering or retrieval call.
	ErrInvalidInput = errors.New("invalid input")
	// ErrVectorDimMismatch signals vectors of different dimensionality inside one call.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrCollaboratorUnavailable signals that an embedder, store or summarizer could not serve a call.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	// ErrSummarizationFailed signals a summarizer failure.
	ErrSummarizationFailed = errors.New("summarization failed")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrKeywordSearchNotSupported signals that the backend lacks keyword search.
	ErrKeywordSearchNotSupported = errors.New("keyword search not supported by backend")
)

// InvalidInputError wraps ErrInvalidInput with the offending field and value.
type InvalidInputError struct {
	Field string
	Value any
	Err   error
}

func (e *InvalidInputError) Error() string {
	msg := fmt.Sprintf("%s: %s=%v", ErrInvalidInput.Error(), e.Field, e.Value)
	if e.Err != nil && !errors.Is(e.Err, ErrInvalidInput) {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *InvalidInputError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidInput}
	}
	return []error{ErrInvalidInput, e.Err}
}

// NewInvalidInput creates an invalid input error for field with the given value.
func NewInvalidInput(field string, value any) error {
	return &InvalidInputError{Field: field, Value: value}
}

// NewDimMismatch reports a dimensionality mismatch at index i.
func NewDimMismatch(i, want, got int) error {
	return &InvalidInputError{
		Field: fmt.Sprintf("vector[%d]", i),
		Value: fmt.Sprintf("dim %d (want %d)", got, want),
		Err:   ErrVectorDimMismatch,
	}
}
