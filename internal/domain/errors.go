package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration signals invalid user configuration (token bounds, backend settings).
	ErrConfiguration = errors.New("configuration error")
	// ErrDecoding signals an unreadable source document.
	ErrDecoding = errors.New("decoding error")
	// ErrUnknownBackend signals an unregistered vector store backend.
	ErrUnknownBackend = errors.New("unknown vector store backend")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrStoreNotFound signals that no persisted store exists at the requested location.
	ErrStoreNotFound = errors.New("vector store not found")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrLLMProviderError signals a chat completion failure.
	ErrLLMProviderError = errors.New("llm provider error")
)

// ConfigurationError reports an invalid setting with the expected and actual values.
type ConfigurationError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s must be %s, got %s", ErrConfiguration, e.Field, e.Expected, e.Actual)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// DecodingError wraps a failure to read or decode one source file.
type DecodingError struct {
	Path string
	Err  error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrDecoding, e.Path, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *DecodingError) Unwrap() []error { return []error{ErrDecoding, e.Err} }

// UnknownBackendError lists the requested backend and the registered ones.
type UnknownBackendError struct {
	Requested string
	Valid     []string
}

func (e *UnknownBackendError) Error() string {
	return fmt.Sprintf("%s %q (valid: %s)", ErrUnknownBackend, e.Requested, strings.Join(e.Valid, ", "))
}

func (e *UnknownBackendError) Unwrap() error { return ErrUnknownBackend }

// DimensionMismatchError reports an embeddings model whose vector size differs from
// the one persisted in a store.
type DimensionMismatchError struct {
	Expected int // produced by the configured embeddings model
	Actual   int // persisted in the store
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: embeddings model produces %d dimensions, store holds %d",
		ErrVectorDimMismatch, e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrVectorDimMismatch }

// BackendError wraps a transport failure of a vector store backend.
// These are transient: callers may retry with backoff.
type BackendError struct {
	Backend string
	Op      string
	Err     error
}

func (e *BackendError) Error() string { return e.Backend + ": " + e.Op + ": " + e.Err.Error() }
func (e *BackendError) Unwrap() error { return e.Err }
