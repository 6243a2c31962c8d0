package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidConfig indicates settings failed validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrFetch indicates a page could not be fetched.
	ErrFetch = errors.New("fetch failed")

	// ErrExtraction indicates a page could not be turned into a document.
	ErrExtraction = errors.New("extraction failed")

	// ErrChunking indicates a chunker misconfiguration or broken chunk invariant.
	ErrChunking = errors.New("chunking failed")

	// ErrEmbeddingService indicates the embedding provider call failed.
	ErrEmbeddingService = errors.New("embedding service error")

	// ErrDimensionMismatch indicates a vector whose size differs from the store's.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrProfileMismatch indicates the store was built with a different
	// embedding model or dimension than the one configured now.
	ErrProfileMismatch = errors.New("embedding profile mismatch")

	// ErrGenerationService indicates the generation provider call failed.
	ErrGenerationService = errors.New("generation service error")

	// ErrOrchestratorFailure indicates a question could not be answered.
	ErrOrchestratorFailure = errors.New("orchestrator failure")

	// ErrStoreUnavailable indicates the vector store could not be opened or queried.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrLLMUnavailable indicates the generation service is not configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")
)

// FetchError is returned when a URL cannot be fetched.
// Timeouts and non-2xx responses are retryable.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error

	// Permanent marks failures that retrying cannot fix, such as a malformed URL.
	Permanent bool
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error        { return e.Err }
func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// Retryable reports whether another attempt may succeed.
func (e *FetchError) Retryable() bool { return !e.Permanent }

// ExtractionError is reported per document and never aborts a batch.
type ExtractionError struct {
	URL    string
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %s", e.URL, e.Reason)
}

func (e *ExtractionError) Is(target error) bool { return target == ErrExtraction }

// Retryable always returns false.
func (e *ExtractionError) Retryable() bool { return false }

// ChunkingError signals a configuration bug and aborts indexing.
type ChunkingError struct {
	DocumentID string
	Reason     string
}

func (e *ChunkingError) Error() string {
	if e.DocumentID == "" {
		return "chunker: " + e.Reason
	}
	return fmt.Sprintf("chunker: document %s: %s", e.DocumentID, e.Reason)
}

func (e *ChunkingError) Is(target error) bool { return target == ErrChunking }

// Retryable always returns false.
func (e *ChunkingError) Retryable() bool { return false }

// EmbeddingServiceError wraps a failed embedding provider call.
type EmbeddingServiceError struct {
	Provider   string
	StatusCode int
	Err        error
	Temporary  bool
}

func (e *EmbeddingServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s embedding: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s embedding: %v", e.Provider, e.Err)
}

func (e *EmbeddingServiceError) Unwrap() error        { return e.Err }
func (e *EmbeddingServiceError) Is(target error) bool { return target == ErrEmbeddingService }

// Retryable reports whether another attempt may succeed.
func (e *EmbeddingServiceError) Retryable() bool { return e.Temporary }

// DimensionMismatchError is fatal: vectors are never truncated or padded.
type DimensionMismatchError struct {
	Expected int
	Got      int
	ChunkID  string
}

func (e *DimensionMismatchError) Error() string {
	if e.ChunkID != "" {
		return fmt.Sprintf("dimension mismatch for chunk %s: store has %d, got %d", e.ChunkID, e.Expected, e.Got)
	}
	return fmt.Sprintf("dimension mismatch: store has %d, got %d", e.Expected, e.Got)
}

func (e *DimensionMismatchError) Is(target error) bool { return target == ErrDimensionMismatch }

// Retryable always returns false.
func (e *DimensionMismatchError) Retryable() bool { return false }

// GenerationServiceError wraps a failed generation provider call.
type GenerationServiceError struct {
	Provider   string
	StatusCode int
	Err        error
	Temporary  bool
}

func (e *GenerationServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s generation: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s generation: %v", e.Provider, e.Err)
}

func (e *GenerationServiceError) Unwrap() error        { return e.Err }
func (e *GenerationServiceError) Is(target error) bool { return target == ErrGenerationService }

// Retryable reports whether another attempt may succeed.
func (e *GenerationServiceError) Retryable() bool { return e.Temporary }

// OrchestratorFailure means the system could not respond. It is distinct
// from an Answer with OutcomeNoGrounding, which means nothing relevant was found.
type OrchestratorFailure struct {
	// Stage is the state the question failed in.
	Stage Stage

	// Completed lists the stages reached before the failure.
	Completed []Stage

	Err error
}

func (e *OrchestratorFailure) Error() string {
	return fmt.Sprintf("answer failed at %s: %v", e.Stage, e.Err)
}

func (e *OrchestratorFailure) Unwrap() error        { return e.Err }
func (e *OrchestratorFailure) Is(target error) bool { return target == ErrOrchestratorFailure }

// Retryable reports whether asking again may succeed.
func (e *OrchestratorFailure) Retryable() bool { return IsRetryable(e.Err) }

// IsRetryable reports whether err is a transient failure.
// Errors that do not say otherwise are treated as permanent, except deadline
// expiry which is always transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsTemporaryStatus reports whether an HTTP status is worth retrying.
func IsTemporaryStatus(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusRequestTimeout ||
		code >= http.StatusInternalServerError
}
