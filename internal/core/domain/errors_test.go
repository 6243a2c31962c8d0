package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypedErrors_MatchSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"fetch", &FetchError{URL: "https://a", StatusCode: 500}, ErrFetch},
		{"extraction", &ExtractionError{URL: "https://a", Reason: "empty"}, ErrExtraction},
		{"chunking", &ChunkingError{Reason: "bad"}, ErrChunking},
		{"embedding", &EmbeddingServiceError{Provider: "ollama", Err: errors.New("x")}, ErrEmbeddingService},
		{"dimension", &DimensionMismatchError{Expected: 3, Got: 4}, ErrDimensionMismatch},
		{"generation", &GenerationServiceError{Provider: "openai", Err: errors.New("x")}, ErrGenerationService},
		{"orchestrator", &OrchestratorFailure{Stage: StageGenerated, Err: errors.New("x")}, ErrOrchestratorFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("context: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), false},
		{"deadline", context.DeadlineExceeded, true},
		{"fetch status", &FetchError{URL: "u", StatusCode: 503}, true},
		{"fetch permanent", &FetchError{URL: "u", Permanent: true}, false},
		{"extraction", &ExtractionError{}, false},
		{"chunking", &ChunkingError{}, false},
		{"dimension", &DimensionMismatchError{}, false},
		{"temporary generation", &GenerationServiceError{Temporary: true}, true},
		{"malformed prompt", &GenerationServiceError{StatusCode: 400}, false},
		{"wrapped temporary embedding", fmt.Errorf("batch: %w", &EmbeddingServiceError{Temporary: true}), true},
		{"failure wrapping timeout", &OrchestratorFailure{Err: &GenerationServiceError{Temporary: true}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

func TestIsTemporaryStatus(t *testing.T) {
	assert.True(t, IsTemporaryStatus(429))
	assert.True(t, IsTemporaryStatus(408))
	assert.True(t, IsTemporaryStatus(502))
	assert.False(t, IsTemporaryStatus(400))
	assert.False(t, IsTemporaryStatus(404))
}

func TestFetchError_UnwrapsCause(t *testing.T) {
	err := &FetchError{URL: "https://a", Err: context.DeadlineExceeded}

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "https://a")
}

func TestDimensionMismatchError_Message(t *testing.T) {
	err := &DimensionMismatchError{Expected: 768, Got: 384, ChunkID: "c1"}
	assert.Equal(t, "dimension mismatch for chunk c1: store has 768, got 384", err.Error())
}
