package services

import (
	"context"
	"strings"
	"sync"

	"github.com/custodia-labs/quire/internal/core/domain"
	"github.com/custodia-labs/quire/internal/core/ports/driven"
)

// fakeEmbedder returns deterministic vectors and can be told to fail.
type fakeEmbedder struct {
	mu sync.Mutex

	dims  int
	model string

	// vectorFor overrides the default vector for a text.
	vectorFor func(text string) []float32

	// failTimes makes the first N calls fail with a temporary error.
	failTimes int

	// failContaining makes any batch with a matching text fail permanently.
	failContaining string

	// err is returned by every call when set.
	err error

	calls      int
	batchSizes []int
	texts      []string
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{dims: 4, model: "fake-embed"}
}

func (f *fakeEmbedder) vector(text string) []float32 {
	if f.vectorFor != nil {
		return f.vectorFor(text)
	}
	v := make([]float32, f.dims)
	v[0] = 1
	if f.dims > 1 {
		v[1] = float32(len(text) % 5)
	}
	return v
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.batchSizes = append(f.batchSizes, len(texts))
	f.texts = append(f.texts, texts...)

	if f.err != nil {
		return nil, f.err
	}
	if f.calls <= f.failTimes {
		return nil, &domain.EmbeddingServiceError{Provider: "fake", StatusCode: 503, Temporary: true}
	}
	if f.failContaining != "" {
		for _, t := range texts {
			if strings.Contains(t, f.failContaining) {
				return nil, &domain.EmbeddingServiceError{Provider: "fake", StatusCode: 400}
			}
		}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dims }
func (f *fakeEmbedder) ModelName() string { return f.model }
func (f *fakeEmbedder) Ping(_ context.Context) error { return nil }
func (f *fakeEmbedder) Close() error { return nil }

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeGenerator replays scripted results.
type fakeGenerator struct {
	mu sync.Mutex

	// results are consumed one per call; the last one repeats. A result
	// with block set waits for the call's context to end.
	results []genResult

	calls    int
	messages [][]domain.ChatMessage
}

type genResult struct {
	text  string
	err   error
	block bool
}

func (f *fakeGenerator) next() genResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.results) == 0 {
		return genResult{text: "ok"}
	}
	i := f.calls - 1
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	return f.results[i]
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, _ driven.GenerateOptions) (string, error) {
	return f.Chat(ctx, []domain.ChatMessage{{Role: "user", Content: prompt}}, driven.ChatOptions{})
}

func (f *fakeGenerator) Chat(ctx context.Context, messages []domain.ChatMessage, _ driven.ChatOptions) (string, error) {
	f.mu.Lock()
	f.messages = append(f.messages, messages)
	f.mu.Unlock()

	r := f.next()
	if r.block {
		<-ctx.Done()
		return "", &domain.GenerationServiceError{Provider: "fake", Err: ctx.Err(), Temporary: true}
	}
	return r.text, r.err
}

func (f *fakeGenerator) ModelName() string { return "fake-llm" }
func (f *fakeGenerator) Ping(_ context.Context) error { return nil }
func (f *fakeGenerator) Close() error { return nil }

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeGenerator) lastMessages() []domain.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return nil
	}
	return f.messages[len(f.messages)-1]
}

// fakeChunker fails or returns fixed chunks.
type fakeChunker struct {
	err error
}

func (f *fakeChunker) Chunk(_ *domain.Document) ([]domain.Chunk, error) {
	return nil, f.err
}

// fakeExtractor builds a document from the page body; a body of "bad" fails.
type fakeExtractor struct{}

func (fakeExtractor) Extract(page *domain.RawPage) (*domain.Document, error) {
	if string(page.Content) == "bad" {
		return nil, &domain.ExtractionError{URL: page.URL, Reason: "no content"}
	}
	return &domain.Document{
		ID:        "doc:" + page.URL,
		SourceURL: page.URL,
		Title:     "Title of " + page.URL,
		Category:  "General",
		Text:      string(page.Content),
	}, nil
}

// fakePromptStore returns fixed templates.
type fakePromptStore struct {
	prompts map[string]string
}

func (f *fakePromptStore) Load(name string) (string, error) {
	if p, ok := f.prompts[name]; ok {
		return p, nil
	}
	return "", domain.ErrNotFound
}

func (f *fakePromptStore) Reload() {}
