package domain

import (
	"errors"
	"fmt"
	"time"
)

const unknownDescription = "Unknown"

// AIProvider identifies an embedding or generation backend.
type AIProvider string

// Supported AI providers.
const (
	// AIProviderOllama runs models locally through Ollama.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI uses the OpenAI API or a compatible endpoint.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderGemini uses the Google Gemini API.
	AIProviderGemini AIProvider = "gemini"
)

// IsValid returns true if the provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderGemini:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderGemini
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderGemini:
		return "Google Gemini (cloud)"
	default:
		return unknownDescription
	}
}

// ChunkUnit is what chunk budgets are counted in.
type ChunkUnit string

const (
	// ChunkUnitCharacters counts Unicode code points.
	ChunkUnitCharacters ChunkUnit = "characters"

	// ChunkUnitTokens counts whitespace-delimited words.
	ChunkUnitTokens ChunkUnit = "tokens"
)

// IsValid returns true if the unit is recognised.
func (u ChunkUnit) IsValid() bool {
	return u == ChunkUnitCharacters || u == ChunkUnitTokens
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint (for Ollama and OpenAI-compatible servers).
	BaseURL string

	// APIKey is the API key (for OpenAI and Gemini).
	APIKey string

	// Dimensions overrides the known dimension of Model.
	Dimensions int

	// RequestsPerSecond throttles embedding calls; 0 disables throttling.
	RequestsPerSecond float64
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// LLMSettings holds generation provider configuration.
type LLMSettings struct {
	// Provider is the LLM service provider.
	Provider AIProvider

	// Model is the LLM model name.
	Model string

	// BaseURL is the API endpoint (for Ollama and OpenAI-compatible servers).
	BaseURL string

	// APIKey is the API key (for OpenAI and Gemini).
	APIKey string

	// Temperature controls randomness of answers.
	Temperature float64

	// MaxTokens caps the length of an answer.
	MaxTokens int

	// Timeout bounds a single generation attempt.
	Timeout time.Duration

	// CircuitBreaker wraps the provider in a circuit breaker when set.
	CircuitBreaker bool
}

// IsConfigured returns true if the LLM provider is set up.
func (l LLMSettings) IsConfigured() bool {
	if !l.Provider.IsValid() {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return true
}

// ChunkSettings configures the chunker.
type ChunkSettings struct {
	// Size is the maximum chunk length in Unit.
	Size int

	// Overlap is the number of Units shared by adjacent chunks.
	Overlap int

	// Unit is what Size and Overlap count.
	Unit ChunkUnit
}

// Validate checks the chunk budget.
func (c ChunkSettings) Validate() error {
	switch {
	case c.Size <= 0:
		return fmt.Errorf("chunk size must be positive, got %d", c.Size)
	case c.Overlap < 0:
		return fmt.Errorf("chunk overlap must not be negative, got %d", c.Overlap)
	case c.Overlap >= c.Size:
		return fmt.Errorf("chunk overlap %d must be smaller than size %d", c.Overlap, c.Size)
	case !c.Unit.IsValid():
		return fmt.Errorf("unknown chunk unit %q", c.Unit)
	}
	return nil
}

// CrawlSettings configures the crawler.
type CrawlSettings struct {
	// SitemapURL is the root sitemap to enumerate.
	SitemapURL string

	// Concurrency is the number of parallel fetch workers.
	Concurrency int

	// RequestsPerSecond throttles fetches across all workers; 0 disables throttling.
	RequestsPerSecond float64

	// Timeout bounds a single fetch.
	Timeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string

	// MaxSitemapDepth limits how deep sitemap indexes are followed.
	MaxSitemapDepth int

	// Refresh refetches pages that are already stored.
	Refresh bool
}

// IndexSettings configures embedding during indexing.
type IndexSettings struct {
	// BatchSize is the number of chunks sent per embedding call.
	BatchSize int

	// Workers is the number of embedding batches in flight.
	Workers int
}

// RetrySettings is the shared backoff schedule for network calls.
type RetrySettings struct {
	// MaxAttempts includes the first attempt.
	MaxAttempts int

	// InitialInterval is the wait before the first retry.
	InitialInterval time.Duration

	// MaxInterval caps the wait between retries.
	MaxInterval time.Duration
}

// AnswerSettings configures retrieval and context assembly.
type AnswerSettings struct {
	// TopK is the number of chunks retrieved per question.
	TopK int

	// MaxChunksPerSource caps hits from a single URL; 0 disables the cap.
	MaxChunksPerSource int

	// MinSimilarity is an advisory relevance floor. Hits below it are
	// flagged but never removed.
	MinSimilarity float64

	// MaxContextChars is the generation context budget.
	MaxContextChars int

	// HistoryTurns is how many previous chat messages are sent to the model.
	HistoryTurns int

	// NoGroundingMessage is returned when nothing relevant was retrieved.
	NoGroundingMessage string
}

// ServerSettings configures the HTTP API.
type ServerSettings struct {
	// Addr is the listen address.
	Addr string

	// CORSOrigins lists allowed browser origins; empty allows none.
	CORSOrigins []string

	// ReindexEvery schedules a crawl and index run; 0 disables it.
	ReindexEvery time.Duration
}

// LogSettings configures the logger.
type LogSettings struct {
	// Format is "text" or "json".
	Format string

	// Verbose enables debug and info output.
	Verbose bool
}

// TelemetrySettings configures OpenTelemetry export.
type TelemetrySettings struct {
	// OTLPEndpoint is the collector's gRPC address; empty disables export.
	OTLPEndpoint string

	// Insecure disables TLS to the collector.
	Insecure bool

	// SampleRatio is the fraction of traces kept, between 0 and 1.
	SampleRatio float64
}

// Settings holds all application settings.
type Settings struct {
	// DataDir holds the database and prompt files.
	DataDir string

	Embedding EmbeddingSettings
	LLM       LLMSettings
	Chunk     ChunkSettings
	Crawl     CrawlSettings
	Index     IndexSettings
	Retry     RetrySettings
	Answer    AnswerSettings
	Server    ServerSettings
	Log       LogSettings
	Telemetry TelemetrySettings
}

// DefaultNoGroundingMessage is returned when retrieval finds nothing.
const DefaultNoGroundingMessage = "I couldn't find any relevant information in the indexed content to answer that question."

// DefaultSettings returns settings with sensible defaults.
// Both AI providers default to a local Ollama install.
func DefaultSettings() Settings {
	return Settings{
		Embedding: EmbeddingSettings{
			Provider: AIProviderOllama,
			Model:    "nomic-embed-text",
		},
		LLM: LLMSettings{
			Provider:    AIProviderOllama,
			Model:       "llama3.2",
			Temperature: 0.3,
			MaxTokens:   4096,
			Timeout:     60 * time.Second,
		},
		Chunk: ChunkSettings{
			Size:    800,
			Overlap: 200,
			Unit:    ChunkUnitCharacters,
		},
		Crawl: CrawlSettings{
			Concurrency:       5,
			RequestsPerSecond: 5,
			Timeout:           30 * time.Second,
			UserAgent:         "quire-bot/0.1 (research)",
			MaxSitemapDepth:   3,
		},
		Index: IndexSettings{
			BatchSize: 64,
			Workers:   2,
		},
		Retry: RetrySettings{
			MaxAttempts:     3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     10 * time.Second,
		},
		Answer: AnswerSettings{
			TopK:               6,
			MaxChunksPerSource: 2,
			MaxContextChars:    12000,
			HistoryTurns:       6,
			NoGroundingMessage: DefaultNoGroundingMessage,
		},
		Server: ServerSettings{
			Addr: ":8080",
		},
		Log: LogSettings{
			Format: "text",
		},
		Telemetry: TelemetrySettings{
			Insecure:    true,
			SampleRatio: 1,
		},
	}
}

// Validate reports every invalid setting at once.
func (s Settings) Validate() error {
	var errs []error

	if err := s.Chunk.Validate(); err != nil {
		errs = append(errs, err)
	}
	if !s.Embedding.Provider.IsValid() {
		errs = append(errs, fmt.Errorf("unknown embedding provider %q", s.Embedding.Provider))
	} else if !s.Embedding.IsConfigured() {
		errs = append(errs, fmt.Errorf("embedding provider %s requires an API key", s.Embedding.Provider))
	}
	if !s.LLM.Provider.IsValid() {
		errs = append(errs, fmt.Errorf("unknown LLM provider %q", s.LLM.Provider))
	} else if !s.LLM.IsConfigured() {
		errs = append(errs, fmt.Errorf("LLM provider %s requires an API key", s.LLM.Provider))
	}
	if s.Crawl.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("crawl concurrency must be positive, got %d", s.Crawl.Concurrency))
	}
	if s.Index.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("index batch size must be positive, got %d", s.Index.BatchSize))
	}
	if s.Index.Workers <= 0 {
		errs = append(errs, fmt.Errorf("index workers must be positive, got %d", s.Index.Workers))
	}
	if s.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry attempts must be at least 1, got %d", s.Retry.MaxAttempts))
	}
	if s.Answer.TopK <= 0 {
		errs = append(errs, fmt.Errorf("top_k must be positive, got %d", s.Answer.TopK))
	}
	if s.Answer.MaxContextChars <= 0 {
		errs = append(errs, fmt.Errorf("max context chars must be positive, got %d", s.Answer.MaxContextChars))
	}

	if s.Log.Format != "text" && s.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log format must be text or json, got %q", s.Log.Format))
	}
	if s.Telemetry.SampleRatio < 0 || s.Telemetry.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("telemetry sample ratio must be between 0 and 1, got %g", s.Telemetry.SampleRatio))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
		// Gemini models
		"text-embedding-004": 768,
		"embedding-001":      768,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
		AIProviderGemini: "text-embedding-004",
	}
}

// DefaultLLMModels returns default models for each LLM provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "llama3.2",
		AIProviderOpenAI: "gpt-4o-mini",
		AIProviderGemini: "gemini-2.0-flash",
	}
}
