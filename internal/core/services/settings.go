package services

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/quire/internal/core/domain"
	"github.com/custodia-labs/quire/internal/core/ports/driven"
	"github.com/custodia-labs/quire/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// EnvPrefix prefixes environment overrides: llm.api_key reads QUIRE_LLM_API_KEY.
const EnvPrefix = "QUIRE_"

// Setting sources reported by Lookup.
const (
	SourceEnv     = "env"
	SourceFile    = "file"
	SourceDefault = "default"
)

// providerKeyEnv holds the conventional API key variables used when no
// quire-specific key is configured.
var providerKeyEnv = map[domain.AIProvider]string{
	domain.AIProviderOpenAI: "OPENAI_API_KEY",
	domain.AIProviderGemini: "GEMINI_API_KEY",
}

// settingField binds a dotted config key to a field of domain.Settings.
type settingField struct {
	key    string
	secret bool
	field  func(*domain.Settings) any
}

//nolint:gosec // G101: key names, not credentials.
var settingFields = []settingField{
	{key: "data_dir", field: func(s *domain.Settings) any { return &s.DataDir }},

	{key: "embedding.provider", field: func(s *domain.Settings) any { return &s.Embedding.Provider }},
	{key: "embedding.model", field: func(s *domain.Settings) any { return &s.Embedding.Model }},
	{key: "embedding.base_url", field: func(s *domain.Settings) any { return &s.Embedding.BaseURL }},
	{key: "embedding.api_key", secret: true, field: func(s *domain.Settings) any { return &s.Embedding.APIKey }},
	{key: "embedding.dimensions", field: func(s *domain.Settings) any { return &s.Embedding.Dimensions }},
	{key: "embedding.requests_per_second", field: func(s *domain.Settings) any { return &s.Embedding.RequestsPerSecond }},

	{key: "llm.provider", field: func(s *domain.Settings) any { return &s.LLM.Provider }},
	{key: "llm.model", field: func(s *domain.Settings) any { return &s.LLM.Model }},
	{key: "llm.base_url", field: func(s *domain.Settings) any { return &s.LLM.BaseURL }},
	{key: "llm.api_key", secret: true, field: func(s *domain.Settings) any { return &s.LLM.APIKey }},
	{key: "llm.temperature", field: func(s *domain.Settings) any { return &s.LLM.Temperature }},
	{key: "llm.max_tokens", field: func(s *domain.Settings) any { return &s.LLM.MaxTokens }},
	{key: "llm.timeout", field: func(s *domain.Settings) any { return &s.LLM.Timeout }},
	{key: "llm.circuit_breaker", field: func(s *domain.Settings) any { return &s.LLM.CircuitBreaker }},

	{key: "chunk.size", field: func(s *domain.Settings) any { return &s.Chunk.Size }},
	{key: "chunk.overlap", field: func(s *domain.Settings) any { return &s.Chunk.Overlap }},
	{key: "chunk.unit", field: func(s *domain.Settings) any { return &s.Chunk.Unit }},

	{key: "crawl.sitemap_url", field: func(s *domain.Settings) any { return &s.Crawl.SitemapURL }},
	{key: "crawl.concurrency", field: func(s *domain.Settings) any { return &s.Crawl.Concurrency }},
	{key: "crawl.requests_per_second", field: func(s *domain.Settings) any { return &s.Crawl.RequestsPerSecond }},
	{key: "crawl.timeout", field: func(s *domain.Settings) any { return &s.Crawl.Timeout }},
	{key: "crawl.user_agent", field: func(s *domain.Settings) any { return &s.Crawl.UserAgent }},
	{key: "crawl.max_sitemap_depth", field: func(s *domain.Settings) any { return &s.Crawl.MaxSitemapDepth }},

	{key: "index.batch_size", field: func(s *domain.Settings) any { return &s.Index.BatchSize }},
	{key: "index.workers", field: func(s *domain.Settings) any { return &s.Index.Workers }},

	{key: "retry.max_attempts", field: func(s *domain.Settings) any { return &s.Retry.MaxAttempts }},
	{key: "retry.initial_interval", field: func(s *domain.Settings) any { return &s.Retry.InitialInterval }},
	{key: "retry.max_interval", field: func(s *domain.Settings) any { return &s.Retry.MaxInterval }},

	{key: "answer.top_k", field: func(s *domain.Settings) any { return &s.Answer.TopK }},
	{key: "answer.max_chunks_per_source", field: func(s *domain.Settings) any { return &s.Answer.MaxChunksPerSource }},
	{key: "answer.min_similarity", field: func(s *domain.Settings) any { return &s.Answer.MinSimilarity }},
	{key: "answer.max_context_chars", field: func(s *domain.Settings) any { return &s.Answer.MaxContextChars }},
	{key: "answer.history_turns", field: func(s *domain.Settings) any { return &s.Answer.HistoryTurns }},
	{key: "answer.no_grounding_message", field: func(s *domain.Settings) any { return &s.Answer.NoGroundingMessage }},

	{key: "server.addr", field: func(s *domain.Settings) any { return &s.Server.Addr }},
	{key: "server.cors_origins", field: func(s *domain.Settings) any { return &s.Server.CORSOrigins }},
	{key: "server.reindex_every", field: func(s *domain.Settings) any { return &s.Server.ReindexEvery }},

	{key: "log.format", field: func(s *domain.Settings) any { return &s.Log.Format }},
	{key: "log.verbose", field: func(s *domain.Settings) any { return &s.Log.Verbose }},

	{key: "telemetry.otlp_endpoint", field: func(s *domain.Settings) any { return &s.Telemetry.OTLPEndpoint }},
	{key: "telemetry.insecure", field: func(s *domain.Settings) any { return &s.Telemetry.Insecure }},
	{key: "telemetry.sample_ratio", field: func(s *domain.Settings) any { return &s.Telemetry.SampleRatio }},
}

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore, aiValidator driven.AIConfigValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
	}
}

// Get resolves every setting: environment first, then the config file,
// then the built-in default.
func (s *SettingsService) Get() (*domain.Settings, error) {
	settings := domain.DefaultSettings()

	var errs []error
	for _, f := range settingFields {
		if _, err := s.resolve(&settings, f); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidConfig, errors.Join(errs...))
	}

	if settings.Embedding.APIKey == "" {
		settings.Embedding.APIKey = providerKey(settings.Embedding.Provider)
	}
	if settings.LLM.APIKey == "" {
		settings.LLM.APIKey = providerKey(settings.LLM.Provider)
	}
	if settings.DataDir == "" {
		settings.DataDir = defaultDataDir()
	}

	return &settings, nil
}

// Set parses value for key and persists it to the config file.
func (s *SettingsService) Set(key, value string) error {
	f, ok := lookupField(key)
	if !ok {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}

	var scratch domain.Settings
	target := f.field(&scratch)
	if err := parseInto(target, value); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrInvalidInput, key, err)
	}

	switch v := target.(type) {
	case *domain.AIProvider:
		if !v.IsValid() {
			return fmt.Errorf("%w: unknown provider %q", domain.ErrInvalidInput, value)
		}
	case *domain.ChunkUnit:
		if !v.IsValid() {
			return fmt.Errorf("%w: unknown chunk unit %q", domain.ErrInvalidInput, value)
		}
	}

	if err := s.configStore.Set(key, storeValue(target)); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Keys lists every recognised setting key.
func (s *SettingsService) Keys() []string {
	keys := make([]string, len(settingFields))
	for i, f := range settingFields {
		keys[i] = f.key
	}
	return keys
}

// Lookup returns the resolved value of key for display. Secrets are masked.
func (s *SettingsService) Lookup(key string) (value, source string, err error) {
	f, ok := lookupField(key)
	if !ok {
		return "", "", fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}

	settings := domain.DefaultSettings()
	source, err = s.resolve(&settings, f)
	if err != nil {
		return "", "", err
	}

	value = formatValue(f.field(&settings))
	if f.secret && value != "" {
		value = "********"
	}
	return value, source, nil
}

// Validate checks the resolved settings.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return settings.Validate()
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.Settings {
	return domain.DefaultSettings()
}

// ValidateEmbeddingConfig validates the current embedding configuration by pinging the provider.
func (s *SettingsService) ValidateEmbeddingConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateEmbedding(&settings.Embedding)
}

// ValidateLLMConfig validates the current LLM configuration by pinging the provider.
func (s *SettingsService) ValidateLLMConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateLLM(&settings.LLM)
}

// resolve writes the winning value for f into settings and reports its source.
func (s *SettingsService) resolve(settings *domain.Settings, f settingField) (string, error) {
	target := f.field(settings)

	if raw, ok := os.LookupEnv(EnvName(f.key)); ok && raw != "" {
		if err := parseInto(target, raw); err != nil {
			return "", fmt.Errorf("%s: %w", EnvName(f.key), err)
		}
		return SourceEnv, nil
	}

	if raw, ok := s.configStore.Get(f.key); ok {
		if err := assignStored(target, raw); err != nil {
			return "", fmt.Errorf("%s: %w", f.key, err)
		}
		return SourceFile, nil
	}

	return SourceDefault, nil
}

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func lookupField(key string) (settingField, bool) {
	for _, f := range settingFields {
		if f.key == key {
			return f, true
		}
	}
	return settingField{}, false
}

func providerKey(p domain.AIProvider) string {
	if name, ok := providerKeyEnv[p]; ok {
		return os.Getenv(name)
	}
	return ""
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".quire"
	}
	return filepath.Join(home, ".quire")
}

// parseInto parses text into the field target points at.
func parseInto(target any, text string) error {
	text = strings.TrimSpace(text)

	switch v := target.(type) {
	case *string:
		*v = text
	case *domain.AIProvider:
		*v = domain.AIProvider(strings.ToLower(text))
	case *domain.ChunkUnit:
		*v = domain.ChunkUnit(strings.ToLower(text))
	case *int:
		n, err := strconv.Atoi(text)
		if err != nil {
			return fmt.Errorf("not an integer: %q", text)
		}
		*v = n
	case *float64:
		n, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", text)
		}
		*v = n
	case *bool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return fmt.Errorf("not a boolean: %q", text)
		}
		*v = b
	case *time.Duration:
		d, err := parseDuration(text)
		if err != nil {
			return err
		}
		*v = d
	case *[]string:
		*v = splitList(text)
	default:
		return fmt.Errorf("unsupported setting type %T", target)
	}
	return nil
}

// assignStored copies a value decoded from the config file into target.
func assignStored(target any, raw any) error {
	switch v := raw.(type) {
	case string:
		return parseInto(target, v)
	case []string:
		if list, ok := target.(*[]string); ok {
			*list = v
			return nil
		}
	case []any:
		if list, ok := target.(*[]string); ok {
			out := make([]string, 0, len(v))
			for _, item := range v {
				out = append(out, fmt.Sprint(item))
			}
			*list = out
			return nil
		}
	case float64:
		if n, ok := target.(*float64); ok {
			*n = v
			return nil
		}
	}
	return parseInto(target, fmt.Sprint(raw))
}

// parseDuration accepts Go duration strings and bare integers as seconds.
func parseDuration(text string) (time.Duration, error) {
	if n, err := strconv.Atoi(text); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(text)
	if err != nil {
		return 0, fmt.Errorf("not a duration: %q", text)
	}
	return d, nil
}

func splitList(text string) []string {
	var out []string
	for _, part := range strings.Split(text, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// storeValue converts a parsed field into the value written to TOML.
func storeValue(target any) any {
	switch v := target.(type) {
	case *string:
		return *v
	case *domain.AIProvider:
		return string(*v)
	case *domain.ChunkUnit:
		return string(*v)
	case *int:
		return *v
	case *float64:
		return *v
	case *bool:
		return *v
	case *time.Duration:
		return v.String()
	case *[]string:
		return *v
	default:
		return nil
	}
}

func formatValue(target any) string {
	switch v := target.(type) {
	case *string:
		return *v
	case *domain.AIProvider:
		return string(*v)
	case *domain.ChunkUnit:
		return string(*v)
	case *int:
		return strconv.Itoa(*v)
	case *float64:
		return strconv.FormatFloat(*v, 'g', -1, 64)
	case *bool:
		return strconv.FormatBool(*v)
	case *time.Duration:
		return v.String()
	case *[]string:
		return strings.Join(*v, ",")
	default:
		return ""
	}
}
