// Package ai provides factory functions for creating AI service adapters.
package ai

import (
	"context"
	"fmt"
	"time"

	geminiembed "github.com/custodia-labs/quire/internal/adapters/driven/embedding/gemini"
	ollamaembed "github.com/custodia-labs/quire/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/quire/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/quire/internal/adapters/driven/embedding/ratelimit"
	"github.com/custodia-labs/quire/internal/adapters/driven/llm/breaker"
	geminillm "github.com/custodia-labs/quire/internal/adapters/driven/llm/gemini"
	ollamallm "github.com/custodia-labs/quire/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/quire/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/quire/internal/core/domain"
	"github.com/custodia-labs/quire/internal/core/ports/driven"
	"github.com/custodia-labs/quire/internal/logger"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// prober is implemented by embedders that can learn their dimensions.
type prober interface {
	Probe(ctx context.Context) error
}

// CreateAndValidateEmbedder creates an embedder, checks the provider is
// reachable and learns the vector size if it is not known.
func CreateAndValidateEmbedder(ctx context.Context, settings *domain.EmbeddingSettings) (driven.Embedder, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, fmt.Errorf("%w: no embedding provider configured", domain.ErrEmbeddingUnavailable)
	}

	svc, err := CreateEmbedder(ctx, settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := svc.Ping(pingCtx); err != nil {
		svc.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w)", domain.ErrEmbeddingUnavailable, err)
	}

	if p, ok := svc.(prober); ok && svc.Dimensions() == 0 {
		if err := p.Probe(pingCtx); err != nil {
			svc.Close()
			return nil, fmt.Errorf("%w: probe dimensions of %s: %w", domain.ErrEmbeddingUnavailable, svc.ModelName(), err)
		}
		logger.Debug("Embedding model %s has %d dimensions", svc.ModelName(), svc.Dimensions())
	}

	return ratelimit.New(svc, settings.RequestsPerSecond), nil
}

// CreateAndValidateGenerator creates a generator and checks the provider is
// reachable. With CircuitBreaker set the generator is wrapped in a breaker.
func CreateAndValidateGenerator(ctx context.Context, settings *domain.LLMSettings) (driven.Generator, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, fmt.Errorf("%w: no LLM provider configured", domain.ErrLLMUnavailable)
	}

	svc, err := CreateGenerator(ctx, settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrLLMUnavailable, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := svc.Ping(pingCtx); err != nil {
		svc.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w)", domain.ErrLLMUnavailable, err)
	}

	if settings.CircuitBreaker {
		return breaker.New(svc, breaker.Settings{}), nil
	}
	return svc, nil
}

// CreateEmbedder creates the embedder for the configured provider.
func CreateEmbedder(ctx context.Context, settings *domain.EmbeddingSettings) (driven.Embedder, error) {
	if settings == nil || !settings.Provider.IsValid() {
		return nil, fmt.Errorf("unsupported embedding provider: %q", providerOf(settings))
	}

	dimensions := settings.Dimensions
	if dimensions == 0 {
		dimensions = domain.EmbeddingDimensions()[settings.Model]
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Dimensions: dimensions,
		}), nil

	case domain.AIProviderOpenAI:
		return openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:     settings.APIKey,
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Dimensions: dimensions,
		})

	case domain.AIProviderGemini:
		return geminiembed.NewEmbeddingService(ctx, geminiembed.Config{
			APIKey:     settings.APIKey,
			Model:      settings.Model,
			Dimensions: dimensions,
			Endpoint:   settings.BaseURL,
		})

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", settings.Provider)
	}
}

// CreateGenerator creates the generator for the configured provider.
func CreateGenerator(ctx context.Context, settings *domain.LLMSettings) (driven.Generator, error) {
	if settings == nil || !settings.Provider.IsValid() {
		var p domain.AIProvider
		if settings != nil {
			p = settings.Provider
		}
		return nil, fmt.Errorf("unsupported LLM provider: %q", p)
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return ollamallm.NewLLMService(ollamallm.LLMConfig{
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
		}), nil

	case domain.AIProviderOpenAI:
		return openaillm.NewLLMService(openaillm.LLMConfig{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
		})

	case domain.AIProviderGemini:
		return geminillm.NewLLMService(ctx, geminillm.LLMConfig{
			APIKey:   settings.APIKey,
			Model:    settings.Model,
			Endpoint: settings.BaseURL,
		})

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", settings.Provider)
	}
}

func providerOf(settings *domain.EmbeddingSettings) domain.AIProvider {
	if settings == nil {
		return ""
	}
	return settings.Provider
}
