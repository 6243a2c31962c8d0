package ai

import (
	"context"
	"time"

	"github.com/custodia-labs/quire/internal/core/domain"
	"github.com/custodia-labs/quire/internal/core/ports/driven"
)

var _ driven.AIConfigValidator = (*ConfigValidator)(nil)

// ConfigValidator builds a throwaway client for a settings section and pings
// it. Sections that are nil or unconfigured pass without a network call.
type ConfigValidator struct {
	timeout time.Duration
}

// NewConfigValidator returns a validator that waits up to the default ping
// timeout for each provider.
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{timeout: pingTimeout}
}

// WithTimeout returns a copy bounded by d. Non-positive d keeps the default.
func (v *ConfigValidator) WithTimeout(d time.Duration) *ConfigValidator {
	if d <= 0 {
		d = pingTimeout
	}
	return &ConfigValidator{timeout: d}
}

func (v *ConfigValidator) ValidateEmbedding(config *domain.EmbeddingSettings) error {
	return validateEmbedding(v.timeout, config)
}

func (v *ConfigValidator) ValidateLLM(config *domain.LLMSettings) error {
	return validateLLM(v.timeout, config)
}

// ValidateEmbeddingConfig pings the embedding provider in settings.
func ValidateEmbeddingConfig(settings *domain.EmbeddingSettings) error {
	return validateEmbedding(pingTimeout, settings)
}

// ValidateLLMConfig pings the generation provider in settings.
func ValidateLLMConfig(settings *domain.LLMSettings) error {
	return validateLLM(pingTimeout, settings)
}

func validateEmbedding(timeout time.Duration, settings *domain.EmbeddingSettings) error {
	if settings == nil || !settings.IsConfigured() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	svc, err := CreateEmbedder(ctx, settings)
	if err != nil {
		return err
	}
	defer svc.Close()
	return svc.Ping(ctx)
}

func validateLLM(timeout time.Duration, settings *domain.LLMSettings) error {
	if settings == nil || !settings.IsConfigured() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	svc, err := CreateGenerator(ctx, settings)
	if err != nil {
		return err
	}
	defer svc.Close()
	return svc.Ping(ctx)
}
