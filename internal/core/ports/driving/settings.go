package driving

import "github.com/custodia-labs/quire/internal/core/domain"

// SettingsService resolves application settings from the environment,
// the config file and built-in defaults, in that order.
type SettingsService interface {
	// Get resolves the current settings. Malformed values are errors;
	// semantic validation is left to Validate.
	Get() (*domain.Settings, error)

	// Set parses value for the dotted key and persists it.
	Set(key, value string) error

	// Keys lists every recognised setting key in display order.
	Keys() []string

	// Lookup returns the resolved value of key formatted for display and
	// where it came from ("env", "file" or "default").
	Lookup(key string) (value, source string, err error)

	// Validate checks the resolved settings.
	Validate() error

	// GetDefaults returns default settings.
	GetDefaults() domain.Settings

	// ValidateEmbeddingConfig pings the configured embedding provider.
	ValidateEmbeddingConfig() error

	// ValidateLLMConfig pings the configured LLM provider.
	ValidateLLMConfig() error
}
