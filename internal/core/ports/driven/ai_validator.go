package driven

import "github.com/custodia-labs/quire/internal/core/domain"

// AIConfigValidator checks that the embedding and generation providers
// named in settings answer before quire commits to them.
// A nil or unconfigured section passes.
type AIConfigValidator interface {
	ValidateEmbedding(config *domain.EmbeddingSettings) error
	ValidateLLM(config *domain.LLMSettings) error
}
