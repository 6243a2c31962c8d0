package driving

import (
	"context"

	"github.com/custodia-labs/quire/internal/core/domain"
)

// AnswerService answers questions from the indexed content.
//
// The result is exactly one of: a grounded Answer, an Answer with
// OutcomeNoGrounding, or a *domain.OrchestratorFailure error.
type AnswerService interface {
	// Answer answers a single question.
	Answer(ctx context.Context, question string) (*domain.Answer, error)

	// AnswerWithHistory answers a question in the context of earlier turns.
	AnswerWithHistory(ctx context.Context, question string, history []domain.ChatMessage) (*domain.Answer, error)
}

// HealthService reports store liveness.
type HealthService interface {
	Health(ctx context.Context) domain.HealthStatus
}
