package mcp

import (
	"context"

	"github.com/custodia-labs/quire/internal/core/domain"
)

// mockAnswerService is a mock implementation of driving.AnswerService.
type mockAnswerService struct {
	answer   *domain.Answer
	err      error
	question string
	history  []domain.ChatMessage
}

func (m *mockAnswerService) Answer(ctx context.Context, question string) (*domain.Answer, error) {
	return m.AnswerWithHistory(ctx, question, nil)
}

func (m *mockAnswerService) AnswerWithHistory(
	_ context.Context,
	question string,
	history []domain.ChatMessage,
) (*domain.Answer, error) {
	m.question = question
	m.history = history
	return m.answer, m.err
}

// mockHealthService is a mock implementation of driving.HealthService.
type mockHealthService struct {
	status domain.HealthStatus
}

func (m *mockHealthService) Health(_ context.Context) domain.HealthStatus {
	return m.status
}
