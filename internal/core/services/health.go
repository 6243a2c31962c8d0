package services

import (
	"context"

	"github.com/custodia-labs/quire/internal/core/domain"
	"github.com/custodia-labs/quire/internal/core/ports/driven"
	"github.com/custodia-labs/quire/internal/core/ports/driving"
)

// Ensure HealthService implements the interface.
var _ driving.HealthService = (*HealthService)(nil)

// HealthService reports whether the vector store can be queried.
type HealthService struct {
	store driven.VectorStore
}

// NewHealthService creates a health service over store.
func NewHealthService(store driven.VectorStore) *HealthService {
	return &HealthService{store: store}
}

// Health never fails; an unreachable store is reported in the status.
func (s *HealthService) Health(ctx context.Context) domain.HealthStatus {
	if s.store == nil {
		return domain.HealthStatus{Err: domain.ErrStoreUnavailable.Error()}
	}
	if err := s.store.Ping(ctx); err != nil {
		return domain.HealthStatus{Err: err.Error()}
	}
	n, err := s.store.Count(ctx)
	if err != nil {
		return domain.HealthStatus{Err: err.Error()}
	}
	p := s.store.Profile()
	return domain.HealthStatus{
		Reachable:  true,
		Chunks:     n,
		Model:      p.Model,
		Dimensions: p.Dimensions,
	}
}
