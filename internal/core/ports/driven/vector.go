package driven

import (
	"context"

	"github.com/custodia-labs/quire/internal/core/domain"
)

// VectorStore persists embedding records and answers cosine top-k queries.
// One instance is shared by indexing and querying; it must be safe for
// concurrent upserts and reads.
type VectorStore interface {
	// Upsert inserts or replaces records keyed by chunk ID. A vector whose
	// size differs from the store's returns *domain.DimensionMismatchError
	// and nothing from the call is written.
	Upsert(ctx context.Context, records []domain.EmbeddingRecord) error

	// Query returns at most k hits by descending cosine similarity, ties in
	// insertion order. An empty store returns an empty result.
	Query(ctx context.Context, vector []float32, k int) (*domain.QueryResult, error)

	// PruneDocument deletes the document's records with SequenceIndex >= keep.
	PruneDocument(ctx context.Context, documentID string, keep int) error

	// Count returns the number of records.
	Count(ctx context.Context) (int, error)

	// Profile returns the bound embedding profile (zero if unbound).
	Profile() domain.StoreProfile

	// Bind records the embedding profile on first use and fails with
	// domain.ErrProfileMismatch if a different one is already bound.
	Bind(ctx context.Context, profile domain.StoreProfile) error

	// Ping checks the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
