package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/custodia-labs/quire/internal/core/domain"
	"github.com/custodia-labs/quire/internal/core/ports/driven"
)

// Ensure VectorStore implements the interface.
var _ driven.VectorStore = (*VectorStore)(nil)

// VectorStore is a brute-force in-memory implementation of driven.VectorStore.
// Records are kept in insertion order with precomputed magnitudes, so a
// stable sort by similarity breaks ties by insertion rank.
//
// The SQLite store uses one of these as its query index.
type VectorStore struct {
	mu      sync.RWMutex
	profile domain.StoreProfile
	dim     int
	entries []entry
	byID    map[string]int
}

type entry struct {
	rec domain.EmbeddingRecord
	mag float64
}

// NewVectorStore creates an empty in-memory vector store.
func NewVectorStore() *VectorStore {
	return &VectorStore{byID: make(map[string]int)}
}

// Check validates records against the store's dimension without writing.
// A batch whose vectors disagree with each other is also rejected.
func (s *VectorStore) Check(records []domain.EmbeddingRecord) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := s.checkLocked(records)
	return err
}

func (s *VectorStore) checkLocked(records []domain.EmbeddingRecord) (int, error) {
	dim := s.dim
	for _, r := range records {
		if r.ChunkID == "" {
			return 0, fmt.Errorf("%w: record without chunk id", domain.ErrInvalidInput)
		}
		if len(r.Vector) == 0 {
			return 0, fmt.Errorf("%w: empty vector for chunk %s", domain.ErrInvalidInput, r.ChunkID)
		}
		if dim == 0 {
			dim = len(r.Vector)
			continue
		}
		if len(r.Vector) != dim {
			return 0, &domain.DimensionMismatchError{Expected: dim, Got: len(r.Vector), ChunkID: r.ChunkID}
		}
	}
	return dim, nil
}

// Upsert inserts or replaces records. A replaced record keeps its rank.
func (s *VectorStore) Upsert(_ context.Context, records []domain.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dim, err := s.checkLocked(records)
	if err != nil {
		return err
	}
	s.dim = dim
	for _, r := range records {
		r.Vector = append([]float32(nil), r.Vector...)
		e := entry{rec: r, mag: magnitude(r.Vector)}
		if i, ok := s.byID[r.ChunkID]; ok {
			s.entries[i] = e
			continue
		}
		s.byID[r.ChunkID] = len(s.entries)
		s.entries = append(s.entries, e)
	}
	return nil
}

// Query returns the top-k records by cosine similarity.
func (s *VectorStore) Query(_ context.Context, vector []float32, k int) (*domain.QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := &domain.QueryResult{}
	if s.dim != 0 && len(vector) != s.dim {
		return nil, &domain.DimensionMismatchError{Expected: s.dim, Got: len(vector)}
	}
	if len(s.entries) == 0 || k <= 0 {
		return result, nil
	}

	type scored struct {
		idx   int
		score float64
	}
	qm := magnitude(vector)
	scores := make([]scored, len(s.entries))
	for i := range s.entries {
		scores[i] = scored{idx: i, score: cosine(vector, qm, s.entries[i].rec.Vector, s.entries[i].mag)}
	}
	sort.SliceStable(scores, func(a, b int) bool { return scores[a].score > scores[b].score })

	if k > len(scores) {
		k = len(scores)
	}
	result.Hits = make([]domain.QueryHit, k)
	for n := 0; n < k; n++ {
		rec := s.entries[scores[n].idx].rec
		result.Hits[n] = domain.QueryHit{
			ChunkID:    rec.ChunkID,
			Similarity: scores[n].score,
			Rank:       n + 1,
			Text:       rec.Text,
			Metadata:   rec.Metadata,
		}
	}
	return result, nil
}

// PruneDocument removes the document's records with SequenceIndex >= keep.
func (s *VectorStore) PruneDocument(_ context.Context, documentID string, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.rec.Metadata.DocumentID == documentID && e.rec.Metadata.SequenceIndex >= keep {
			delete(s.byID, e.rec.ChunkID)
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(s.entries); i++ {
		s.entries[i] = entry{}
	}
	s.entries = kept
	for i, e := range s.entries {
		s.byID[e.rec.ChunkID] = i
	}
	if len(s.entries) == 0 && s.profile.Dimensions == 0 {
		s.dim = 0
	}
	return nil
}

// Count returns the number of records.
func (s *VectorStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Profile returns the bound profile.
func (s *VectorStore) Profile() domain.StoreProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// CanBind reports whether Bind would accept profile without changing anything.
func (s *VectorStore) CanBind(profile domain.StoreProfile) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkBind(profile)
}

// Bind sets the profile on first use and rejects a different one afterwards.
func (s *VectorStore) Bind(_ context.Context, profile domain.StoreProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkBind(profile); err != nil {
		return err
	}
	if s.profile.IsZero() {
		s.profile = profile
		if profile.Dimensions != 0 {
			s.dim = profile.Dimensions
		}
	}
	return nil
}

func (s *VectorStore) checkBind(profile domain.StoreProfile) error {
	if err := CheckProfile(s.profile, profile); err != nil {
		return err
	}
	if s.dim != 0 && profile.Dimensions != 0 && s.dim != profile.Dimensions {
		return &domain.DimensionMismatchError{Expected: s.dim, Got: profile.Dimensions}
	}
	return nil
}

// Ping always succeeds.
func (s *VectorStore) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *VectorStore) Close() error { return nil }

// CheckProfile compares a bound profile with the one a caller wants to use.
// An unbound profile accepts anything.
func CheckProfile(bound, want domain.StoreProfile) error {
	if bound.IsZero() || bound == want {
		return nil
	}
	return fmt.Errorf("%w: store built with %s (%d dims), configured %s (%d dims)",
		domain.ErrProfileMismatch, bound.Model, bound.Dimensions, want.Model, want.Dimensions)
}

func cosine(q []float32, qm float64, v []float32, vm float64) float64 {
	if qm == 0 || vm == 0 {
		return 0
	}
	s := dot(q, v) / (qm * vm)
	if math.IsNaN(s) {
		return 0
	}
	return s
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
