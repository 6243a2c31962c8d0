package domain

// EmbeddingRecord is a chunk vector plus the metadata needed to cite it.
// The vector store owns these records exclusively.
type EmbeddingRecord struct {
	// ChunkID is the store key; upserting the same ID replaces the record.
	ChunkID string

	// Vector has the store's fixed dimensionality.
	Vector []float32

	// Text is the chunk content, returned at query time for context assembly.
	Text string

	// Metadata identifies the source of the chunk.
	Metadata ChunkMetadata
}

// QueryHit is a single nearest-neighbour match.
type QueryHit struct {
	// ChunkID identifies the matched record.
	ChunkID string

	// Similarity is the cosine similarity to the query vector, in [-1, 1].
	Similarity float64

	// Rank is the 1-based position in the result.
	Rank int

	// Text is the chunk content.
	Text string

	// Metadata identifies the source of the chunk.
	Metadata ChunkMetadata

	// BelowFloor is set when Similarity is under the configured relevance floor.
	BelowFloor bool
}

// QueryResult is ordered by descending similarity, ties by insertion order.
type QueryResult struct {
	Hits []QueryHit
}

// Len returns the number of hits.
func (r *QueryResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Hits)
}

// StoreProfile is the embedding configuration a store was built with.
// Indexing and querying must use the same profile.
type StoreProfile struct {
	// Model is the embedding model name.
	Model string

	// Dimensions is the fixed vector size.
	Dimensions int
}

// IsZero reports whether no profile has been bound yet.
func (p StoreProfile) IsZero() bool {
	return p.Model == "" && p.Dimensions == 0
}
