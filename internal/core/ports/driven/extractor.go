package driven

import "github.com/custodia-labs/quire/internal/core/domain"

// Extractor turns a raw page into a Document.
// Failures are *domain.ExtractionError and only affect that page.
type Extractor interface {
	Extract(page *domain.RawPage) (*domain.Document, error)
}

// Chunker splits a document's text into bounded, overlapping chunks.
// It must be deterministic. Failures are *domain.ChunkingError.
type Chunker interface {
	Chunk(doc *domain.Document) ([]domain.Chunk, error)
}
