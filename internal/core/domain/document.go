package domain

import "time"

// RawPage is the unprocessed response body fetched for a crawled URL.
// Pages are persisted keyed by normalised URL so extraction can be
// re-run without crawling again.
type RawPage struct {
	// URL is the normalised URL the page was fetched from.
	URL string

	// Content is the decoded (UTF-8) response body.
	Content []byte

	// ContentType is the response Content-Type header.
	ContentType string

	// StatusCode is the HTTP status of the successful fetch.
	StatusCode int

	// FetchedAt is when the page was fetched.
	FetchedAt time.Time
}

// Document is the plain-text representation of a page after extraction.
// Documents are immutable once created; a re-crawl produces a new
// Document with the same ID rather than mutating the old one.
type Document struct {
	// ID is derived from the normalised source URL.
	ID string

	// SourceURL is the normalised URL of the page.
	SourceURL string

	// Title is the human-readable title.
	Title string

	// Category is a coarse grouping derived from the URL path.
	Category string

	// Text is the full extracted text before chunking.
	Text string

	// FetchedAt is when the underlying page was fetched.
	FetchedAt time.Time
}

// Chunk is a contiguous span of a Document's text.
// Offsets are byte offsets into Document.Text: Text == doc.Text[Start:End].
type Chunk struct {
	// ID is deterministic for a given document and sequence index.
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// SequenceIndex is zero-based and contiguous per document.
	SequenceIndex int

	// Start is the inclusive byte offset of the chunk.
	Start int

	// End is the exclusive byte offset of the chunk.
	End int

	// Text is the chunk content.
	Text string

	// TokenCount is the number of whitespace-delimited words.
	TokenCount int
}

// ChunkMetadata carries everything needed to render a citation without
// looking the Document up again.
type ChunkMetadata struct {
	DocumentID    string
	SourceURL     string
	Title         string
	Category      string
	SequenceIndex int
}

// MetadataFor builds the citation metadata for a chunk of doc.
func MetadataFor(doc *Document, c Chunk) ChunkMetadata {
	return ChunkMetadata{
		DocumentID:    doc.ID,
		SourceURL:     doc.SourceURL,
		Title:         doc.Title,
		Category:      doc.Category,
		SequenceIndex: c.SequenceIndex,
	}
}
