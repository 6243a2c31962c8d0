package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetadataFor(t *testing.T) {
	doc := &Document{
		ID:        "doc-1",
		SourceURL: "https://example.org/air-quality/report",
		Title:     "Report",
		Category:  "Air Quality",
	}

	md := MetadataFor(doc, Chunk{SequenceIndex: 3})

	assert.Equal(t, ChunkMetadata{
		DocumentID:    "doc-1",
		SourceURL:     "https://example.org/air-quality/report",
		Title:         "Report",
		Category:      "Air Quality",
		SequenceIndex: 3,
	}, md)
}

func TestIndexReport_Merge(t *testing.T) {
	r := &IndexReport{Succeeded: 1, Chunks: 4}
	r.Merge(&IndexReport{Failed: 2, Skipped: 1, Failures: []IndexFailure{{DocumentID: "d"}}})
	r.Merge(nil)

	assert.Equal(t, 4, r.Total())
	assert.Equal(t, 4, r.Chunks)
	assert.Len(t, r.Failures, 1)
}

func TestAnswer_Grounded(t *testing.T) {
	var nilAnswer *Answer
	assert.False(t, nilAnswer.Grounded())
	assert.False(t, (&Answer{Outcome: OutcomeNoGrounding}).Grounded())
	assert.True(t, (&Answer{Outcome: OutcomeGrounded}).Grounded())
}

func TestQueryResult_Len(t *testing.T) {
	var r *QueryResult
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 2, (&QueryResult{Hits: make([]QueryHit, 2)}).Len())
}

func TestStoreProfile_IsZero(t *testing.T) {
	assert.True(t, StoreProfile{}.IsZero())
	assert.False(t, StoreProfile{Model: "m", Dimensions: 3}.IsZero())
}
