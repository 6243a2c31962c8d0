// Package domain holds quire's data types and sentinel errors.
//
// A crawl produces RawPage values. Extraction turns each into a Document,
// the chunker cuts that into Chunks, and each Chunk is embedded and stored
// as an EmbeddingRecord. Questions come back as an Answer carrying the
// stage trace and the numbered Sources its citations point at.
//
// Only the standard library may be imported here.
package domain
