package domain

import "time"

// FetchFailure records a URL that could not be fetched after all retries.
type FetchFailure struct {
	URL      string
	Attempts int
	Err      string
	FailedAt time.Time
}

// CrawlReport summarises a crawl run.
type CrawlReport struct {
	// Discovered counts distinct normalised URLs enumerated from the sitemap.
	Discovered int

	// Fetched counts pages fetched and persisted in this run.
	Fetched int

	// Reused counts URLs skipped because a stored page already existed.
	Reused int

	// Failed lists URLs that exhausted their retries.
	Failed []FetchFailure
}

// IndexFailure records why a document was not fully indexed.
type IndexFailure struct {
	DocumentID string
	SourceURL  string
	Err        string
}

// IndexReport summarises an index run over a batch of documents.
type IndexReport struct {
	// Succeeded counts documents whose chunks were all stored.
	Succeeded int

	// Failed counts documents with at least one unstored chunk,
	// or that could not be extracted.
	Failed int

	// Skipped counts documents that produced no chunks.
	Skipped int

	// Chunks counts chunk records written to the store.
	Chunks int

	// Failures details each failed document.
	Failures []IndexFailure
}

// Total returns the number of documents accounted for.
func (r *IndexReport) Total() int {
	return r.Succeeded + r.Failed + r.Skipped
}

// Merge adds other's counts into r.
func (r *IndexReport) Merge(other *IndexReport) {
	if other == nil {
		return
	}
	r.Succeeded += other.Succeeded
	r.Failed += other.Failed
	r.Skipped += other.Skipped
	r.Chunks += other.Chunks
	r.Failures = append(r.Failures, other.Failures...)
}

// PipelineReport combines the crawl and index phases of a full run.
type PipelineReport struct {
	Crawl *CrawlReport
	Index *IndexReport
}

// HealthStatus is the liveness signal for the store.
type HealthStatus struct {
	// Reachable is false when the store could not be queried.
	Reachable bool

	// Chunks is the number of embedded chunks in the store.
	Chunks int

	// Model is the embedding model the store is bound to.
	Model string

	// Dimensions is the store's vector size.
	Dimensions int

	// Err describes why the store is unreachable.
	Err string
}

// PipelineRun records one scheduled pipeline execution.
type PipelineRun struct {
	StartedAt time.Time
	EndedAt   time.Time
	Report    *PipelineReport
	Err       string
}

// Succeeded returns true if the run finished without error.
func (r *PipelineRun) Succeeded() bool {
	return r != nil && r.Err == ""
}
