package driving

import (
	"context"

	"github.com/custodia-labs/quire/internal/core/domain"
)

// IndexService chunks, embeds and stores documents.
type IndexService interface {
	// Index processes a batch. Per-document failures are counted in the
	// report; configuration errors (chunking, dimension mismatch) are returned.
	Index(ctx context.Context, docs []domain.Document) (*domain.IndexReport, error)

	// IndexStored extracts and indexes every stored raw page.
	IndexStored(ctx context.Context) (*domain.IndexReport, error)
}

// PipelineService runs a crawl followed by indexing of the stored pages.
type PipelineService interface {
	Run(ctx context.Context, sitemapURL string) (*domain.PipelineReport, error)
}
