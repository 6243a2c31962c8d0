package driving

import (
	"context"

	"github.com/custodia-labs/quire/internal/core/domain"
)

// CrawlService enumerates a sitemap and stores the fetched pages.
type CrawlService interface {
	// Crawl fetches every distinct URL in the sitemap at most once.
	// Individual fetch failures are reported, not returned.
	Crawl(ctx context.Context, sitemapURL string) (*domain.CrawlReport, error)
}
