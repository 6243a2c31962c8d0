package driven

import (
	"context"

	"github.com/custodia-labs/quire/internal/core/domain"
)

// PageStore persists raw crawled pages keyed by normalised URL, so the
// extraction and indexing stages can be re-run without crawling again.
type PageStore interface {
	// SavePage stores or replaces a page.
	SavePage(ctx context.Context, page *domain.RawPage) error

	// GetPage returns domain.ErrNotFound if the URL was never stored.
	GetPage(ctx context.Context, url string) (*domain.RawPage, error)

	// HasPage reports whether a page is stored for url.
	HasPage(ctx context.Context, url string) (bool, error)

	// ListPageURLs returns stored URLs in lexical order.
	ListPageURLs(ctx context.Context) ([]string, error)

	// RecordFailure logs a URL that exhausted its fetch retries.
	RecordFailure(ctx context.Context, failure domain.FetchFailure) error

	// ListFailures returns the most recent failure per URL.
	ListFailures(ctx context.Context) ([]domain.FetchFailure, error)
}
