package driven

import (
	"context"

	"github.com/custodia-labs/quire/internal/core/domain"
)

// Fetcher retrieves a single URL. Failures are *domain.FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*domain.RawPage, error)
}

// URLSource enumerates the page URLs listed by a sitemap.
//
// URLs streams distinct normalised URLs as they are parsed and is closed
// when enumeration ends. At most one error is sent on the error channel,
// for failures that end the enumeration (such as an unreachable root
// sitemap); both channels are closed when the source is done.
type URLSource interface {
	URLs(ctx context.Context, sitemapURL string) (<-chan string, <-chan error)
}
