package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/quire/internal/core/domain"
	"github.com/custodia-labs/quire/internal/core/ports/driven"
	"github.com/custodia-labs/quire/internal/core/ports/driving"
	"github.com/custodia-labs/quire/internal/logger"
	"github.com/custodia-labs/quire/internal/ratelimit"
	"github.com/custodia-labs/quire/internal/retry"
)

// Ensure CrawlService implements the interface.
var _ driving.CrawlService = (*CrawlService)(nil)

// DefaultCrawlConcurrency is the number of parallel fetch workers.
const DefaultCrawlConcurrency = 5

// CrawlService fetches every URL a sitemap lists and persists the pages.
type CrawlService struct {
	source  driven.URLSource
	fetcher driven.Fetcher
	pages   driven.PageStore
	limiter *ratelimit.Limiter
	policy  retry.Policy

	concurrency int
	refresh     bool
}

// CrawlOption configures a CrawlService.
type CrawlOption func(*CrawlService)

// WithConcurrency sets the number of fetch workers.
func WithConcurrency(n int) CrawlOption {
	return func(s *CrawlService) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLimiter throttles fetches across all workers.
func WithLimiter(l *ratelimit.Limiter) CrawlOption {
	return func(s *CrawlService) { s.limiter = l }
}

// WithFetchRetry sets the retry policy for page fetches.
func WithFetchRetry(p retry.Policy) CrawlOption {
	return func(s *CrawlService) { s.policy = p }
}

// WithRefresh re-fetches pages that are already stored.
func WithRefresh(refresh bool) CrawlOption {
	return func(s *CrawlService) { s.refresh = refresh }
}

// NewCrawlService creates a crawl service.
func NewCrawlService(
	source driven.URLSource,
	fetcher driven.Fetcher,
	pages driven.PageStore,
	opts ...CrawlOption,
) *CrawlService {
	s := &CrawlService{
		source:      source,
		fetcher:     fetcher,
		pages:       pages,
		policy:      retry.New(retry.DefaultMaxAttempts),
		concurrency: DefaultCrawlConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// crawlRun accumulates one crawl's results across workers.
type crawlRun struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	report domain.CrawlReport
}

// claim marks url seen and reports whether this caller was first.
func (r *crawlRun) claim(url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[url]; ok {
		return false
	}
	r.seen[url] = struct{}{}
	r.report.Discovered++
	return true
}

func (r *crawlRun) record(fn func(*domain.CrawlReport)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.report)
}

// Crawl enumerates the sitemap and fetches each URL at most once on a
// bounded worker pool. A URL that exhausts its retries is recorded and the
// crawl continues; only an unusable sitemap or cancellation is returned.
func (s *CrawlService) Crawl(ctx context.Context, sitemapURL string) (*domain.CrawlReport, error) {
	logger.Section("Crawl")
	logger.Info("Crawling sitemap %s with %d workers", sitemapURL, s.concurrency)

	run := &crawlRun{seen: make(map[string]struct{})}
	urlsCh, errsCh := s.source.URLs(ctx, sitemapURL)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for url := range urlsCh {
		if !run.claim(url) {
			continue
		}
		g.Go(func() error {
			s.visit(gctx, url, run)
			return nil
		})
	}
	_ = g.Wait()

	report := &run.report
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].URL < report.Failed[j].URL })

	if err := <-errsCh; err != nil {
		return report, fmt.Errorf("read sitemap: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	logger.Info("Crawl complete: %d discovered, %d fetched, %d reused, %d failed",
		report.Discovered, report.Fetched, report.Reused, len(report.Failed))
	return report, nil
}

// visit fetches and stores one page.
func (s *CrawlService) visit(ctx context.Context, url string, run *crawlRun) {
	if !s.refresh {
		stored, err := s.pages.HasPage(ctx, url)
		if err != nil {
			logger.Warn("Checking stored page %s: %v", url, err)
		}
		if stored {
			logger.Debug("Reusing stored page %s", url)
			run.record(func(r *domain.CrawlReport) { r.Reused++ })
			return
		}
	}

	attempts := 0
	page, err := retry.Do(ctx, s.policy, func(ctx context.Context) (*domain.RawPage, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		attempts++
		page, err := s.fetcher.Fetch(ctx, url)
		var fe *domain.FetchError
		if errors.As(err, &fe) && fe.StatusCode == 429 {
			s.limiter.Pause(0)
		}
		return page, err
	})
	if err == nil {
		page.URL = url
		err = s.pages.SavePage(ctx, page)
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		failure := domain.FetchFailure{URL: url, Attempts: attempts, Err: err.Error(), FailedAt: time.Now().UTC()}
		logger.Warn("Fetch failed for %s after %d attempts: %v", url, attempts, err)
		if rerr := s.pages.RecordFailure(ctx, failure); rerr != nil {
			logger.Warn("Recording failure for %s: %v", url, rerr)
		}
		run.record(func(r *domain.CrawlReport) { r.Failed = append(r.Failed, failure) })
		return
	}

	logger.Debug("Fetched %s (%d bytes)", url, len(page.Content))
	run.record(func(r *domain.CrawlReport) { r.Fetched++ })
}
