// Package app wires adapters and core services into a runnable quire.
// It opens one store per process and shares it with every pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/custodia-labs/quire/internal/adapters/driven/ai"
	"github.com/custodia-labs/quire/internal/adapters/driven/config/file"
	"github.com/custodia-labs/quire/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/quire/internal/chunker"
	"github.com/custodia-labs/quire/internal/core/domain"
	"github.com/custodia-labs/quire/internal/core/ports/driven"
	"github.com/custodia-labs/quire/internal/core/ports/driving"
	"github.com/custodia-labs/quire/internal/core/services"
	"github.com/custodia-labs/quire/internal/crawler"
	"github.com/custodia-labs/quire/internal/extractor/html"
	"github.com/custodia-labs/quire/internal/logger"
	"github.com/custodia-labs/quire/internal/ratelimit"
	"github.com/custodia-labs/quire/internal/retry"
)

// App holds the shared store and builds services on demand. AI clients are
// created on first use so commands that never embed never dial a provider.
type App struct {
	settings *domain.Settings
	store    *sqlite.Store
	prompts  *file.PromptStore

	mu        sync.Mutex
	embedder  driven.Embedder
	generator driven.Generator
}

// New opens the store under settings.DataDir. Failing to open it is fatal.
func New(settings *domain.Settings) (*App, error) {
	store, err := sqlite.NewStore(filepath.Join(settings.DataDir, "data"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}

	prompts, err := file.NewPromptStore(filepath.Join(settings.DataDir, "prompts"))
	if err != nil {
		store.Close()
		return nil, err
	}

	logger.Debug("store opened at %s", store.Path())
	return &App{settings: settings, store: store, prompts: prompts}, nil
}

// Settings returns the settings the app was built with.
func (a *App) Settings() *domain.Settings {
	return a.settings
}

// Crawl builds the crawl service.
func (a *App) Crawl() driving.CrawlService {
	s := a.settings
	policy := retry.FromSettings(s.Retry)
	limiter := ratelimit.New(s.Crawl.RequestsPerSecond, s.Crawl.Concurrency)
	fetcher := crawler.NewHTTPFetcherFromSettings(s.Crawl)

	sitemap := crawler.NewSitemap(fetcher,
		crawler.WithMaxDepth(s.Crawl.MaxSitemapDepth),
		crawler.WithSitemapRetry(policy),
		crawler.WithSitemapLimiter(limiter),
	)

	return services.NewCrawlService(sitemap, fetcher, a.store.PageStore(),
		services.WithConcurrency(s.Crawl.Concurrency),
		services.WithLimiter(limiter),
		services.WithFetchRetry(policy),
		services.WithRefresh(s.Crawl.Refresh),
	)
}

// Index builds the index service. It connects to the embedding provider.
func (a *App) Index(ctx context.Context) (driving.IndexService, error) {
	s := a.settings
	chunks, err := chunker.FromSettings(s.Chunk)
	if err != nil {
		return nil, err
	}
	embedder, err := a.embedderFor(ctx)
	if err != nil {
		return nil, err
	}

	return services.NewIndexService(chunks, embedder, a.store.VectorStore(),
		services.WithBatchSize(s.Index.BatchSize),
		services.WithWorkers(s.Index.Workers),
		services.WithEmbedRetry(retry.FromSettings(s.Retry)),
		services.WithStoredPages(a.store.PageStore(), html.New()),
	), nil
}

// Pipeline builds the crawl-then-index service.
func (a *App) Pipeline(ctx context.Context) (driving.PipelineService, error) {
	indexer, err := a.Index(ctx)
	if err != nil {
		return nil, err
	}
	return services.NewPipelineService(a.Crawl(), indexer), nil
}

// Answer builds the answer service. It connects to both AI providers.
func (a *App) Answer(ctx context.Context) (driving.AnswerService, error) {
	embedder, err := a.embedderFor(ctx)
	if err != nil {
		return nil, err
	}
	generator, err := a.generatorFor(ctx)
	if err != nil {
		return nil, err
	}

	s := a.settings
	return services.NewAnswerService(embedder, a.store.VectorStore(), generator,
		services.WithAnswerSettings(s.Answer),
		services.WithGenerationSettings(s.LLM),
		services.WithPromptStore(a.prompts),
		services.WithAnswerRetry(retry.FromSettings(s.Retry)),
	), nil
}

// Health builds the health service.
func (a *App) Health() driving.HealthService {
	return services.NewHealthService(a.store.VectorStore())
}

// Close releases AI clients and the store.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	if a.generator != nil {
		errs = append(errs, a.generator.Close())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}

func (a *App) embedderFor(ctx context.Context) (driven.Embedder, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.embedder != nil {
		return a.embedder, nil
	}
	embedder, err := ai.CreateAndValidateEmbedder(ctx, &a.settings.Embedding)
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}
	a.embedder = embedder
	return embedder, nil
}

func (a *App) generatorFor(ctx context.Context) (driven.Generator, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.generator != nil {
		return a.generator, nil
	}
	generator, err := ai.CreateAndValidateGenerator(ctx, &a.settings.LLM)
	if err != nil {
		return nil, fmt.Errorf("LLM provider: %w", err)
	}
	a.generator = generator
	return generator, nil
}
