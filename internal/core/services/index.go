package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/quire/internal/core/domain"
	"github.com/custodia-labs/quire/internal/core/ports/driven"
	"github.com/custodia-labs/quire/internal/core/ports/driving"
	"github.com/custodia-labs/quire/internal/logger"
	"github.com/custodia-labs/quire/internal/retry"
)

// Ensure IndexService implements the interface.
var _ driving.IndexService = (*IndexService)(nil)

// Index defaults.
const (
	DefaultBatchSize    = 64
	DefaultIndexWorkers = 2

	// storedDocsPerRun bounds how many extracted documents IndexStored holds at once.
	storedDocsPerRun = 100
)

// IndexService chunks documents, embeds the chunks in batches and upserts
// the records into the vector store.
type IndexService struct {
	chunker   driven.Chunker
	embedder  driven.Embedder
	store     driven.VectorStore
	pages     driven.PageStore
	extractor driven.Extractor
	policy    retry.Policy

	batchSize int
	workers   int
}

// IndexOption configures an IndexService.
type IndexOption func(*IndexService)

// WithBatchSize sets the number of chunks per embedding call.
func WithBatchSize(n int) IndexOption {
	return func(s *IndexService) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithWorkers sets how many embedding batches run concurrently.
func WithWorkers(n int) IndexOption {
	return func(s *IndexService) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithEmbedRetry sets the retry policy for embedding batches.
func WithEmbedRetry(p retry.Policy) IndexOption {
	return func(s *IndexService) { s.policy = p }
}

// WithStoredPages enables IndexStored over the given page store.
func WithStoredPages(pages driven.PageStore, extractor driven.Extractor) IndexOption {
	return func(s *IndexService) {
		s.pages = pages
		s.extractor = extractor
	}
}

// NewIndexService creates an index service.
func NewIndexService(
	chunker driven.Chunker,
	embedder driven.Embedder,
	store driven.VectorStore,
	opts ...IndexOption,
) *IndexService {
	s := &IndexService{
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		policy:    retry.New(retry.DefaultMaxAttempts),
		batchSize: DefaultBatchSize,
		workers:   DefaultIndexWorkers,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// docProgress tracks one document across batches.
type docProgress struct {
	doc    *domain.Document
	total  int
	stored int
	errs   []error
}

// pendingChunk is a chunk waiting to be embedded.
type pendingChunk struct {
	doc   *docProgress
	chunk domain.Chunk
}

// Index processes docs. Per-document embedding or storage failures are
// counted in the report; chunking errors, dimension mismatches and profile
// mismatches stop the run and are returned with the partial report.
func (s *IndexService) Index(ctx context.Context, docs []domain.Document) (report *domain.IndexReport, err error) {
	ctx, span := tracer.Start(ctx, "index")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.Int("index.documents", len(docs)))

	report = &domain.IndexReport{}

	// 1. CHUNK every document up front; a chunker error is a configuration bug.
	progress := make([]*docProgress, 0, len(docs))
	var pending []pendingChunk
	for i := range docs {
		doc := &docs[i]
		chunks, err := s.chunker.Chunk(doc)
		if err != nil {
			return report, fmt.Errorf("chunk %s: %w", doc.SourceURL, err)
		}
		if len(chunks) == 0 {
			logger.Debug("Skipping %s: no chunks", doc.SourceURL)
			if err := s.store.PruneDocument(ctx, doc.ID, 0); err != nil {
				logger.Warn("Pruning chunks of %s: %v", doc.SourceURL, err)
			}
			report.Skipped++
			continue
		}
		p := &docProgress{doc: doc, total: len(chunks)}
		progress = append(progress, p)
		for _, c := range chunks {
			pending = append(pending, pendingChunk{doc: p, chunk: c})
		}
	}
	if len(pending) == 0 {
		return report, nil
	}

	// 2. BIND the store to this embedder so queries use the same model.
	profile := domain.StoreProfile{Model: s.embedder.ModelName(), Dimensions: s.embedder.Dimensions()}
	if err := s.store.Bind(ctx, profile); err != nil {
		return report, fmt.Errorf("bind store: %w", err)
	}

	// 3. EMBED and STORE batches on a bounded pool.
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for start := 0; start < len(pending); start += s.batchSize {
		batch := pending[start:min(start+s.batchSize, len(pending))]
		g.Go(func() error {
			stored, err := s.storeBatch(gctx, batch)
			if isFatalIndexError(err) || (err != nil && gctx.Err() != nil) {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("Embedding batch of %d chunks failed: %v", len(batch), err)
				for _, pc := range batch {
					pc.doc.errs = append(pc.doc.errs, err)
				}
				return nil
			}
			report.Chunks += stored
			for _, pc := range batch {
				pc.doc.stored++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	// 4. ACCOUNT per document and prune stale tails of the ones fully stored.
	for _, p := range progress {
		if p.stored == p.total {
			if err := s.store.PruneDocument(ctx, p.doc.ID, p.total); err != nil {
				logger.Warn("Pruning stale chunks of %s: %v", p.doc.SourceURL, err)
			}
			report.Succeeded++
			continue
		}
		report.Failed++
		report.Failures = append(report.Failures, domain.IndexFailure{
			DocumentID: p.doc.ID,
			SourceURL:  p.doc.SourceURL,
			Err:        errors.Join(uniqueErrors(p.errs)...).Error(),
		})
	}

	span.SetAttributes(
		attribute.Int("index.succeeded", report.Succeeded),
		attribute.Int("index.failed", report.Failed),
		attribute.Int("index.chunks", report.Chunks),
	)
	logger.Info("Indexed %d documents (%d chunks), %d failed, %d skipped",
		report.Succeeded, report.Chunks, report.Failed, report.Skipped)
	return report, nil
}

// storeBatch embeds one batch with retry and upserts the records.
func (s *IndexService) storeBatch(ctx context.Context, batch []pendingChunk) (int, error) {
	texts := make([]string, len(batch))
	for i, pc := range batch {
		texts[i] = EmbeddingText(pc.doc.doc.Title, pc.chunk.Text)
	}

	policy := s.policy.WithNotify(func(attempt int, err error, wait time.Duration) {
		logger.Debug("Embedding batch attempt %d failed, retrying in %s: %v", attempt, wait, err)
	})
	vectors, err := retry.Do(ctx, policy, func(ctx context.Context) ([][]float32, error) {
		return s.embedder.EmbedBatch(ctx, texts)
	})
	if err != nil {
		return 0, err
	}
	if len(vectors) != len(batch) {
		return 0, &domain.EmbeddingServiceError{
			Provider: s.embedder.ModelName(),
			Err:      fmt.Errorf("got %d embeddings for %d texts", len(vectors), len(batch)),
		}
	}

	records := make([]domain.EmbeddingRecord, len(batch))
	for i, pc := range batch {
		records[i] = domain.EmbeddingRecord{
			ChunkID:  pc.chunk.ID,
			Vector:   vectors[i],
			Text:     pc.chunk.Text,
			Metadata: domain.MetadataFor(pc.doc.doc, pc.chunk),
		}
	}
	if err := s.store.Upsert(ctx, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// IndexStored extracts every stored raw page and indexes the documents.
// Pages that cannot be extracted count as failed.
func (s *IndexService) IndexStored(ctx context.Context) (*domain.IndexReport, error) {
	if s.pages == nil || s.extractor == nil {
		return nil, fmt.Errorf("%w: no page store configured for indexing", domain.ErrInvalidConfig)
	}
	logger.Section("Index")

	urls, err := s.pages.ListPageURLs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	logger.Info("Indexing %d stored pages", len(urls))

	report := &domain.IndexReport{}
	seen := make(map[string]struct{})
	docs := make([]domain.Document, 0, storedDocsPerRun)

	flush := func() error {
		if len(docs) == 0 {
			return nil
		}
		r, err := s.Index(ctx, docs)
		report.Merge(r)
		docs = docs[:0]
		return err
	}

	for _, url := range urls {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		page, err := s.pages.GetPage(ctx, url)
		if err != nil {
			return report, fmt.Errorf("get page %s: %w", url, err)
		}
		doc, err := s.extractor.Extract(page)
		if err != nil {
			logger.Warn("Extraction failed for %s: %v", url, err)
			report.Failed++
			report.Failures = append(report.Failures, domain.IndexFailure{SourceURL: url, Err: err.Error()})
			continue
		}
		if _, dup := seen[doc.ID]; dup {
			logger.Debug("Skipping %s: same document as an earlier page", url)
			continue
		}
		seen[doc.ID] = struct{}{}

		docs = append(docs, *doc)
		if len(docs) == storedDocsPerRun {
			if err := flush(); err != nil {
				return report, err
			}
		}
	}
	if err := flush(); err != nil {
		return report, err
	}
	return report, nil
}

// EmbeddingText is the text embedded for a chunk. The title gives short
// chunks their topic; the stored record keeps only the chunk text.
func EmbeddingText(title, text string) string {
	if title == "" {
		return text
	}
	return title + "\n\n" + text
}

// isFatalIndexError reports errors that invalidate the whole run.
func isFatalIndexError(err error) bool {
	return errors.Is(err, domain.ErrDimensionMismatch) ||
		errors.Is(err, domain.ErrProfileMismatch) ||
		errors.Is(err, domain.ErrChunking)
}

func uniqueErrors(errs []error) []error {
	seen := make(map[string]struct{}, len(errs))
	out := make([]error, 0, len(errs))
	for _, err := range errs {
		if _, ok := seen[err.Error()]; ok {
			continue
		}
		seen[err.Error()] = struct{}{}
		out = append(out, err)
	}
	return out
}

// Ensure PipelineService implements the interface.
var _ driving.PipelineService = (*PipelineService)(nil)

// PipelineService crawls a sitemap and then indexes every stored page.
type PipelineService struct {
	crawler driving.CrawlService
	indexer driving.IndexService
}

// NewPipelineService creates a pipeline service.
func NewPipelineService(crawler driving.CrawlService, indexer driving.IndexService) *PipelineService {
	return &PipelineService{crawler: crawler, indexer: indexer}
}

// Run crawls then indexes. A crawl error stops the run before indexing.
func (p *PipelineService) Run(ctx context.Context, sitemapURL string) (*domain.PipelineReport, error) {
	report := &domain.PipelineReport{}

	crawl, err := p.crawler.Crawl(ctx, sitemapURL)
	report.Crawl = crawl
	if err != nil {
		return report, fmt.Errorf("crawl: %w", err)
	}

	index, err := p.indexer.IndexStored(ctx)
	report.Index = index
	if err != nil {
		return report, fmt.Errorf("index: %w", err)
	}
	return report, nil
}
