package crawler

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/custodia-labs/quire/internal/core/domain"
	"github.com/custodia-labs/quire/internal/core/ports/driven"
	"github.com/custodia-labs/quire/internal/logger"
	"github.com/custodia-labs/quire/internal/ratelimit"
	"github.com/custodia-labs/quire/internal/retry"
	"github.com/custodia-labs/quire/internal/urlnorm"
)

// Ensure Sitemap implements the interface.
var _ driven.URLSource = (*Sitemap)(nil)

// DefaultMaxSitemapDepth is how many levels of nested sitemap indexes are followed.
const DefaultMaxSitemapDepth = 3

// Sitemap enumerates page URLs from a sitemap or sitemap index.
type Sitemap struct {
	fetcher  driven.Fetcher
	policy   retry.Policy
	limiter  *ratelimit.Limiter
	maxDepth int
}

// SitemapOption configures a Sitemap.
type SitemapOption func(*Sitemap)

// WithMaxDepth limits how deep nested sitemap indexes are followed.
func WithMaxDepth(depth int) SitemapOption {
	return func(s *Sitemap) {
		if depth > 0 {
			s.maxDepth = depth
		}
	}
}

// WithSitemapRetry sets the retry policy for sitemap fetches.
func WithSitemapRetry(p retry.Policy) SitemapOption {
	return func(s *Sitemap) { s.policy = p }
}

// WithSitemapLimiter shares a rate limiter with page fetches.
func WithSitemapLimiter(l *ratelimit.Limiter) SitemapOption {
	return func(s *Sitemap) { s.limiter = l }
}

// NewSitemap creates a sitemap URL source.
func NewSitemap(fetcher driven.Fetcher, opts ...SitemapOption) *Sitemap {
	s := &Sitemap{
		fetcher:  fetcher,
		policy:   retry.New(retry.DefaultMaxAttempts),
		maxDepth: DefaultMaxSitemapDepth,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// URLs streams every distinct normalised <loc> reachable from sitemapURL.
// An unreachable or unparsable root sitemap is reported on the error
// channel; failures in nested sitemaps are logged and skipped.
func (s *Sitemap) URLs(ctx context.Context, sitemapURL string) (<-chan string, <-chan error) {
	urls := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(urls)

		root, err := urlnorm.Normalize(sitemapURL)
		if err != nil {
			errs <- &domain.FetchError{URL: sitemapURL, Err: err, Permanent: true}
			return
		}
		w := &walk{
			sitemap:  s,
			out:      urls,
			pages:    make(map[string]struct{}),
			sitemaps: make(map[string]struct{}),
		}
		if err := w.visit(ctx, root, 0); err != nil {
			errs <- err
		}
	}()

	return urls, errs
}

// walk holds the state of one enumeration.
type walk struct {
	sitemap  *Sitemap
	out      chan<- string
	pages    map[string]struct{}
	sitemaps map[string]struct{}
}

func (w *walk) visit(ctx context.Context, sitemapURL string, depth int) error {
	if _, ok := w.sitemaps[sitemapURL]; ok {
		return nil
	}
	w.sitemaps[sitemapURL] = struct{}{}

	logger.Debug("Reading sitemap %s (depth %d)", sitemapURL, depth)
	page, err := retry.Do(ctx, w.sitemap.policy, func(ctx context.Context) (*domain.RawPage, error) {
		if err := w.sitemap.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return w.sitemap.fetcher.Fetch(ctx, sitemapURL)
	})
	if err != nil {
		if depth == 0 || ctx.Err() != nil {
			return err
		}
		logger.Warn("Skipping sitemap %s: %v", sitemapURL, err)
		return nil
	}

	var children []string
	err = parseSitemap(page.Content, func(kind, loc string) error {
		if kind == "sitemap" {
			children = append(children, loc)
			return nil
		}
		return w.emit(ctx, loc)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if depth == 0 {
			return &domain.FetchError{URL: sitemapURL, Err: err, Permanent: true}
		}
		logger.Warn("Skipping sitemap %s: %v", sitemapURL, err)
		return nil
	}

	for _, child := range children {
		if depth+1 > w.sitemap.maxDepth {
			logger.Warn("Sitemap %s nested deeper than %d levels, skipping", child, w.sitemap.maxDepth)
			continue
		}
		n, err := urlnorm.Normalize(child)
		if err != nil {
			logger.Warn("Skipping invalid sitemap location %q: %v", child, err)
			continue
		}
		if err := w.visit(ctx, n, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (w *walk) emit(ctx context.Context, loc string) error {
	u, err := urlnorm.Normalize(loc)
	if err != nil {
		logger.Warn("Skipping invalid sitemap location %q: %v", loc, err)
		return nil
	}
	if _, ok := w.pages[u]; ok {
		return nil
	}
	w.pages[u] = struct{}{}

	select {
	case w.out <- u:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// parseSitemap calls fn for each <loc> directly inside a <url> ("url") or
// <sitemap> ("sitemap") element, in document order. Extension elements such
// as image:loc are ignored.
func parseSitemap(content []byte, fn func(kind, loc string) error) error {
	if len(content) > 2 && content[0] == 0x1f && content[1] == 0x8b {
		gz, err := gzip.NewReader(bytes.NewReader(content))
		if err != nil {
			return fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		if content, err = io.ReadAll(gz); err != nil {
			return fmt.Errorf("gzip: %w", err)
		}
	}

	dec := xml.NewDecoder(bytes.NewReader(content))
	dec.CharsetReader = charset.NewReaderLabel
	dec.Strict = false

	var (
		stack []string
		root  string
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("parse sitemap: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if root == "" {
				root = t.Name.Local
				if root != "urlset" && root != "sitemapindex" {
					return fmt.Errorf("parse sitemap: unexpected root element <%s>", root)
				}
			}
			parent := ""
			if len(stack) > 0 {
				parent = stack[len(stack)-1]
			}
			if t.Name.Local == "loc" && (parent == "url" || parent == "sitemap") {
				var loc string
				if err := dec.DecodeElement(&loc, &t); err != nil {
					return fmt.Errorf("parse sitemap: %w", err)
				}
				if loc = strings.TrimSpace(loc); loc == "" {
					continue
				}
				if err := fn(parent, loc); err != nil {
					return err
				}
				continue
			}
			stack = append(stack, t.Name.Local)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if root == "" {
		return errors.New("parse sitemap: empty document")
	}
	return nil
}
