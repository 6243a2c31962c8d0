package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/quire/internal/core/domain"
	"github.com/custodia-labs/quire/internal/core/ports/driven"
)

// Ensure PageStore implements the interface.
var _ driven.PageStore = (*PageStore)(nil)

// PageStore is an in-memory implementation of driven.PageStore.
type PageStore struct {
	mu       sync.RWMutex
	pages    map[string]domain.RawPage
	failures map[string]domain.FetchFailure
}

// NewPageStore creates a new in-memory page store.
func NewPageStore() *PageStore {
	return &PageStore{
		pages:    make(map[string]domain.RawPage),
		failures: make(map[string]domain.FetchFailure),
	}
}

// SavePage stores or replaces a page and clears any recorded failure for it.
func (s *PageStore) SavePage(_ context.Context, page *domain.RawPage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := *page
	p.Content = append([]byte(nil), page.Content...)
	s.pages[page.URL] = p
	delete(s.failures, page.URL)
	return nil
}

// GetPage retrieves a page by URL.
func (s *PageStore) GetPage(_ context.Context, url string) (*domain.RawPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pages[url]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

// HasPage reports whether a page is stored.
func (s *PageStore) HasPage(_ context.Context, url string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pages[url]
	return ok, nil
}

// ListPageURLs returns stored URLs sorted.
func (s *PageStore) ListPageURLs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	urls := make([]string, 0, len(s.pages))
	for u := range s.pages {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls, nil
}

// RecordFailure replaces the failure recorded for the URL.
func (s *PageStore) RecordFailure(_ context.Context, failure domain.FetchFailure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[failure.URL] = failure
	return nil
}

// ListFailures returns failures sorted by URL.
func (s *PageStore) ListFailures(_ context.Context) ([]domain.FetchFailure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.FetchFailure, 0, len(s.failures))
	for _, f := range s.failures {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}
