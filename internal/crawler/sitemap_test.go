package crawler

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/quire/internal/core/domain"
	"github.com/custodia-labs/quire/internal/retry"
)

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
}

// sitemapServer serves fixed bodies by path and counts requests.
type sitemapServer struct {
	*httptest.Server
	mu     sync.Mutex
	bodies map[string]string
	hits   map[string]int
}

func newSitemapServer(t *testing.T) *sitemapServer {
	t.Helper()
	s := &sitemapServer{bodies: make(map[string]string), hits: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		body, ok := s.bodies[r.URL.Path]
		s.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *sitemapServer) set(path, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodies[path] = body
}

func (s *sitemapServer) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func urlset(locs ...string) string {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9" xmlns:image="http://www.google.com/schemas/sitemap-image/1.1">`)
	for _, l := range locs {
		fmt.Fprintf(&b, "<url><loc>%s</loc><lastmod>2024-01-01</lastmod></url>", l)
	}
	b.WriteString("</urlset>")
	return b.String()
}

func sitemapIndex(locs ...string) string {
	var b bytes.Buffer
	b.WriteString(`<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	for _, l := range locs {
		fmt.Fprintf(&b, "<sitemap><loc>%s</loc></sitemap>", l)
	}
	b.WriteString("</sitemapindex>")
	return b.String()
}

func collect(t *testing.T, s *Sitemap, root string) ([]string, error) {
	t.Helper()
	urls, errs := s.URLs(context.Background(), root)
	var out []string
	for u := range urls {
		out = append(out, u)
	}
	return out, <-errs
}

func TestSitemap_URLSet(t *testing.T) {
	srv := newSitemapServer(t)
	srv.set("/sitemap.xml", urlset(
		srv.URL+"/a",
		srv.URL+"/b/",
		srv.URL+"/a/",
		srv.URL+"/c#section",
		"mailto:someone@example.org",
	))

	got, err := collect(t, NewSitemap(NewHTTPFetcher(), WithSitemapRetry(fastRetry())), srv.URL+"/sitemap.xml")
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/a", srv.URL + "/b", srv.URL + "/c"}, got)
}

func TestSitemap_IgnoresImageLocations(t *testing.T) {
	srv := newSitemapServer(t)
	srv.set("/sitemap.xml", `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9" xmlns:image="http://www.google.com/schemas/sitemap-image/1.1">
<url><loc>`+srv.URL+`/page</loc><image:image><image:loc>`+srv.URL+`/img.png</image:loc></image:image></url>
</urlset>`)

	got, err := collect(t, NewSitemap(NewHTTPFetcher()), srv.URL+"/sitemap.xml")
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/page"}, got)
}

func TestSitemap_FollowsIndex(t *testing.T) {
	srv := newSitemapServer(t)
	srv.set("/index.xml", sitemapIndex(srv.URL+"/pages.xml", srv.URL+"/posts.xml", srv.URL+"/pages.xml"))
	srv.set("/pages.xml", urlset(srv.URL+"/about", srv.URL+"/contact"))
	srv.set("/posts.xml", urlset(srv.URL+"/post-1", srv.URL+"/about"))

	got, err := collect(t, NewSitemap(NewHTTPFetcher()), srv.URL+"/index.xml")
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/about", srv.URL + "/contact", srv.URL + "/post-1"}, got)
	assert.Equal(t, 1, srv.count("/pages.xml"))
}

func TestSitemap_DepthLimit(t *testing.T) {
	srv := newSitemapServer(t)
	srv.set("/l0.xml", sitemapIndex(srv.URL+"/l1.xml"))
	srv.set("/l1.xml", sitemapIndex(srv.URL+"/l2.xml"))
	srv.set("/l2.xml", urlset(srv.URL+"/deep"))

	got, err := collect(t, NewSitemap(NewHTTPFetcher(), WithMaxDepth(1)), srv.URL+"/l0.xml")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, srv.count("/l2.xml"))

	got, err = collect(t, NewSitemap(NewHTTPFetcher(), WithMaxDepth(2)), srv.URL+"/l0.xml")
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/deep"}, got)
}

func TestSitemap_NestedFailureIsSkipped(t *testing.T) {
	srv := newSitemapServer(t)
	srv.set("/index.xml", sitemapIndex(srv.URL+"/missing.xml", srv.URL+"/pages.xml"))
	srv.set("/pages.xml", urlset(srv.URL+"/ok"))

	got, err := collect(t, NewSitemap(NewHTTPFetcher(), WithSitemapRetry(fastRetry())), srv.URL+"/index.xml")
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/ok"}, got)
	assert.Equal(t, 3, srv.count("/missing.xml"))
}

func TestSitemap_RootUnreachable(t *testing.T) {
	srv := newSitemapServer(t)

	got, err := collect(t, NewSitemap(NewHTTPFetcher(), WithSitemapRetry(fastRetry())), srv.URL+"/sitemap.xml")
	assert.Empty(t, got)

	var fe *domain.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
}

func TestSitemap_RootNotASitemap(t *testing.T) {
	srv := newSitemapServer(t)
	srv.set("/sitemap.xml", "<html><body>not a sitemap</body></html>")

	_, err := collect(t, NewSitemap(NewHTTPFetcher()), srv.URL+"/sitemap.xml")
	assert.ErrorIs(t, err, domain.ErrFetch)
}

func TestSitemap_InvalidRootURL(t *testing.T) {
	_, err := collect(t, NewSitemap(NewHTTPFetcher()), "ftp://example.org/sitemap.xml")

	var fe *domain.FetchError
	require.ErrorAs(t, err, &fe)
	assert.False(t, fe.Retryable())
}

func TestSitemap_CancelledContextStopsEnumeration(t *testing.T) {
	srv := newSitemapServer(t)
	srv.set("/sitemap.xml", urlset(srv.URL+"/a", srv.URL+"/b", srv.URL+"/c"))

	ctx, cancel := context.WithCancel(context.Background())
	urls, errs := NewSitemap(NewHTTPFetcher()).URLs(ctx, srv.URL+"/sitemap.xml")
	<-urls
	cancel()
	assert.ErrorIs(t, <-errs, context.Canceled)
	for range urls {
	}
}

func TestParseSitemap_Gzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, _ = gz.Write([]byte(urlset("https://example.org/x")))
	require.NoError(t, gz.Close())

	var locs []string
	err := parseSitemap(buf.Bytes(), func(kind, loc string) error {
		assert.Equal(t, "url", kind)
		locs = append(locs, loc)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.org/x"}, locs)
}

func TestParseSitemap_Empty(t *testing.T) {
	err := parseSitemap(nil, func(string, string) error { return nil })
	assert.Error(t, err)
}
