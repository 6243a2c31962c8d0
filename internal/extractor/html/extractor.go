package html

import (
	"bytes"
	"fmt"
	"mime"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/custodia-labs/quire/internal/core/domain"
	"github.com/custodia-labs/quire/internal/core/ports/driven"
	"github.com/custodia-labs/quire/internal/urlnorm"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

// Defaults for text block filtering.
const (
	DefaultMinBlockChars    = 10
	DefaultMinDocumentChars = 50
	DefaultCategory         = "General"
)

// contentSelectors are tried in order to find the main content region.
var contentSelectors = []string{"article", ".entry-content", "main", "#content", "[role=main]", "body"}

// noiseSelector matches elements that never carry page content.
const noiseSelector = "script, style, noscript, nav, footer, header, aside, svg, form, iframe"

// blockSelector matches the elements whose text becomes paragraphs.
const blockSelector = "p, h2, h3, h4, li, td, blockquote, pre"

var (
	multiSpaces   = regexp.MustCompile(`[ \t\f\v\r]+`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
)

// Extractor turns HTML (or plain text) pages into Documents.
type Extractor struct {
	minBlockChars    int
	minDocumentChars int
}

// Option configures the extractor.
type Option func(*Extractor)

// WithMinDocumentChars sets the shortest text accepted as a document.
func WithMinDocumentChars(n int) Option {
	return func(e *Extractor) {
		if n >= 0 {
			e.minDocumentChars = n
		}
	}
}

// WithMinBlockChars sets the shortest text block kept.
func WithMinBlockChars(n int) Option {
	return func(e *Extractor) {
		if n >= 0 {
			e.minBlockChars = n
		}
	}
}

// New creates a new HTML extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		minBlockChars:    DefaultMinBlockChars,
		minDocumentChars: DefaultMinDocumentChars,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DocumentID returns the stable document identifier for a normalised URL.
func DocumentID(sourceURL string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(sourceURL)).String()
}

// Extract converts a raw page into a Document.
func (e *Extractor) Extract(page *domain.RawPage) (*domain.Document, error) {
	if page == nil {
		return nil, &domain.ExtractionError{Reason: "nil page"}
	}
	if !utf8.Valid(page.Content) {
		return nil, &domain.ExtractionError{URL: page.URL, Reason: "content is not valid UTF-8"}
	}

	var (
		title, text string
		sourceURL   = page.URL
	)

	switch mediaType(page.ContentType) {
	case "text/plain":
		text = cleanText(string(page.Content))
		title = titleFromURL(page.URL)
	case "", "text/html", "application/xhtml+xml":
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Content))
		if err != nil {
			return nil, &domain.ExtractionError{URL: page.URL, Reason: fmt.Sprintf("parse html: %v", err)}
		}
		if canonical := canonicalURL(doc, page.URL); canonical != "" {
			sourceURL = canonical
		}
		title = extractTitle(doc, page.URL)
		root := contentRoot(doc)
		root.Find(noiseSelector).Remove()
		text = e.extractText(root)
	default:
		return nil, &domain.ExtractionError{URL: page.URL, Reason: "unsupported content type " + page.ContentType}
	}

	if utf8.RuneCountInString(text) < e.minDocumentChars {
		return nil, &domain.ExtractionError{
			URL:    page.URL,
			Reason: fmt.Sprintf("only %d characters of text", utf8.RuneCountInString(text)),
		}
	}

	return &domain.Document{
		ID:        DocumentID(sourceURL),
		SourceURL: sourceURL,
		Title:     title,
		Category:  Category(sourceURL),
		Text:      text,
		FetchedAt: page.FetchedAt,
	}, nil
}

// contentRoot returns the first match of contentSelectors, or the whole document.
func contentRoot(doc *goquery.Document) *goquery.Selection {
	for _, sel := range contentSelectors {
		if found := doc.Find(sel).First(); found.Length() > 0 {
			return found
		}
	}
	return doc.Selection
}

// extractText returns root's text blocks joined by blank lines.
// A root without block elements falls back to its full text.
func (e *Extractor) extractText(root *goquery.Selection) string {
	var blocks []string
	root.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		// Nested blocks (li > p) are captured by the innermost element.
		if s.Find(blockSelector).Length() > 0 {
			return
		}
		block := collapse(s.Text())
		if utf8.RuneCountInString(block) <= e.minBlockChars {
			return
		}
		if n := len(blocks); n > 0 && blocks[n-1] == block {
			return
		}
		blocks = append(blocks, block)
	})

	if len(blocks) == 0 {
		return cleanText(root.Text())
	}
	return strings.Join(blocks, "\n\n")
}

// extractTitle prefers the first <h1>, then <title>, then the URL path.
func extractTitle(doc *goquery.Document, pageURL string) string {
	if h1 := collapse(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	if t := collapse(doc.Find("title").First().Text()); t != "" {
		return t
	}
	return titleFromURL(pageURL)
}

// canonicalURL returns the page's canonical link if it points at the same host.
func canonicalURL(doc *goquery.Document, pageURL string) string {
	href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	resolved, err := urlnorm.Resolve(pageURL, href)
	if err != nil || !urlnorm.SameHost(resolved, pageURL) {
		return ""
	}
	return resolved
}

// Category derives a display category from the first URL path segment,
// e.g. "/air-quality/delhi" becomes "Air Quality".
func Category(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return DefaultCategory
	}
	segment, _, _ := strings.Cut(strings.Trim(u.Path, "/"), "/")
	if segment == "" {
		return DefaultCategory
	}
	return titleCase(segment)
}

func titleFromURL(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return u.Hostname()
	}
	parts := strings.Split(path, "/")
	last := parts[len(parts)-1]
	if i := strings.LastIndex(last, "."); i > 0 {
		last = last[:i]
	}
	return titleCase(last)
}

func titleCase(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool { return r == '-' || r == '_' || unicode.IsSpace(r) })
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// collapse squeezes all whitespace runs to single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanText trims lines and collapses blank runs to one empty line.
func cleanText(s string) string {
	s = multiSpaces.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = multiNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}
