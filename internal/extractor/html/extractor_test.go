package html

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/quire/internal/core/domain"
)

const articlePage = `<!doctype html>
<html>
<head>
  <title>Winter Smog | Urban Emissions</title>
  <link rel="canonical" href="https://example.org/air-quality/winter-smog/">
  <style>body { color: red }</style>
</head>
<body>
  <header><div class="site-title">Site banner that is not the title</div></header>
  <nav><ul><li>Home page navigation link</li></ul></nav>
  <article>
    <h1>Winter Smog in the Indo-Gangetic Plain</h1>
    <p>Every winter, a blanket of smog settles across northern India.</p>
    <p>Short.</p>
    <h2>Why inversions matter so much</h2>
    <ul><li><p>Cold air traps pollutants near the surface overnight.</p></li></ul>
    <script>var tracking = "should never appear in text";</script>
  </article>
  <footer><p>Copyright notice that should be dropped</p></footer>
</body>
</html>`

func page(url, contentType, body string) *domain.RawPage {
	return &domain.RawPage{
		URL:         url,
		Content:     []byte(body),
		ContentType: contentType,
		StatusCode:  200,
		FetchedAt:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestExtract_Article(t *testing.T) {
	doc, err := New().Extract(page("https://example.org/air-quality/winter-smog", "text/html; charset=utf-8", articlePage))
	require.NoError(t, err)

	assert.Equal(t, "https://example.org/air-quality/winter-smog", doc.SourceURL)
	assert.Equal(t, DocumentID(doc.SourceURL), doc.ID)
	assert.Equal(t, "Winter Smog in the Indo-Gangetic Plain", doc.Title)
	assert.Equal(t, "Air Quality", doc.Category)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), doc.FetchedAt)

	assert.Equal(t, strings.Join([]string{
		"Every winter, a blanket of smog settles across northern India.",
		"Why inversions matter so much",
		"Cold air traps pollutants near the surface overnight.",
	}, "\n\n"), doc.Text)
}

func TestExtract_DropsBoilerplate(t *testing.T) {
	doc, err := New().Extract(page("https://example.org/a", "text/html", articlePage))
	require.NoError(t, err)

	assert.NotContains(t, doc.Text, "tracking")
	assert.NotContains(t, doc.Text, "Copyright")
	assert.NotContains(t, doc.Text, "navigation")
	assert.NotContains(t, doc.Text, "Short.")
}

func TestExtract_TitleInsideEntryHeader(t *testing.T) {
	body := `<html><head><title>Delhi – UrbanEmissions.Info</title></head><body>
<header class="site-header"><nav><p>Home About Contact and other navigation</p></nav></header>
<article>
  <header class="entry-header"><h1 class="entry-title">Delhi Air Quality</h1></header>
  <div class="entry-content">
    <p>` + strings.Repeat("Delhi sees its worst air between November and January. ", 2) + `</p>
  </div>
</article></body></html>`

	doc, err := New().Extract(page("https://example.org/cities/delhi", "text/html", body))
	require.NoError(t, err)

	assert.Equal(t, "Delhi Air Quality", doc.Title)
	assert.NotContains(t, doc.Text, "navigation")
	assert.Contains(t, doc.Text, "worst air")
}

func TestExtract_TitleFallsBackToTitleTag(t *testing.T) {
	body := `<html><head><title> Monsoon  Report </title></head><body><main>
<p>` + strings.Repeat("The monsoon washes particulate matter out of the air. ", 3) + `</p></main></body></html>`

	doc, err := New().Extract(page("https://example.org/reports/monsoon", "text/html", body))
	require.NoError(t, err)

	assert.Equal(t, "Monsoon Report", doc.Title)
	assert.Equal(t, "Reports", doc.Category)
}

func TestExtract_FallsBackToRegionText(t *testing.T) {
	body := `<html><body><div id="content"><div>` +
		strings.Repeat("Plain div text without paragraph markup. ", 3) +
		`</div></div></body></html>`

	doc, err := New().Extract(page("https://example.org/", "text/html", body))
	require.NoError(t, err)

	assert.Contains(t, doc.Text, "Plain div text without paragraph markup.")
	assert.Equal(t, DefaultCategory, doc.Category)
	assert.Equal(t, "example.org", doc.Title)
}

func TestExtract_CanonicalOnOtherHostIgnored(t *testing.T) {
	body := `<html><head><link rel="canonical" href="https://mirror.net/x"></head><body><p>` +
		strings.Repeat("Content that is long enough to keep. ", 3) + `</p></body></html>`

	doc, err := New().Extract(page("https://example.org/x", "text/html", body))
	require.NoError(t, err)

	assert.Equal(t, "https://example.org/x", doc.SourceURL)
}

func TestExtract_PlainText(t *testing.T) {
	body := "Line one of a plain text page   with spaces.\n\n\n\nLine two follows after blank lines."

	doc, err := New().Extract(page("https://example.org/notes/field-notes.txt", "text/plain", body))
	require.NoError(t, err)

	assert.Equal(t, "Line one of a plain text page with spaces.\n\nLine two follows after blank lines.", doc.Text)
	assert.Equal(t, "Field Notes", doc.Title)
}

func TestExtract_Errors(t *testing.T) {
	tests := []struct {
		name string
		page *domain.RawPage
		want string
	}{
		{"nil page", nil, "nil page"},
		{"too short", page("https://example.org/a", "text/html", "<p>tiny</p>"), "characters of text"},
		{"binary content type", page("https://example.org/a.pdf", "application/pdf", "%PDF-1.4"), "unsupported content type"},
		{"invalid utf8", page("https://example.org/a", "text/html", string([]byte{0xff, 0xfe, 0xfd})), "UTF-8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := New().Extract(tt.page)

			assert.Nil(t, doc)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrExtraction)
			assert.Contains(t, err.Error(), tt.want)
			assert.False(t, domain.IsRetryable(err))
		})
	}
}

func TestWithMinDocumentChars(t *testing.T) {
	doc, err := New(WithMinDocumentChars(0)).Extract(page("https://example.org/a", "text/html", "<p>tiny page text</p>"))
	require.NoError(t, err)
	assert.Equal(t, "tiny page text", doc.Text)
}

func TestCategory(t *testing.T) {
	assert.Equal(t, "Air Quality", Category("https://example.org/air-quality/delhi"))
	assert.Equal(t, "Publications", Category("https://example.org/publications"))
	assert.Equal(t, DefaultCategory, Category("https://example.org/"))
}

func TestDocumentID_Stable(t *testing.T) {
	assert.Equal(t, DocumentID("https://example.org/a"), DocumentID("https://example.org/a"))
	assert.NotEqual(t, DocumentID("https://example.org/a"), DocumentID("https://example.org/b"))
}
