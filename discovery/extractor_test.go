package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/newsledger/fingerprint"
	"github.com/pevans/newsledger/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 19, 12, 0, 0, 0, time.UTC)

func parseDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

// TestExtractArticle_Selectors verifies configured selectors are used
func TestExtractArticle_Selectors(t *testing.T) {
	doc := parseDoc(t, `
	<html>
		<head><title>Page Title</title></head>
		<body>
			<h1 class="headline">  Article   Title </h1>
			<div class="story">
				<p>First   paragraph.</p>
				<p>Second
				paragraph.</p>
			</div>
			<span class="date">15/03/2025</span>
		</body>
	</html>`)

	config := scraper.ArticleConfig{
		TitleSelector:   "h1.headline",
		ContentSelector: ".story",
		DateSelector:    ".date",
		DateFormat:      "02/01/2006",
	}

	article := ExtractArticle(doc, config, "https://example.com/a", fixedNow)

	assert.Equal(t, "Article Title", article.Title)
	assert.Equal(t, "First paragraph.\n\nSecond paragraph.", article.Content)
	require.NotNil(t, article.PublishedAt)
	assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), *article.PublishedAt)
}

// TestExtractArticle_Generic verifies fallbacks when no selectors are set
func TestExtractArticle_Generic(t *testing.T) {
	doc := parseDoc(t, `
	<html>
		<head>
			<title>Site | Story</title>
			<meta property="og:title" content="Open Graph Title">
			<meta property="article:published_time" content="2025-03-14T09:30:00Z">
		</head>
		<body>
			<nav><p>Menu item</p></nav>
			<article>
				<p>Body one.</p>
				<script>var x = 1;</script>
				<p>Body two.</p>
			</article>
			<footer><p>Copyright</p></footer>
		</body>
	</html>`)

	article := ExtractArticle(doc, scraper.ArticleConfig{}, "https://example.com/a", fixedNow)

	assert.Equal(t, "Open Graph Title", article.Title)
	assert.Equal(t, "Body one.\n\nBody two.", article.Content)
	require.NotNil(t, article.PublishedAt)
	assert.Equal(t, time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC), *article.PublishedAt)
}

func TestExtractArticle_TitleFallbacks(t *testing.T) {
	doc := parseDoc(t, `<html><head><title>Only Title</title></head><body><p>x</p></body></html>`)
	assert.Equal(t, "Only Title", ExtractArticle(doc, scraper.ArticleConfig{}, "u", fixedNow).Title)

	doc = parseDoc(t, `<html><body><h1>Heading</h1><p>x</p></body></html>`)
	assert.Equal(t, "Heading", ExtractArticle(doc, scraper.ArticleConfig{}, "u", fixedNow).Title)

	doc = parseDoc(t, `<html><body><p>x</p></body></html>`)
	assert.Equal(t, "(No title)", ExtractArticle(doc, scraper.ArticleConfig{}, "u", fixedNow).Title)

	doc = parseDoc(t, `<html><body><h1>Heading</h1><p>x</p></body></html>`)
	config := scraper.ArticleConfig{TitleSelector: ".missing"}
	assert.Equal(t, "Heading", ExtractArticle(doc, config, "u", fixedNow).Title, "missing selector falls back")
}

func TestExtractArticle_DateSources(t *testing.T) {
	tests := []struct {
		name string
		html string
		want *time.Time
	}{
		{
			name: "time element",
			html: `<html><body><time datetime="2025-03-10T08:00:00+02:00">10 March</time><p>x</p></body></html>`,
			want: ptrTime(time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC)),
		},
		{
			name: "json-ld graph",
			html: `<html><head><script type="application/ld+json">
				{"@context":"https://schema.org","@graph":[{"@type":"WebPage"},{"@type":"NewsArticle","datePublished":"2025-02-01"}]}
				</script></head><body><p>x</p></body></html>`,
			want: ptrTime(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)),
		},
		{
			name: "future date rejected",
			html: `<html><head><meta property="article:published_time" content="2031-01-01T00:00:00Z"></head><body><p>x</p></body></html>`,
			want: nil,
		},
		{
			name: "ancient date rejected",
			html: `<html><head><meta property="article:published_time" content="1970-01-01T00:00:00Z"></head><body><p>x</p></body></html>`,
			want: nil,
		},
		{
			name: "unparseable date",
			html: `<html><body><time datetime="last tuesday">x</time><p>x</p></body></html>`,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			article := ExtractArticle(parseDoc(t, tt.html), scraper.ArticleConfig{}, "u", fixedNow)
			if tt.want == nil {
				assert.Nil(t, article.PublishedAt)
				return
			}
			require.NotNil(t, article.PublishedAt)
			assert.True(t, tt.want.Equal(*article.PublishedAt), "got %v", *article.PublishedAt)
		})
	}
}

func ptrTime(t time.Time) *time.Time { return &t }

func newExtractor(now time.Time) *ArticleExtractor {
	e := NewArticleExtractor(NewFetcher(FetcherConfig{}))
	e.now = func() time.Time { return now }
	return e
}

func TestArticleExtractor_Extract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><h1>Gaza health system</h1><article><p>Doctors warn.</p></article></body></html>`))
	}))
	defer server.Close()

	article, err := newExtractor(fixedNow).Extract(context.Background(), server.URL+"/a", "Example News", scraper.ArticleConfig{})
	require.NoError(t, err)

	assert.Equal(t, server.URL+"/a", article.CanonicalURL)
	assert.Equal(t, "Example News", article.SourceName)
	assert.Equal(t, "Gaza health system", article.Title)
	assert.Equal(t, "Doctors warn.", article.BodyText)
	assert.Equal(t, fingerprint.Of("Doctors warn."), article.Fingerprint)
	assert.Equal(t, fixedNow, article.PublishedAt, "no date on page falls back to extraction time")
}

func TestArticleExtractor_Extract_EmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><h1>Title only</h1><script>render()</script></body></html>`))
	}))
	defer server.Close()

	_, err := newExtractor(fixedNow).Extract(context.Background(), server.URL, "Example", scraper.ArticleConfig{})

	assert.ErrorIs(t, err, ErrExtraction)
	assert.ErrorIs(t, err, ErrEmptyBody)
}

func TestArticleExtractor_Extract_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := newExtractor(fixedNow).Extract(context.Background(), server.URL, "Example", scraper.ArticleConfig{})

	assert.ErrorIs(t, err, ErrExtraction)
}
