package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/newsledger/articles"
	"github.com/pevans/newsledger/fingerprint"
	"github.com/pevans/newsledger/scraper"
)

// ErrExtraction matches every *ExtractionError.
var ErrExtraction = errors.New("extraction failure")

// ErrEmptyBody is the cause recorded when a page yields no body text.
var ErrEmptyBody = errors.New("no body text extracted")

// ExtractionError reports that an article page could not be turned into an
// Article. The URL is skipped for the cycle.
type ExtractionError struct {
	URL string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %v", e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrExtraction) hold.
func (e *ExtractionError) Is(target error) bool { return target == ErrExtraction }

// ScrapedArticle holds the fields read from an article page before they
// become an Article.
type ScrapedArticle struct {
	Title       string
	Content     string
	URL         string
	PublishedAt *time.Time
}

// ArticleExtractor fetches article pages and extracts Articles.
type ArticleExtractor struct {
	fetcher *Fetcher
	now     func() time.Time
}

// NewArticleExtractor creates an extractor using the shared fetcher.
func NewArticleExtractor(fetcher *Fetcher) *ArticleExtractor {
	return &ArticleExtractor{fetcher: fetcher, now: time.Now}
}

// Extract fetches url and returns the article it holds. The publication
// timestamp falls back to the extraction time. Fetch failures, non-2xx
// responses and empty bodies yield an *ExtractionError.
func (e *ArticleExtractor) Extract(
	ctx context.Context,
	url, sourceName string,
	config scraper.ArticleConfig,
) (*articles.Article, error) {
	body, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, &ExtractionError{URL: url, Err: err}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ExtractionError{URL: url, Err: fmt.Errorf("failed to parse HTML: %w", err)}
	}

	now := e.now()
	scraped := ExtractArticle(doc, config, url, now)
	if scraped.Content == "" {
		return nil, &ExtractionError{URL: url, Err: ErrEmptyBody}
	}

	publishedAt := now
	if scraped.PublishedAt != nil {
		publishedAt = *scraped.PublishedAt
	}

	return &articles.Article{
		CanonicalURL: url,
		SourceName:   sourceName,
		Title:        scraped.Title,
		BodyText:     scraped.Content,
		PublishedAt:  publishedAt,
		Fingerprint:  fingerprint.Of(scraped.Content),
	}, nil
}

// ExtractArticle reads title, body and publication date from a parsed page.
// Configured selectors win; generic page conventions are the fallback. now
// bounds acceptable publication dates. doc is modified: boilerplate elements
// are removed before body extraction.
func ExtractArticle(doc *goquery.Document, config scraper.ArticleConfig, articleURL string, now time.Time) *ScrapedArticle {
	article := &ScrapedArticle{URL: articleURL}

	// Dates first: JSON-LD lives in script tags that are stripped below.
	article.PublishedAt = extractDate(doc, config, now)
	article.Title = extractTitle(doc, config)

	doc.Find("script, style, noscript, nav, footer, aside, form, header nav").Remove()
	article.Content = extractBody(doc, config)

	return article
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func extractTitle(doc *goquery.Document, config scraper.ArticleConfig) string {
	if config.TitleSelector != "" {
		if title := normalizeSpace(doc.Find(config.TitleSelector).First().Text()); title != "" {
			return title
		}
	}

	if og, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		if title := normalizeSpace(og); title != "" {
			return title
		}
	}
	if title := normalizeSpace(doc.Find("h1").First().Text()); title != "" {
		return title
	}
	if title := normalizeSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return "(No title)"
}

// bodyContainers are tried in order when no content selector is set.
var bodyContainers = []string{
	`[itemprop="articleBody"]`,
	"article",
	"main",
}

func extractBody(doc *goquery.Document, config scraper.ArticleConfig) string {
	if config.ContentSelector != "" {
		if text := paragraphText(doc.Find(config.ContentSelector).First()); text != "" {
			return text
		}
	}

	for _, sel := range bodyContainers {
		if text := paragraphText(doc.Find(sel).First()); text != "" {
			return text
		}
	}

	return joinParagraphs(doc.Find("body p"))
}

// paragraphText returns the container's paragraphs joined by blank lines,
// or its whole normalized text when it has no <p> children.
func paragraphText(container *goquery.Selection) string {
	if container.Length() == 0 {
		return ""
	}
	if paragraphs := container.Find("p"); paragraphs.Length() > 0 {
		if text := joinParagraphs(paragraphs); text != "" {
			return text
		}
	}
	return normalizeSpace(container.Text())
}

func joinParagraphs(paragraphs *goquery.Selection) string {
	var parts []string
	paragraphs.Each(func(_ int, p *goquery.Selection) {
		if text := normalizeSpace(p.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n\n")
}

// dateLayouts are tried in order for dates found without a configured
// layout.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	"January 2, 2006",
	"2 January 2006",
	"Jan 2, 2006",
}

// minPublishDate rejects obviously wrong dates.
var minPublishDate = time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)

func plausibleDate(t time.Time, now time.Time) bool {
	return !t.Before(minPublishDate) && !t.After(now.Add(24*time.Hour))
}

func extractDate(doc *goquery.Document, config scraper.ArticleConfig, now time.Time) *time.Time {
	if config.DateSelector != "" && config.DateFormat != "" {
		sel := doc.Find(config.DateSelector).First()
		candidates := []string{sel.AttrOr("datetime", ""), sel.AttrOr("content", ""), normalizeSpace(sel.Text())}
		for _, c := range candidates {
			if c == "" {
				continue
			}
			if t, err := time.Parse(config.DateFormat, c); err == nil && plausibleDate(t, now) {
				return &t
			}
		}
	}

	var candidates []string
	for _, sel := range []string{
		`meta[property="article:published_time"]`,
		`meta[name="pubdate"]`,
		`meta[name="publish-date"]`,
		`meta[itemprop="datePublished"]`,
	} {
		if v, ok := doc.Find(sel).First().Attr("content"); ok {
			candidates = append(candidates, v)
		}
	}
	if v, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		candidates = append(candidates, v)
	}
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		if v := jsonLDDatePublished(s.Text()); v != "" {
			candidates = append(candidates, v)
		}
	})

	for _, c := range candidates {
		if t, ok := parseDate(c); ok && plausibleDate(t, now) {
			return &t
		}
	}
	return nil
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// jsonLDDatePublished finds the first datePublished value in a JSON-LD
// block, descending into arrays and @graph.
func jsonLDDatePublished(raw string) string {
	var data any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return ""
	}
	return findDatePublished(data)
}

func findDatePublished(v any) string {
	switch node := v.(type) {
	case map[string]any:
		if s, ok := node["datePublished"].(string); ok && s != "" {
			return s
		}
		for _, child := range node {
			if s := findDatePublished(child); s != "" {
				return s
			}
		}
	case []any:
		for _, child := range node {
			if s := findDatePublished(child); s != "" {
				return s
			}
		}
	}
	return ""
}
