// Package discovery fetches source listing pages and article pages and turns
// them into candidate links and extracted articles.
package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/pevans/newsledger/scraper"
	"github.com/pevans/newsledger/sources"
)

// ErrDiscovery matches every *DiscoveryError.
var ErrDiscovery = errors.New("discovery failure")

// DiscoveryError reports that a source's listing could not be fetched or
// parsed. The source is skipped for the cycle.
type DiscoveryError struct {
	SourceID string
	URL      string
	Err      error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery failed for source %s (%s): %v", e.SourceID, e.URL, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrDiscovery) hold.
func (e *DiscoveryError) Is(target error) bool { return target == ErrDiscovery }

// CandidateLink is an absolute canonical article URL found on a listing
// page.
type CandidateLink struct {
	URL      string
	SourceID string
}

// LinkDiscoverer finds candidate article links on a source's listing page.
type LinkDiscoverer struct {
	fetcher *Fetcher
}

// NewLinkDiscoverer creates a discoverer using the shared fetcher.
func NewLinkDiscoverer(fetcher *Fetcher) *LinkDiscoverer {
	return &LinkDiscoverer{fetcher: fetcher}
}

// Discover fetches the source's listing page once and returns its candidate
// links in document order. On failure it returns no links and a
// *DiscoveryError. Calling it again fetches again.
func (d *LinkDiscoverer) Discover(ctx context.Context, source sources.Source) ([]CandidateLink, error) {
	fail := func(err error) ([]CandidateLink, error) {
		return nil, &DiscoveryError{SourceID: source.ID, URL: source.ListingURL, Err: err}
	}

	body, err := d.fetcher.Fetch(ctx, source.ListingURL)
	if err != nil {
		return fail(err)
	}

	var hrefs []string
	switch source.Links.EffectiveMode() {
	case scraper.ModeFeed:
		hrefs, err = FeedLinks(body)
		if err != nil {
			return fail(err)
		}
	default:
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return fail(fmt.Errorf("failed to parse HTML: %w", err))
		}
		hrefs = SelectorLinks(doc, source.Links)
	}

	urls := ResolveAll(source.ResolveBase(), hrefs)
	links := make([]CandidateLink, 0, len(urls))
	for _, u := range urls {
		links = append(links, CandidateLink{URL: u, SourceID: source.ID})
	}
	return links, nil
}

// SelectorLinks returns the raw link attribute of every element matching
// the rule's selector, in document order.
func SelectorLinks(doc *goquery.Document, rule scraper.LinkRule) []string {
	attr := rule.EffectiveAttribute()

	var hrefs []string
	doc.Find(rule.Selector).Each(func(_ int, s *goquery.Selection) {
		// A selector may land on a container rather than the anchor itself.
		if !s.Is("a") {
			if _, ok := s.Attr(attr); !ok {
				s = s.Find("a").First()
			}
		}
		if href, ok := s.Attr(attr); ok {
			hrefs = append(hrefs, href)
		}
	})
	return hrefs
}

// FeedLinks parses an RSS or Atom document and returns its item links.
func FeedLinks(data []byte) ([]string, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	hrefs := make([]string, 0, len(feed.Items))
	for _, item := range feed.Items {
		switch {
		case item.Link != "":
			hrefs = append(hrefs, item.Link)
		case len(item.Links) > 0:
			hrefs = append(hrefs, item.Links[0])
		}
	}
	return hrefs, nil
}

// ResolveAll resolves hrefs against base, dropping unresolvable ones and
// duplicates while keeping first-seen order.
func ResolveAll(base string, hrefs []string) []string {
	seen := make(map[string]struct{}, len(hrefs))
	out := make([]string, 0, len(hrefs))
	for _, href := range hrefs {
		u, ok := Resolve(base, href)
		if !ok {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
