// Package newsledger runs the crawl pipeline: discover article links from
// each source, extract and fingerprint new articles, persist them
// idempotently and optionally anchor their fingerprints to a ledger.
package newsledger

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/newsledger/articles"
	"github.com/pevans/newsledger/discovery"
	"github.com/pevans/newsledger/fingerprint"
	"github.com/pevans/newsledger/ledger"
	"github.com/pevans/newsledger/logger"
	"github.com/pevans/newsledger/scraper"
	"github.com/pevans/newsledger/sources"
)

// LinkDiscoverer finds candidate article links for a source.
type LinkDiscoverer interface {
	Discover(ctx context.Context, source sources.Source) ([]discovery.CandidateLink, error)
}

// ArticleExtractor turns an article URL into an Article.
type ArticleExtractor interface {
	Extract(ctx context.Context, url, sourceName string, config scraper.ArticleConfig) (*articles.Article, error)
}

// CrawlerConfig holds the crawl tuning knobs.
type CrawlerConfig struct {
	// PolitenessDelay is the fixed pause between article fetches.
	PolitenessDelay time.Duration
	// Concurrency is the number of sources crawled in parallel.
	Concurrency int
	// AnchorSweepLimit bounds the pending-anchor retries run at the start
	// of a cycle. Zero disables the sweep.
	AnchorSweepLimit int
}

// DefaultCrawlerConfig returns the sequential, conservative defaults.
func DefaultCrawlerConfig() CrawlerConfig {
	return CrawlerConfig{
		PolitenessDelay:  2 * time.Second,
		Concurrency:      1,
		AnchorSweepLimit: articles.DefaultPendingLimit,
	}
}

// Crawler orchestrates crawl cycles. A nil anchor disables ledger anchoring.
type Crawler struct {
	catalog    *sources.Catalog
	discoverer LinkDiscoverer
	extractor  ArticleExtractor
	repo       articles.Repository
	anchor     ledger.Anchor
	log        logger.Interface
	config     CrawlerConfig

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewCrawler wires a crawler from its collaborators.
func NewCrawler(
	catalog *sources.Catalog,
	discoverer LinkDiscoverer,
	extractor ArticleExtractor,
	repo articles.Repository,
	anchor ledger.Anchor,
	log logger.Interface,
	config CrawlerConfig,
) *Crawler {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.PolitenessDelay < 0 {
		config.PolitenessDelay = 0
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Crawler{
		catalog:    catalog,
		discoverer: discoverer,
		extractor:  extractor,
		repo:       repo,
		anchor:     anchor,
		log:        log,
		config:     config,
		now:        time.Now,
		sleep:      sleepContext,
	}
}

// AnchorEnabled reports whether a ledger anchor is configured.
func (c *Crawler) AnchorEnabled() bool {
	return c.anchor != nil
}

// Repository returns the article store the crawler writes to.
func (c *Crawler) Repository() articles.Repository {
	return c.repo
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RunCycle crawls every source once. Failures are contained to the URL or
// source they occur in; the report records them. Cancelling ctx stops
// queued work and RunCycle returns once in-flight work has finished.
func (c *Crawler) RunCycle(ctx context.Context) *CycleReport {
	report := newCycleReport(c.now())
	list := c.catalog.List()

	c.log.Info("Crawl cycle starting",
		"sources", len(list),
		"concurrency", c.config.Concurrency,
		"anchoring", c.AnchorEnabled())

	// Sweep before discovery so only articles left unanchored by earlier
	// cycles are retried, at most once per cycle.
	if c.AnchorEnabled() && c.config.AnchorSweepLimit > 0 && ctx.Err() == nil {
		sweep, err := c.SweepPendingAnchors(ctx, c.config.AnchorSweepLimit)
		if err != nil {
			c.log.Error("Pending anchor sweep failed", "error", err)
		}
		report.Sweep = sweep
	}

	semaphore := make(chan struct{}, c.config.Concurrency)
	var wg sync.WaitGroup

sourceLoop:
	for _, source := range list {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break sourceLoop
		case semaphore <- struct{}{}:
		}

		wg.Add(1)
		go func(s sources.Source) {
			defer wg.Done()
			defer func() { <-semaphore }()
			c.crawlSource(ctx, s, report)
		}(source)
	}
	wg.Wait()

	report.FinishedAt = c.now()

	c.log.Info("Crawl cycle finished",
		"duration", report.Duration().String(),
		"sources", len(report.Sources),
		"failed_sources", report.FailedSources(),
		"urls", len(report.Outcomes),
		"persisted", report.Outcomes.Count(StateAnchorSkipped)+
			report.Outcomes.Count(StateAnchored)+
			report.Outcomes.Count(StateAnchorFailed),
		"skipped", report.Outcomes.Count(StateSkipped),
		"extract_failed", report.Outcomes.Count(StateExtractFailed),
		"persist_failed", report.Outcomes.Count(StatePersistFailed),
		"cancelled", ctx.Err() != nil)

	return report
}

// crawlSource discovers a source's links and walks each through the state
// machine in discovery order.
func (c *Crawler) crawlSource(ctx context.Context, source sources.Source, report *CycleReport) {
	log := c.log.With("source", source.ID)

	links, err := c.discoverer.Discover(ctx, source)
	report.addSource(SourceReport{
		SourceID: source.ID,
		Name:     source.Name,
		Links:    len(links),
		Err:      err,
	})
	if err != nil {
		log.Warn("Source discovery failed, skipping source for this cycle", "error", err)
		return
	}
	log.Info("Source discovered", "links", len(links))

	fetched := false
	for _, link := range links {
		if ctx.Err() != nil {
			log.Info("Cycle cancelled, skipping remaining links")
			return
		}

		outcome := c.processLink(ctx, source, link.URL, &fetched)
		report.addOutcome(outcome)
	}
}

// processLink runs one URL from Discovered to a terminal state. fetched
// tracks whether an article page was already requested from this source,
// so the politeness delay only separates real fetches.
func (c *Crawler) processLink(ctx context.Context, source sources.Source, articleURL string, fetched *bool) Outcome {
	outcome := Outcome{URL: articleURL, SourceID: source.ID}
	c.transition(outcome, StateDiscovered)

	exists, err := c.repo.Exists(ctx, articleURL)
	if err != nil {
		return c.finish(outcome, StatePersistFailed, err)
	}
	if exists {
		return c.finish(outcome, StateSkipped, nil)
	}

	if *fetched {
		if err := c.sleep(ctx, c.config.PolitenessDelay); err != nil {
			return c.finish(outcome, StateExtractFailed, err)
		}
	}
	*fetched = true

	c.transition(outcome, StateExtracting)
	article, err := c.extractor.Extract(ctx, articleURL, source.Name, source.Article)
	if err != nil {
		return c.finish(outcome, StateExtractFailed, err)
	}
	c.transition(outcome, StateExtracted)

	id, inserted, err := c.repo.InsertIfAbsent(ctx, article)
	if err != nil {
		return c.finish(outcome, StatePersistFailed, err)
	}
	outcome.ArticleID = id
	if !inserted {
		return c.finish(outcome, StateAlreadyPersisted, nil)
	}
	c.transition(outcome, StatePersisted)

	if !c.AnchorEnabled() {
		return c.finish(outcome, StateAnchorSkipped, nil)
	}

	article.ID = id
	return c.anchorArticle(ctx, outcome, article)
}

// anchorArticle submits the article's fingerprint and records the
// reference. A concurrent anchor with a different reference is a no-op.
func (c *Crawler) anchorArticle(ctx context.Context, outcome Outcome, article *articles.Article) Outcome {
	c.transition(outcome, StateAnchoring)

	ref, err := c.anchor.Submit(ctx, ledger.Payload{
		Fingerprint:  article.Fingerprint,
		CanonicalURL: article.CanonicalURL,
		PublishedAt:  article.PublishedAt,
	})
	if err != nil {
		return c.finish(outcome, StateAnchorFailed, err)
	}
	outcome.Reference = ref

	err = c.repo.AttachLedgerReference(ctx, article.ID, ref)
	if errors.Is(err, articles.ErrAlreadyAnchored) {
		c.log.Info("Article already anchored, keeping existing reference",
			"url", outcome.URL,
			"source", outcome.SourceID,
			"ledger_reference", ref)
		return c.finish(outcome, StateAnchored, nil)
	}
	if err != nil {
		return c.finish(outcome, StateAnchorFailed, err)
	}

	return c.finish(outcome, StateAnchored, nil)
}

func (c *Crawler) transition(o Outcome, state State) {
	c.log.Debug("Article state", "url", o.URL, "source", o.SourceID, "state", string(state))
}

// finish logs the terminal outcome and returns it.
func (c *Crawler) finish(o Outcome, state State, err error) Outcome {
	o.State = state
	o.Err = err

	fields := []any{"url", o.URL, "source", o.SourceID, "state", string(state)}
	if o.ArticleID != uuid.Nil {
		fields = append(fields, "article_id", o.ArticleID.String())
	}
	if o.Reference != "" {
		fields = append(fields, "ledger_reference", o.Reference)
	}

	if err != nil {
		o.Error = err.Error()
		fields = append(fields, "error", err)
	}
	if state.Failed() {
		c.log.Warn("Article outcome", fields...)
	} else {
		c.log.Info("Article outcome", fields...)
	}
	return o
}

// SweepPendingAnchors anchors up to limit persisted articles that have no
// ledger reference yet, oldest first. It returns ledger.ErrDisabled when no
// anchor is configured.
func (c *Crawler) SweepPendingAnchors(ctx context.Context, limit int) (Outcomes, error) {
	if !c.AnchorEnabled() {
		return nil, ledger.ErrDisabled
	}

	pending, err := c.repo.PendingAnchors(ctx, limit)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}

	c.log.Info("Anchoring pending articles", "count", len(pending))

	var outcomes Outcomes
	for i := range pending {
		if ctx.Err() != nil {
			break
		}
		article := &pending[i]
		outcome := Outcome{URL: article.CanonicalURL, SourceID: article.SourceName, ArticleID: article.ID}
		outcomes = append(outcomes, c.anchorArticle(ctx, outcome, article))
	}

	return outcomes, ctx.Err()
}

// LedgerCheck reports what the ledger holds for a verified fingerprint.
type LedgerCheck struct {
	Verified bool           `json:"verified"`
	Record   *ledger.Record `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Verification is the result of checking content against stored articles.
type Verification struct {
	Fingerprint string             `json:"content_fingerprint"`
	Verified    bool               `json:"verified"`
	Articles    []articles.Article `json:"articles"`
	// Ledger is set when a matching article was anchored and the anchor can
	// read the ledger back.
	Ledger *LedgerCheck `json:"ledger,omitempty"`
}

// Verify fingerprints content and reports the stored articles whose body
// hashes to the same value. When one of them carries a ledger reference the
// fingerprint is also looked up on the ledger; a lookup failure is reported
// in the result, not returned.
func (c *Crawler) Verify(ctx context.Context, content string) (*Verification, error) {
	fp := fingerprint.Of(content)

	matches, err := c.repo.FindByFingerprint(ctx, fp)
	if err != nil {
		return nil, err
	}

	result := &Verification{
		Fingerprint: fp,
		Verified:    len(matches) > 0,
		Articles:    matches,
	}

	verifier, ok := c.anchor.(ledger.Verifier)
	if !ok || !anyAnchored(matches) {
		return result, nil
	}

	check := &LedgerCheck{}
	record, err := verifier.Lookup(ctx, fp)
	switch {
	case errors.Is(err, ledger.ErrNotAnchored):
	case err != nil:
		c.log.Warn("Ledger lookup failed", "fingerprint", fp, "error", err)
		check.Error = err.Error()
	default:
		check.Verified = true
		check.Record = record
	}
	result.Ledger = check

	return result, nil
}

func anyAnchored(list []articles.Article) bool {
	for _, a := range list {
		if a.LedgerReference != nil {
			return true
		}
	}
	return false
}

// ErrInvalidURL is returned by Submit for a URL that is not absolute
// http(s).
var ErrInvalidURL = errors.New("invalid article url")

// Submit runs a single URL through the same pipeline as a crawled link. The
// URL is attributed to the catalog source on the same host, or to an ad hoc
// source named after the host using generic extraction.
func (c *Crawler) Submit(ctx context.Context, rawURL string) (Outcome, error) {
	canonical, err := discovery.Canonicalize(rawURL)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %q: %w", ErrInvalidURL, rawURL, err)
	}
	u, err := url.Parse(canonical)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %q: %w", ErrInvalidURL, rawURL, err)
	}

	source, ok := c.catalog.ForHost(u.Hostname())
	if !ok {
		source = sources.Source{ID: u.Hostname(), Name: u.Hostname()}
	}
	c.log.Info("Submitting article", "url", canonical, "source", source.ID, "catalog", ok)

	fetched := false
	return c.processLink(ctx, source, canonical, &fetched), nil
}
