package sources

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/pevans/newsledger/scraper"
	"gopkg.in/yaml.v3"
)

// ErrInvalidSource is returned when a catalog entry fails validation.
var ErrInvalidSource = errors.New("invalid source")

// Source is a news site crawled for articles. Sources are immutable for the
// duration of a run.
type Source struct {
	ID         string                `yaml:"id" json:"id"`
	Name       string                `yaml:"name" json:"name"`
	ListingURL string                `yaml:"listing_url" json:"listing_url"`
	BaseURL    string                `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Links      scraper.LinkRule      `yaml:"links" json:"links"`
	Article    scraper.ArticleConfig `yaml:"article,omitempty" json:"article,omitempty"`
}

// ResolveBase returns the URL relative links are resolved against: the
// configured base URL, or the listing URL when no base is set.
func (s Source) ResolveBase() string {
	if s.BaseURL != "" {
		return s.BaseURL
	}
	return s.ListingURL
}

// Validate checks that a source can be crawled.
func (s Source) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: id is empty", ErrInvalidSource)
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: %s: name is empty", ErrInvalidSource, s.ID)
	}
	if err := validateAbsolute(s.ListingURL); err != nil {
		return fmt.Errorf("%w: %s: listing_url: %v", ErrInvalidSource, s.ID, err)
	}
	if s.BaseURL != "" {
		if err := validateAbsolute(s.BaseURL); err != nil {
			return fmt.Errorf("%w: %s: base_url: %v", ErrInvalidSource, s.ID, err)
		}
	}

	switch s.Links.EffectiveMode() {
	case scraper.ModeSelector:
		if strings.TrimSpace(s.Links.Selector) == "" {
			return fmt.Errorf("%w: %s: selector mode requires links.selector", ErrInvalidSource, s.ID)
		}
	case scraper.ModeFeed:
	default:
		return fmt.Errorf("%w: %s: unknown link mode %q", ErrInvalidSource, s.ID, s.Links.Mode)
	}

	if s.Article.DateSelector != "" && s.Article.DateFormat == "" {
		return fmt.Errorf("%w: %s: article.date_selector requires article.date_format", ErrInvalidSource, s.ID)
	}

	return nil
}

func validateAbsolute(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must use http or https scheme")
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

// Catalog is the validated, read-only list of sources for a run.
type Catalog struct {
	sources []Source
	byID    map[string]int
}

// catalogFile is the on-disk shape of a catalog.
type catalogFile struct {
	Sources []Source `yaml:"sources"`
}

// NewCatalog validates the given sources and builds a catalog. Ids must be
// unique and at least one source is required.
func NewCatalog(list []Source) (*Catalog, error) {
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: catalog has no sources", ErrInvalidSource)
	}

	c := &Catalog{
		sources: make([]Source, 0, len(list)),
		byID:    make(map[string]int, len(list)),
	}
	for _, s := range list {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidSource, s.ID)
		}
		c.byID[s.ID] = len(c.sources)
		c.sources = append(c.sources, s)
	}

	return c, nil
}

// LoadCatalog reads and validates a YAML catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse sources file: %w", err)
	}

	return NewCatalog(file.Sources)
}

// List returns the sources in catalog order.
func (c *Catalog) List() []Source {
	out := make([]Source, len(c.sources))
	copy(out, c.sources)
	return out
}

// Get looks up a source by id.
func (c *Catalog) Get(id string) (Source, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Source{}, false
	}
	return c.sources[i], true
}

// ForHost returns the first source whose listing or base URL is on host.
// A leading "www." is ignored on both sides.
func (c *Catalog) ForHost(host string) (Source, bool) {
	host = trimWWW(host)
	for _, s := range c.sources {
		for _, raw := range []string{s.ListingURL, s.BaseURL} {
			if raw == "" {
				continue
			}
			u, err := url.Parse(raw)
			if err == nil && trimWWW(u.Hostname()) == host {
				return s, true
			}
		}
	}
	return Source{}, false
}

func trimWWW(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

// Len returns the number of sources.
func (c *Catalog) Len() int {
	return len(c.sources)
}

// Only returns a catalog restricted to the given ids, in catalog order.
func (c *Catalog) Only(ids ...string) (*Catalog, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := c.byID[id]; !ok {
			return nil, fmt.Errorf("unknown source %q", id)
		}
		want[id] = true
	}

	var list []Source
	for _, s := range c.sources {
		if want[s.ID] {
			list = append(list, s)
		}
	}
	return NewCatalog(list)
}

// DefaultCatalog returns the built-in trusted sources.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(defaultSources)
	if err != nil {
		panic(fmt.Sprintf("built-in catalog is invalid: %v", err))
	}
	return c
}

var defaultSources = []Source{
	{
		ID:         "aljazeera",
		Name:       "Al Jazeera",
		ListingURL: "https://www.aljazeera.com/tag/palestine/",
		BaseURL:    "https://www.aljazeera.com",
		Links:      scraper.NewSelectorRule("article.gc a"),
		Article: scraper.ArticleConfig{
			TitleSelector:   "header h1",
			ContentSelector: ".wysiwyg",
		},
	},
	{
		ID:         "middleeasteye",
		Name:       "Middle East Eye",
		ListingURL: "https://www.middleeasteye.net/topics/palestine",
		BaseURL:    "https://www.middleeasteye.net",
		Links:      scraper.NewSelectorRule("article.teaser h3 a"),
	},
	{
		ID:         "electronicintifada",
		Name:       "Electronic Intifada",
		ListingURL: "https://electronicintifada.net/",
		Links:      scraper.NewSelectorRule("h2.node__title a"),
	},
	{
		ID:         "mondoweiss",
		Name:       "Mondoweiss",
		ListingURL: "https://mondoweiss.net/topic/palestine/",
		Links:      scraper.NewSelectorRule("h2.entry-title a"),
	},
	{
		ID:         "palestinechronicle",
		Name:       "Palestine Chronicle",
		ListingURL: "https://www.palestinechronicle.com/",
		Links:      scraper.NewSelectorRule("h3.entry-title a"),
	},
}
