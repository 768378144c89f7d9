package scraper

// Link discovery modes.
const (
	// ModeSelector applies a CSS selector to an HTML listing page and reads
	// each match's href.
	ModeSelector = "selector"
	// ModeFeed reads item links from an RSS or Atom document.
	ModeFeed = "feed"
)

// LinkRule defines how candidate article links are extracted from a
// source's listing page.
type LinkRule struct {
	Mode     string `yaml:"mode" json:"mode"`
	Selector string `yaml:"selector,omitempty" json:"selector,omitempty"`
	// Attribute holding the link, "href" when empty.
	Attribute string `yaml:"attribute,omitempty" json:"attribute,omitempty"`
}

// ArticleConfig defines how to extract fields from individual article
// pages. Every selector is optional; generic extraction is used for any
// field without one.
type ArticleConfig struct {
	TitleSelector   string `yaml:"title_selector,omitempty" json:"title_selector,omitempty"`
	ContentSelector string `yaml:"content_selector,omitempty" json:"content_selector,omitempty"`
	DateSelector    string `yaml:"date_selector,omitempty" json:"date_selector,omitempty"`
	DateFormat      string `yaml:"date_format,omitempty" json:"date_format,omitempty"` // Go time layout
}

// NewSelectorRule creates a selector-mode link rule.
func NewSelectorRule(selector string) LinkRule {
	return LinkRule{
		Mode:      ModeSelector,
		Selector:  selector,
		Attribute: "href",
	}
}

// EffectiveMode returns the rule's mode, defaulting to ModeSelector.
func (r LinkRule) EffectiveMode() string {
	if r.Mode == "" {
		return ModeSelector
	}
	return r.Mode
}

// EffectiveAttribute returns the link attribute, defaulting to href.
func (r LinkRule) EffectiveAttribute() string {
	if r.Attribute == "" {
		return "href"
	}
	return r.Attribute
}
