package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSelectorRule(t *testing.T) {
	rule := NewSelectorRule("article.gc a")

	assert.Equal(t, ModeSelector, rule.Mode)
	assert.Equal(t, "article.gc a", rule.Selector)
	assert.Equal(t, "href", rule.Attribute)
}

func TestLinkRule_Defaults(t *testing.T) {
	var rule LinkRule

	assert.Equal(t, ModeSelector, rule.EffectiveMode())
	assert.Equal(t, "href", rule.EffectiveAttribute())

	rule = LinkRule{Mode: ModeFeed, Attribute: "data-url"}
	assert.Equal(t, ModeFeed, rule.EffectiveMode())
	assert.Equal(t, "data-url", rule.EffectiveAttribute())
}
