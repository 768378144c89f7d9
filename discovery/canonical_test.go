package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		base string
		href string
		want string
		ok   bool
	}{
		{"relative path", "https://example.com", "/news/x", "https://example.com/news/x", true},
		{"absolute passthrough", "https://example.com", "https://other.org/story/1?id=7", "https://other.org/story/1?id=7", true},
		{"relative to directory", "https://example.com/topics/palestine/", "story-1", "https://example.com/topics/palestine/story-1", true},
		{"protocol relative", "https://example.com", "//cdn.example.com/a", "https://cdn.example.com/a", true},
		{"fragment dropped", "https://example.com", "/news/x#comments", "https://example.com/news/x", true},
		{"tracking params dropped", "https://example.com", "/news/x?utm_source=tw&page=2", "https://example.com/news/x?page=2", true},
		{"host lowercased", "https://example.com", "https://WWW.Example.COM/News", "https://www.example.com/News", true},
		{"default port removed", "https://example.com", "https://example.com:443/a", "https://example.com/a", true},
		{"empty href", "https://example.com", "  ", "", false},
		{"fragment only", "https://example.com", "#top", "", false},
		{"mailto", "https://example.com", "mailto:desk@example.com", "", false},
		{"javascript", "https://example.com", "javascript:void(0)", "", false},
		{"relative with bad base", "not a url", "/news/x", "", false},
		{"relative with empty base", "", "/news/x", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(tt.base, tt.href)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalize(t *testing.T) {
	got, err := Canonicalize("HTTPS://Example.com")
	assert.NoError(t, err)
	assert.Equal(t, "https://example.com", got, "an empty path stays empty")

	got, err = Canonicalize("https://example.com/a/?b=1&fbclid=xyz")
	assert.NoError(t, err)
	assert.Equal(t, "https://example.com/a/?b=1", got, "trailing slash is kept")

	_, err = Canonicalize("/relative")
	assert.Error(t, err)

	_, err = Canonicalize("ftp://example.com/file")
	assert.Error(t, err)
}

func TestCanonicalize_PathPassthrough(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare host", "https://example.com", "https://example.com"},
		{"bare host with query", "https://example.com?page=2", "https://example.com?page=2"},
		{"root", "https://example.com/", "https://example.com/"},
		{"literal umlaut", "https://example.com/nachrichten/über-uns", "https://example.com/nachrichten/über-uns"},
		{"escaped umlaut", "https://example.com/nachrichten/%C3%BCber", "https://example.com/nachrichten/%C3%BCber"},
		{"encoded slash", "https://example.com/a%2Fb/c", "https://example.com/a%2Fb/c"},
		{"umlaut with tracking", "https://Example.com:443/ü?utm_source=x#top", "https://example.com/ü"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize(tt.in)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_AbsoluteHrefKeepsPath(t *testing.T) {
	got, ok := Resolve("https://example.com/news", "https://example.com/über")
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/über", got)
}

func TestResolveAll_DedupKeepsOrder(t *testing.T) {
	got := ResolveAll("https://example.com", []string{
		"/b", "/a", "https://example.com/b", "#x", "/c#frag", "/c",
	})

	assert.Equal(t, []string{
		"https://example.com/b",
		"https://example.com/a",
		"https://example.com/c",
	}, got)
}
