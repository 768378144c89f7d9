package discovery

import (
	"errors"
	"net/url"
	"strings"
)

// trackingParams are query parameters that never affect page content.
var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"fbclid":       {},
	"gclid":        {},
	"gclsrc":       {},
	"dclid":        {},
	"msclkid":      {},
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

var errNotAbsolute = errors.New("url is not an absolute http(s) url")

// Canonicalize normalizes an absolute URL into the form used as an
// article's identity: scheme and host lowercased, default port and fragment
// removed, tracking parameters stripped. The path is kept byte for byte,
// including an empty path, a trailing slash and unescaped characters.
func Canonicalize(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", errNotAbsolute
	}

	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && port != defaultPorts[u.Scheme] {
		host = host + ":" + port
	}

	query := u.RawQuery
	if query != "" {
		values := u.Query()
		changed := false
		for key := range values {
			if _, tracking := trackingParams[strings.ToLower(key)]; tracking {
				values.Del(key)
				changed = true
			}
		}
		if changed {
			query = values.Encode()
		}
	}

	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	b.WriteString(host)
	b.WriteString(rawPath(rawURL))
	if query != "" {
		b.WriteByte('?')
		b.WriteString(query)
	}
	return b.String(), nil
}

// rawPath returns the path of an absolute URL exactly as written.
// url.URL re-escapes paths it cannot round-trip, so the path is cut from
// the input instead.
func rawPath(rawURL string) string {
	rest := rawURL
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	i := strings.IndexAny(rest, "/?#")
	if i < 0 {
		return ""
	}
	rest = rest[i:]
	if j := strings.IndexAny(rest, "?#"); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

// Resolve turns an href found on a page into a canonical absolute URL. The
// second result is false when the href cannot be resolved: empty,
// fragment-only, non-http(s) (mailto:, javascript:), or relative with an
// unusable base.
func Resolve(base, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	absolute := href
	if !ref.IsAbs() {
		baseURL, err := url.Parse(base)
		if err != nil || !baseURL.IsAbs() || baseURL.Host == "" {
			return "", false
		}
		absolute = baseURL.ResolveReference(ref).String()
	}

	canonical, err := Canonicalize(absolute)
	if err != nil {
		return "", false
	}
	return canonical, true
}
