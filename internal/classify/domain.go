package classify

import (
	"net/url"
	"strings"
)

// NormalizeDomain reduces user input such as "https://www.Example.com/blog/"
// to a bare lowercase host ("example.com").
func NormalizeDomain(raw string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.LastIndex(d, "@"); i >= 0 {
		d = d[i+1:]
	}
	if host, _, ok := strings.Cut(d, ":"); ok {
		d = host
	}
	d = strings.TrimPrefix(d, "www.")
	d = strings.Trim(d, ".")
	if d == "" {
		return "", ErrEmptyDomain
	}
	return d, nil
}

// Slug returns the path of rawURL without query string, fragment or
// trailing slash. The site root yields "".
func Slug(rawURL string) string {
	if u, err := url.Parse(strings.TrimSpace(rawURL)); err == nil && u.Host != "" {
		return strings.TrimRight(u.EscapedPath(), "/")
	}

	// Unparseable input: strip scheme and host by hand.
	s := strings.TrimSpace(rawURL)
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
		if j := strings.Index(s, "/"); j >= 0 {
			s = s[j:]
		} else {
			s = ""
		}
	}
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimRight(s, "/")
}
