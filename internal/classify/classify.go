// Package classify decides whether a URL harvested from a sitemap is in-scope
// article content. Every predicate is pure: the same input always yields the
// same answer and no state is kept between calls.
package classify

import (
	"errors"
	"net/url"
	"strings"
)

// ErrEmptyDomain is returned by NormalizeDomain when nothing usable remains.
var ErrEmptyDomain = errors.New("classify: domain is empty")

// DefaultDeniedLocales lists language codes whose pages are dropped.
var DefaultDeniedLocales = []string{
	"pt", "es", "de", "fr", "it", "ja", "ko", "zh", "ru", "ar", "pl", "tr",
	"sv", "da", "fi", "no", "cs", "hu", "ro", "uk", "el", "he", "vi", "th",
	"id", "ms", "hi", "nl", "br", "jp", "kr", "cn", "ptbr",
}

// DefaultAllowedLocales always pass, even if a denied rule would match.
var DefaultAllowedLocales = []string{"en", "en-us", "en-gb"}

// DefaultLocaleParams are query keys that carry a language code.
var DefaultLocaleParams = []string{"lang", "locale", "language", "hl"}

// DefaultLocalePatterns are localized section names that do not follow the
// two-letter convention.
var DefaultLocalePatterns = []string{
	"/blog-pt/", "/blog-es/", "/blog-de/", "/blog-fr/",
	"/recursos/", "/ressources/", "/ressourcen/", "/risorse/",
}

// DefaultSkipPatterns match archive, commerce, admin, asset and machine endpoints.
var DefaultSkipPatterns = []string{
	"/tag/", "/category/", "/author/", "/page/", "/feed/",
	"/cart/", "/checkout/", "/my-account/", "/account/",
	"/wp-admin/", "/wp-content/", "/wp-includes/", "/cdn-cgi/", "/.well-known/",
	"/assets/", "/static/",
	"/robots", "/sitemap",
}

// Options configures a Classifier. Empty slices fall back to the defaults.
type Options struct {
	DeniedLocales  []string
	AllowedLocales []string
	LocaleParams   []string
	LocalePatterns []string
	SkipPatterns   []string
}

// Classifier holds the canonical filter lists.
type Classifier struct {
	denied         map[string]struct{}
	allowed        map[string]struct{}
	params         []string
	localePatterns []string
	skipPatterns   []string
}

// New builds a Classifier from opts.
func New(opts Options) *Classifier {
	if len(opts.DeniedLocales) == 0 {
		opts.DeniedLocales = DefaultDeniedLocales
	}
	if len(opts.AllowedLocales) == 0 {
		opts.AllowedLocales = DefaultAllowedLocales
	}
	if len(opts.LocaleParams) == 0 {
		opts.LocaleParams = DefaultLocaleParams
	}
	if opts.LocalePatterns == nil {
		opts.LocalePatterns = DefaultLocalePatterns
	}
	if len(opts.SkipPatterns) == 0 {
		opts.SkipPatterns = DefaultSkipPatterns
	}

	return &Classifier{
		denied:         toSet(opts.DeniedLocales),
		allowed:        toSet(opts.AllowedLocales),
		params:         lowerAll(opts.LocaleParams),
		localePatterns: lowerAll(opts.LocalePatterns),
		skipPatterns:   lowerAll(opts.SkipPatterns),
	}
}

var defaultClassifier = New(Options{})

// Default returns the classifier built from the default lists.
func Default() *Classifier {
	return defaultClassifier
}

// IsSitemapReference reports whether rawURL points at a machine-readable
// sitemap rather than a content page.
func (c *Classifier) IsSitemapReference(rawURL string) bool {
	return strings.Contains(strings.ToLower(rawURL), ".xml")
}

// IsExcludedContentPath reports whether rawURL matches the skip list.
func (c *Classifier) IsExcludedContentPath(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, p := range c.skipPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// IsNonTargetLocale reports whether rawURL serves a denied language, judged by
// path segments, locale query parameters and known localized section names.
func (c *Classifier) IsNonTargetLocale(rawURL string) bool {
	lower := strings.ToLower(strings.TrimSpace(rawURL))

	for _, p := range c.localePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}

	u, err := url.Parse(lower)
	if err != nil {
		return c.pathDenied(lower)
	}

	if c.pathDenied(u.Path) {
		return true
	}

	q := u.Query()
	for _, key := range c.params {
		for _, v := range q[key] {
			if c.codeDenied(v) {
				return true
			}
		}
	}
	return false
}

// Keep reports whether rawURL should be emitted as a page record.
func (c *Classifier) Keep(rawURL string) bool {
	return !c.IsSitemapReference(rawURL) &&
		!c.IsExcludedContentPath(rawURL) &&
		!c.IsNonTargetLocale(rawURL)
}

func (c *Classifier) pathDenied(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "" {
			continue
		}
		if c.codeDenied(seg) {
			return true
		}
	}
	return false
}

// codeDenied matches a bare code ("pt") or a region pair ("pt-br", "es_mx").
// Longer slugs such as "go-to" never match because the language part must be
// in the denylist.
func (c *Classifier) codeDenied(code string) bool {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return false
	}
	if _, ok := c.allowed[code]; ok {
		return false
	}
	if _, ok := c.denied[code]; ok {
		return true
	}

	lang, region, ok := splitRegion(code)
	if !ok {
		return false
	}
	if _, allowed := c.allowed[lang+"-"+region]; allowed {
		return false
	}
	_, denied := c.denied[lang]
	return denied
}

func splitRegion(code string) (string, string, bool) {
	if len(code) != 5 || (code[2] != '-' && code[2] != '_') {
		return "", "", false
	}
	lang, region := code[:2], code[3:]
	if !isAlpha(lang) || !isAlpha(region) {
		return "", "", false
	}
	return lang, region, true
}

func isAlpha(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 'a' || s[i] > 'z' {
			return false
		}
	}
	return true
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// IsSitemapReference applies the default classifier.
func IsSitemapReference(rawURL string) bool { return defaultClassifier.IsSitemapReference(rawURL) }

// IsExcludedContentPath applies the default classifier.
func IsExcludedContentPath(rawURL string) bool {
	return defaultClassifier.IsExcludedContentPath(rawURL)
}

// IsNonTargetLocale applies the default classifier.
func IsNonTargetLocale(rawURL string) bool { return defaultClassifier.IsNonTargetLocale(rawURL) }
