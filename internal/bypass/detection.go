// Package bypass recognises bot-protection challenge pages so that a blocked
// sitemap request is treated as empty instead of parsed.
package bypass

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Signal is the part of an HTTP response the detectors look at.
type Signal struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Detector examines a response to determine if a bot protection mechanism
// blocked or challenged the request.
type Detector func(sig Signal) (detected bool, source string)

// DefaultDetectors returns the standard list of bot protection detectors.
func DefaultDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
		detectChallengeTitle,
	}
}

// Analyze runs sig through detectors and returns the first match.
func Analyze(sig Signal, detectors []Detector) (bool, string) {
	for _, d := range detectors {
		if detected, source := d(sig); detected {
			return true, source
		}
	}
	return false, ""
}

func blocked(status int) bool {
	return status == http.StatusForbidden || status == http.StatusServiceUnavailable || status == http.StatusTooManyRequests
}

// detectCloudflare looks for common Cloudflare challenge/block signatures.
func detectCloudflare(sig Signal) (bool, string) {
	if !blocked(sig.StatusCode) {
		return false, ""
	}
	if strings.Contains(strings.ToLower(sig.Header.Get("Server")), "cloudflare") {
		return true, "Cloudflare"
	}
	if sig.Header.Get("Cf-Mitigated") == "challenge" {
		return true, "Cloudflare"
	}
	if bytes.Contains(sig.Body, []byte("cf-browser-verification")) ||
		bytes.Contains(sig.Body, []byte("cf-turnstile")) ||
		bytes.Contains(sig.Body, []byte("Attention Required! | Cloudflare")) {
		return true, "Cloudflare"
	}
	return false, ""
}

// detectAkamai looks for Akamai Bot Manager signatures.
func detectAkamai(sig Signal) (bool, string) {
	if sig.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(strings.ToLower(sig.Header.Get("Server")), "akamai") {
		return true, "Akamai"
	}
	// Generic "Reference #" block page.
	if bytes.Contains(sig.Body, []byte("Reference #")) && bytes.Contains(sig.Body, []byte("Access Denied")) {
		return true, "Akamai"
	}
	return false, ""
}

func detectDataDome(sig Signal) (bool, string) {
	if sig.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(strings.ToLower(sig.Header.Get("Server")), "datadome") ||
		sig.Header.Get("X-DataDome") != "" || sig.Header.Get("X-DataDome-Response") != "" {
		return true, "DataDome"
	}
	if bytes.Contains(sig.Body, []byte("geo.captcha-delivery.com")) {
		return true, "DataDome"
	}
	return false, ""
}

// detectPerimeterX looks for PerimeterX (HUMAN) signatures.
func detectPerimeterX(sig Signal) (bool, string) {
	if sig.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if sig.Header.Get("X-Px-Captcha") != "" {
		return true, "PerimeterX"
	}
	if bytes.Contains(sig.Body, []byte("client.perimeterx.net")) ||
		bytes.Contains(sig.Body, []byte("px-captcha")) ||
		bytes.Contains(sig.Body, []byte("_pxBlock")) {
		return true, "PerimeterX"
	}
	return false, ""
}

// challengeTitles are interstitial page titles served with a 200 status by
// several WAFs. Matched case-insensitively as prefixes.
var challengeTitles = []struct{ prefix, source string }{
	{"just a moment", "Cloudflare"},
	{"attention required! | cloudflare", "Cloudflare"},
	{"pardon our interruption", "Imperva"},
	{"ddos-guard", "DDoS-Guard"},
	{"access denied", "Generic"},
	{"are you a robot", "Generic"},
}

// detectChallengeTitle catches challenge pages whatever their status code.
// Sitemaps are XML, so any HTML document is inspected for a known title.
func detectChallengeTitle(sig Signal) (bool, string) {
	if !looksLikeHTML(sig) {
		return false, ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(sig.Body))
	if err != nil {
		return false, ""
	}
	title := strings.ToLower(strings.TrimSpace(doc.Find("title").First().Text()))
	if title == "" {
		return false, ""
	}
	for _, ct := range challengeTitles {
		if strings.HasPrefix(title, ct.prefix) {
			return true, ct.source
		}
	}
	return false, ""
}

func looksLikeHTML(sig Signal) bool {
	if strings.Contains(strings.ToLower(sig.Header.Get("Content-Type")), "text/html") {
		return true
	}
	head := sig.Body
	if len(head) > 512 {
		head = head[:512]
	}
	head = bytes.ToLower(bytes.TrimSpace(head))
	return bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.HasPrefix(head, []byte("<html"))
}
