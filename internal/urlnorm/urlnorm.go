// Package urlnorm canonicalises URLs so that trivially different spellings
// of the same page dedupe to one crawl target and one document identity.
package urlnorm

import (
	"fmt"
	"net/url"
	"strings"
)

// Normalize returns the canonical form of rawURL:
//   - scheme and host are lowercased
//   - default ports (:80 for http, :443 for https) are dropped
//   - the fragment is dropped
//   - trailing slashes are removed, except for the root path "/"
//   - query parameters are sorted and an empty query is dropped
//
// Only absolute http and https URLs are accepted.
func Normalize(rawURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q in %q", parsed.Scheme, rawURL)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}

	parsed.Host = strings.ToLower(parsed.Host)
	if port := parsed.Port(); (port == "80" && parsed.Scheme == "http") || (port == "443" && parsed.Scheme == "https") {
		parsed.Host = parsed.Hostname()
	}

	parsed.Fragment = ""
	parsed.RawFragment = ""
	parsed.User = nil

	path := strings.TrimRight(parsed.Path, "/")
	if path == "" {
		path = "/"
	}
	parsed.Path = path
	parsed.RawPath = ""

	if parsed.RawQuery != "" {
		// Encode sorts by key.
		parsed.RawQuery = parsed.Query().Encode()
	}
	parsed.ForceQuery = false

	return parsed.String(), nil
}

// Resolve normalises ref relative to base.
func Resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base %q: %w", base, err)
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("parse ref %q: %w", ref, err)
	}
	return Normalize(b.ResolveReference(r).String())
}

// SameHost reports whether a and b share a host, ignoring case and a
// leading "www.".
func SameHost(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	strip := func(h string) string { return strings.TrimPrefix(strings.ToLower(h), "www.") }
	return strip(ua.Hostname()) == strip(ub.Hostname())
}
