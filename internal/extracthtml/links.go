package extracthtml

import (
	"net/url"
	"strings"
)

// ParseBaseURL parses and validates a page URL used to resolve relative links.
// A non-empty Host is required so that same-host filtering is meaningful.
func ParseBaseURL(raw string) (*url.URL, bool) {
	base, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || base == nil || base.Host == "" {
		return nil, false
	}
	return base, true
}

// ResolveSameHost resolves href against base and enforces crawl constraints:
//   - scheme must be http or https
//   - host must exactly match base.Host (port included)
//   - the fragment is stripped
func ResolveSameHost(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if base == nil || href == "" {
		return "", false
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	resolved := base.ResolveReference(u)

	// Drops mailto:, javascript:, tel:, data:, etc.
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	if resolved.Host != base.Host {
		return "", false
	}

	resolved.Fragment = ""
	resolved.RawFragment = ""
	return resolved.String(), true
}
