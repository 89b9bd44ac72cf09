// SPDX-License-Identifier: MIT

package net

import (
	"net/url"
	"strings"
)

// SanitizeURL removes user info and query parameters for safe logging.
// API tokens ride in query strings, so request URLs are never logged raw.
func SanitizeURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsedURL.User = nil
	parsedURL.RawQuery = ""
	return parsedURL.String()
}

// ParseDirectHTTPURL validates that a string is a plain, direct HTTP(S)
// URL. Provider responses embed cover-art and page URLs; only ones that
// pass here are kept. It enforces:
//   - Scheme must be "http" or "https"
//   - Host must be non-empty
//   - No embedded User/Password credentials
//   - No fragments
func ParseDirectHTTPURL(s string) (*url.URL, bool) {
	s = strings.TrimSpace(s)
	u, err := url.Parse(s)
	if err != nil {
		return nil, false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, false
	}
	if u.Host == "" {
		return nil, false
	}
	if u.User != nil {
		return nil, false
	}
	if u.Fragment != "" {
		return nil, false
	}

	return u, true
}
