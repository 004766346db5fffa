// Package safeurl keeps credentials out of logs and rejects non-HTTP
// schemes on user-supplied URLs.
package safeurl

import (
	"net/url"
	"strings"
)

// IsHTTPOrHTTPS reports whether u parses with scheme http or https. Used to
// reject file://, ftp://, and friends on settings input.
func IsHTTPOrHTTPS(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	s := parsed.Scheme
	return s == "http" || s == "https"
}

// Redact returns u with userinfo and credential-looking query parameters
// masked. Unparseable input is fully masked rather than leaked.
func Redact(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return "<unparseable url>"
	}
	if parsed.User != nil {
		parsed.User = url.User("redacted")
	}
	q := parsed.Query()
	changed := false
	for key := range q {
		if credentialParam(key) {
			q.Set(key, "redacted")
			changed = true
		}
	}
	if changed {
		parsed.RawQuery = q.Encode()
	}
	return parsed.String()
}

func credentialParam(key string) bool {
	switch strings.ToLower(key) {
	case "password", "pass", "token", "apikey", "api_key", "key", "secret", "auth":
		return true
	}
	return false
}
