// Package redact strips credentials from text before it is logged or shown
// to a chat user. Provider errors can echo request URLs or headers, so every
// such string passes through String with the configured API keys.
package redact

import (
	"net/url"
	"strings"
)

const placeholder = "[REDACTED]"

// minSecretLen guards against blanking out common short substrings.
const minSecretLen = 4

// String replaces every occurrence of each secret in s.
func String(s string, secrets ...string) string {
	for _, v := range secrets {
		if len(v) < minSecretLen {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return s
}

// URL masks credential-looking query parameters (key, token, api_key) in a
// raw URL. Unparsable input is returned unchanged.
func URL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}
	q := u.Query()
	changed := false
	for k := range q {
		if sensitiveKey(k) {
			q.Set(k, placeholder)
			changed = true
		}
	}
	if !changed {
		return raw
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func sensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, w := range []string{"key", "token", "secret", "auth"} {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
