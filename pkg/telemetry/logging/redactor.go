package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// Redacted replaces masked values.
const Redacted = "***"

// Default attribute keys whose values are always masked. Matching is on the
// lowercased key and accepts the key as a suffix, so "auth_token" matches
// "token".
var defaultSecretKeys = []string{
	"token",
	"password",
	"passphrase",
	"secret",
	"authorization",
}

type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
}

// Value patterns masked inside any string attribute.
var defaultPatterns = []redactPattern{
	// Credentials embedded in repository URLs.
	{regex: regexp.MustCompile(`(https?://)[^/@\s]+@`), replacement: "${1}" + Redacted + "@"},
	// Bearer tokens.
	{regex: regexp.MustCompile(`Bearer\s+[A-Za-z0-9\-._~+/]+=*`), replacement: "Bearer " + Redacted},
}

// Redactor masks secrets in log attributes. Policy data is logged as is;
// only credentials used to reach policy sources are masked.
type Redactor struct {
	keys     []string
	patterns []redactPattern
}

// NewRedactor creates a redactor with the default secret keys and value
// patterns, plus any extra keys.
func NewRedactor(extraKeys ...string) *Redactor {
	keys := append([]string(nil), defaultSecretKeys...)
	for _, k := range extraKeys {
		keys = append(keys, strings.ToLower(k))
	}
	return &Redactor{keys: keys, patterns: defaultPatterns}
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr hook.
func (r *Redactor) ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
	case slog.KindGroup:
		return a
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok && !r.secretKey(a.Key) {
			return slog.String(a.Key, r.RedactString(err.Error()))
		}
		fallthrough
	default:
		if r.secretKey(a.Key) {
			return slog.String(a.Key, Redacted)
		}
		return a
	}
	if r.secretKey(a.Key) {
		if a.Value.String() == "" {
			return a
		}
		return slog.String(a.Key, Redacted)
	}
	return slog.String(a.Key, r.RedactString(a.Value.String()))
}

// RedactString masks every value pattern in s.
func (r *Redactor) RedactString(s string) string {
	for _, p := range r.patterns {
		s = p.regex.ReplaceAllString(s, p.replacement)
	}
	return s
}

func (r *Redactor) secretKey(key string) bool {
	key = strings.ToLower(key)
	for _, k := range r.keys {
		if key == k || strings.HasSuffix(key, "_"+k) || strings.HasSuffix(key, "."+k) {
			return true
		}
	}
	return false
}
