package logging

import (
	"log/slog"
	"net/url"
	"strings"
)

// RedactedValue replaces the value of secret-bearing attributes.
const RedactedValue = "[REDACTED]"

// sensitiveFragments mark attribute keys whose values never reach the log.
var sensitiveFragments = []string{"secret", "token", "passphrase", "password", "authorization", "jwt"}

// IsSensitive reports whether values logged under key must be redacted.
func IsSensitive(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	for _, fragment := range sensitiveFragments {
		if strings.Contains(normalized, fragment) {
			return true
		}
	}
	return false
}

// redactAttr masks non-empty string values of sensitive keys. It runs inside
// the handler, so a careless slog.String("jwtSecret", ...) is still safe.
func redactAttr(attr slog.Attr) slog.Attr {
	if !IsSensitive(attr.Key) {
		return attr
	}
	if attr.Value.Kind() == slog.KindString && strings.TrimSpace(attr.Value.String()) == "" {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}

// MaskDSN strips the password from a URL-style connection string, leaving
// host and database readable. Strings that are not URLs with credentials are
// returned unchanged.
func MaskDSN(dsn string) string {
	parsed, err := url.Parse(strings.TrimSpace(dsn))
	if err != nil || parsed.User == nil {
		return dsn
	}
	if _, ok := parsed.User.Password(); !ok {
		return dsn
	}
	parsed.User = url.UserPassword(parsed.User.Username(), "xxxxx")
	return parsed.String()
}
