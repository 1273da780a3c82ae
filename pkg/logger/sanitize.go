// Package logger builds the service logger and masks personal data before it
// reaches log output.
package logger

import (
	"io"
	"log/slog"
	"net/url"
	"strings"
)

// New creates the JSON logger used across the service at the given level
// ("debug", "info", "warn", "error"; unknown values fall back to info).
func New(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// SanitizedEmail masks an email address for logging (e.g., "u***@*******.com").
// The first character of the mailbox and the top-level domain stay readable.
func SanitizedEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return "[invalid-email]"
	}

	masked := local[:1] + strings.Repeat("*", len(local)-1)

	labels := strings.Split(domain, ".")
	for i := 0; i < len(labels)-1; i++ {
		labels[i] = strings.Repeat("*", len(labels[i]))
	}
	return masked + "@" + strings.Join(labels, ".")
}

// Redacted replaces sensitive values in logs
const Redacted = "REDACTED"

var sensitiveParams = []string{
	"password", "token", "secret", "code", "email", "auth",
}

func isSensitive(key string) bool {
	key = strings.ToLower(key)
	for _, p := range sensitiveParams {
		if strings.Contains(key, p) {
			return true
		}
	}
	return false
}

// RedactQuery masks the values of sensitive query parameters and keeps the
// rest of the query as sent. A query that cannot be split into key/value
// pairs is redacted whole.
func RedactQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	pairs := strings.Split(rawQuery, "&")
	for i, pair := range pairs {
		rawKey, _, hasValue := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return Redacted
		}
		if hasValue && isSensitive(key) {
			pairs[i] = rawKey + "=" + Redacted
		}
	}
	return strings.Join(pairs, "&")
}
