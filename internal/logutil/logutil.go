// Package logutil formats request headers and bodies for debug logs without
// leaking credentials or whole memos.
package logutil

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"
)

const redacted = "[REDACTED]"

// MaxLoggedFieldRunes is how much of a memo title or contents survives in a
// logged JSON body.
const MaxLoggedFieldRunes = 64

var sensitiveMarkers = []string{"token", "secret", "password", "apikey", "cookie", "auth"}

// memoTextFields hold user-authored text that is shortened rather than dropped.
var memoTextFields = map[string]bool{"title": true, "contents": true}

func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.NewReplacer("-", "", "_", "").Replace(key)
}

// IsSensitiveLogField returns true when a key likely contains sensitive data.
func IsSensitiveLogField(key string) bool {
	k := normalizeKey(key)
	return slices.ContainsFunc(sensitiveMarkers, func(m string) bool {
		return strings.Contains(k, m)
	})
}

// FormatHeadersForLog returns stable, redacted header text for logs.
func FormatHeadersForLog(headers http.Header) string {
	if len(headers) == 0 {
		return "{}"
	}

	var b strings.Builder
	for i, k := range slices.Sorted(maps.Keys(headers)) {
		if i > 0 {
			b.WriteString("; ")
		}
		name := strings.ToLower(k)
		values := headers.Values(k)
		switch {
		case len(values) == 0:
			fmt.Fprintf(&b, "%s=<empty>", name)
		case IsSensitiveLogField(k):
			fmt.Fprintf(&b, "%s=%q", name, redacted)
		default:
			fmt.Fprintf(&b, "%s=%q", name, strings.Join(values, ", "))
		}
	}
	return b.String()
}

// RedactBodyForLog rewrites a JSON body for logging: sensitive keys are
// replaced and memo title/contents strings are cut to MaxLoggedFieldRunes.
// Non-JSON bodies are returned as-is.
func RedactBodyForLog(contentType string, body []byte) string {
	text := string(body)
	if !strings.Contains(strings.ToLower(contentType), "json") {
		return text
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return text
	}
	payload = scrub(payload)

	safe, err := json.Marshal(payload)
	if err != nil {
		return text
	}
	return string(safe)
}

func scrub(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		for k, child := range typed {
			switch {
			case IsSensitiveLogField(k):
				typed[k] = redacted
			case memoTextFields[normalizeKey(k)]:
				if s, ok := child.(string); ok {
					typed[k] = elide(s)
				} else {
					typed[k] = scrub(child)
				}
			default:
				typed[k] = scrub(child)
			}
		}
	case []any:
		for i, child := range typed {
			typed[i] = scrub(child)
		}
	}
	return v
}

func elide(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxLoggedFieldRunes {
		return s
	}
	return fmt.Sprintf("%s...(%d more runes)", string(runes[:MaxLoggedFieldRunes]), len(runes)-MaxLoggedFieldRunes)
}

// FormatBodyForLog truncates and redacts body text for safe logging.
func FormatBodyForLog(contentType string, body []byte, maxBytes int, truncated bool) string {
	if len(body) == 0 {
		return ""
	}
	if maxBytes > 0 && len(body) > maxBytes {
		body = body[:maxBytes]
		truncated = true
	}
	text := RedactBodyForLog(contentType, body)
	if truncated {
		return text + " [truncated]"
	}
	return text
}
