// Package redact maps arbitrary structured data to a copy with secret-looking
// values masked. It is a pure formatting concern applied before payloads are
// logged, so every log call site benefits uniformly.
package redact

import (
	"regexp"
	"strings"
)

const mask = "[REDACTED]"

var sensitiveKeyParts = []string{
	"secret",
	"token",
	"password",
	"api_key",
	"apikey",
	"authorization",
	"signature",
	"credential",
}

// botTokenPattern matches Bot API tokens regardless of the key they appear
// under.
var botTokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]{30,}$`)

// Value returns a deep copy of v with sensitive map values masked. Maps and
// slices are walked recursively; all other types pass through unchanged.
func Value(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if sensitiveKey(k) {
				out[k] = mask
				continue
			}
			out[k] = Value(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Value(val)
		}
		return out
	case string:
		if botTokenPattern.MatchString(t) {
			return mask
		}
		return t
	default:
		return v
	}
}

// String masks the value when it looks like a credential.
func String(s string) string {
	if botTokenPattern.MatchString(s) {
		return mask
	}
	return s
}

func sensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}
