package logging

import "strings"

const redacted = "***"

var sensitiveKeys = []string{"password", "passphrase", "token", "phrase", "secret", "key"}

// sensitive reports whether values logged under key must never reach the
// output. Matching is by substring so "authToken" and "secret_key" are caught.
func sensitive(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// redact returns args with the value of every sensitive key replaced. The
// input slice is not modified.
func redact(args []any) []any {
	var out []any
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok || !sensitive(key) {
			continue
		}
		if out == nil {
			out = append([]any(nil), args...)
		}
		out[i+1] = redacted
	}
	if out == nil {
		return args
	}
	return out
}
