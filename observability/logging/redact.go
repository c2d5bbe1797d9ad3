package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values such as bearer tokens and DSNs.
const RedactedValue = "[REDACTED]"

// Keys the lending services log verbatim. Anything else passed through
// MaskField is masked.
var plainKeys = map[string]struct{}{
	"service":   {},
	"env":       {},
	"error":     {},
	"reason":    {},
	"action":    {},
	"outcome":   {},
	"offer_id":  {},
	"caller":    {},
	"remote":    {},
	"listen":    {},
	"driver":    {},
	"job_id":    {},
	"data_dir":  {},
	"component": {},
}

// IsPlain reports whether key may be logged without masking.
func IsPlain(key string) bool {
	_, ok := plainKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskValue returns RedactedValue for non-empty values.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField builds a string attribute that is masked unless key is plain.
func MaskField(key, value string) slog.Attr {
	if IsPlain(key) {
		return slog.String(key, value)
	}
	return slog.String(key, MaskValue(value))
}
