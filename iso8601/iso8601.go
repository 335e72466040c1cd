// Package iso8601 formats and parses the ISO-8601 timestamps used across
// the signing and audit surfaces of this module. The format must match the
// server's encoder byte-for-byte, since it feeds the canonical manifest
// body that gets signed (see manifest.Canonicalize).
package iso8601

import (
	"fmt"
	"strings"
	"time"
)

// layoutFraction is used when the input/output carries fractional seconds.
const layoutFraction = "2006-01-02T15:04:05.000Z"

// layoutWhole is used when the timestamp has no fractional component.
const layoutWhole = "2006-01-02T15:04:05Z"

// Format renders t in UTC with millisecond precision and a trailing "Z",
// matching the server's canonical encoder.
func Format(t time.Time) string {
	return t.UTC().Format(layoutFraction)
}

// FormatWhole renders t in UTC with second precision, no fractional part.
func FormatWhole(t time.Time) string {
	return t.UTC().Format(layoutWhole)
}

// Parse accepts either whole-second or fractional-second ISO-8601 forms,
// always with a "Z" (UTC) suffix, per the manifest wire format.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "Z") {
		return time.Time{}, fmt.Errorf("iso8601: timestamp %q missing UTC designator", s)
	}

	candidates := []string{
		time.RFC3339Nano,
		layoutFraction,
		layoutWhole,
		"2006-01-02T15:04:05.999999999Z",
	}
	var firstErr error
	for _, layout := range candidates {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, fmt.Errorf("iso8601: cannot parse timestamp %q: %w", s, firstErr)
}
