// Package types defines the core data structures for the simple-memory
// server: sessions, the memories they own, and the typed errors every layer
// uses to report validation and lookup failures.
package types

import "time"

// TimestampLayout is the ISO-8601 layout used whenever a timestamp leaves the
// process. Values are always rendered in UTC with fixed microsecond precision,
// so rendered values sort lexicographically even across DST transitions.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp is the inverse of FormatTimestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}
