// Package timestamp provides canonical wire timestamp handling.
//
// The wire format for events, decisions and commands carries timestamps as
// ISO-8601 (RFC3339) strings. Device firmware and older emitters have sent
// unix seconds and unix milliseconds as numbers, so parsing is lenient:
// RFC3339 strings, numeric seconds and numeric milliseconds are all
// accepted. Output is always RFC3339 in UTC.
//
// Zero value semantics: a zero time.Time means "not set" and formats to the
// empty string.
package timestamp

import (
	"strconv"
	"time"
)

// Now returns the current time in UTC, truncated to millisecond precision
// to keep wire round trips stable.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Format converts a time to its canonical RFC3339 UTC wire form.
// Returns the empty string for the zero time.
func Format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// Parse converts a wire timestamp of various historical shapes to time.Time.
// Supports:
//   - string: RFC3339 / RFC3339Nano, or a numeric unix timestamp string
//   - int64 / int / float64: unix seconds, or milliseconds when > 1e12
//   - time.Time: passed through
//   - nil and empty values: zero time
//
// Returns the zero time for anything unparseable.
func Parse(input any) time.Time {
	switch v := input.(type) {
	case nil:
		return time.Time{}
	case time.Time:
		return v.UTC()
	case string:
		return parseString(v)
	case int64:
		return fromUnix(v)
	case int:
		return fromUnix(int64(v))
	case float64:
		return fromUnix(int64(v))
	default:
		return time.Time{}
	}
}

func parseString(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return fromUnix(n)
	}
	return time.Time{}
}

// fromUnix treats values above 1e12 as milliseconds, otherwise seconds.
// 1e12 seconds is the year 33658; 1e12 milliseconds is September 2001.
func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	if n > 1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
