// Package iso8601 formats and parses timestamps for audit log entries,
// always in UTC with nanosecond precision.
package iso8601

import "time"

const layout = "2006-01-02T15:04:05.000000000Z07:00"

// Format renders t in UTC as an ISO 8601 / RFC 3339 timestamp.
func Format(t time.Time) string {
	return t.UTC().Format(layout)
}

// Parse reverses Format. It also accepts plain RFC 3339 for interop with
// timestamps written by other formatters.
func Parse(s string) (time.Time, error) {
	if t, err := time.Parse(layout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
