package envelope

import (
	"time"
)

// Time format constants for envelope timestamps.
const (
	// TimeFormat is the standard envelope time format (RFC3339).
	TimeFormat = time.RFC3339

	// TimeFormatNano is the RFC3339 format with nanosecond precision.
	TimeFormatNano = time.RFC3339Nano
)

// ParseTime parses an envelope timestamp. Accepts RFC3339 with or without
// sub-second precision.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeFormatNano, s); err == nil {
		return t, nil
	}
	return time.Parse(TimeFormat, s)
}

// FormatTime formats a time value for the envelope wire shape.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormatNano)
}

// Now returns the current UTC time in the envelope wire format.
func Now() string {
	return FormatTime(time.Now())
}
