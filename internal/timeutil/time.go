// Package timeutil provides the clock and timestamp format used for audit fields.
package timeutil

import (
	"time"
)

// ISO8601 is the layout used for createdAt, updatedAt, startDate and endDate.
const ISO8601 = "2006-01-02T15:04:05.000Z07:00"

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

// SystemClock reports wall-clock time in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// Fixed returns a Clock that always reports t.
func Fixed(t time.Time) Clock {
	return func() time.Time { return t }
}

// Format renders t in UTC using the ISO8601 layout.
func Format(t time.Time) string {
	return t.UTC().Format(ISO8601)
}

// Now formats the clock's current reading. A nil clock falls back to SystemClock.
func (c Clock) Now() string {
	if c == nil {
		return Format(SystemClock())
	}
	return Format(c())
}
