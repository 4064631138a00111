package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	ts := time.Date(2026, 3, 14, 12, 30, 45, 123000000, loc)

	assert.Equal(t, "2026-03-14T09:30:45.123Z", Format(ts))
}

func TestClockNow(t *testing.T) {
	fixed := Fixed(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	assert.Equal(t, "2026-01-02T03:04:05.000Z", fixed.Now())

	var nilClock Clock
	parsed, err := time.Parse(ISO8601, nilClock.Now())
	assert.NoError(t, err)
	assert.WithinDuration(t, time.Now(), parsed, time.Minute)
}
