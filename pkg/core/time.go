package core

import (
	"time"

	"github.com/dustin/go-humanize"
)

// toMillis converts an absolute instant to Unix milliseconds for the wire.
func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// FormatRelative renders ts relative to now ("11 minutes ago"). Observations
// store absolute timestamps, so the rendering is correct no matter when it
// happens.
func FormatRelative(ts, now time.Time) string {
	return humanize.RelTime(ts, now, "ago", "from now")
}
