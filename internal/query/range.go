package query

import (
	"strings"
	"time"
)

const DefaultRangeToken = "1h"

var rangeDurations = map[string]time.Duration{
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// ResolveRange maps a dashboard range token to an absolute UTC window ending
// now. Unknown tokens fall back to the one hour default.
func ResolveRange(token string, now time.Time) (time.Time, time.Time, string) {
	normalized := strings.ToLower(strings.TrimSpace(token))
	duration, ok := rangeDurations[normalized]
	if !ok {
		normalized = DefaultRangeToken
		duration = rangeDurations[normalized]
	}
	to := now.UTC()
	return to.Add(-duration), to, normalized
}

// BucketMinutes picks the chart bucket width for a window so series stay
// readable at every zoom level.
func BucketMinutes(from, to time.Time) int {
	window := to.Sub(from)
	switch {
	case window <= 2*time.Hour:
		return 5
	case window <= 6*time.Hour:
		return 10
	case window <= 12*time.Hour:
		return 15
	case window <= 30*time.Hour:
		return 60
	case window <= 8*24*time.Hour:
		return 180
	default:
		return 1440
	}
}
