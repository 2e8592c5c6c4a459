package timeseries

import (
	"math"
	"sort"
	"time"
)

// TruncateToHour floors a timestamp to the start of its UTC hour.
func TruncateToHour(value time.Time) time.Time {
	utc := value.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), utc.Hour(), 0, 0, 0, time.UTC)
}

// TruncateToDay floors a timestamp to UTC midnight.
func TruncateToDay(value time.Time) time.Time {
	utc := value.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}

// TruncateToBucket floors a timestamp to a chart bucket of the given width.
// Widths of a day or more degrade to day buckets.
func TruncateToBucket(value time.Time, bucketMinutes int) time.Time {
	if bucketMinutes >= 24*60 {
		return TruncateToDay(value)
	}
	if bucketMinutes >= 60 {
		day := TruncateToDay(value)
		bucketHours := bucketMinutes / 60
		hours := (value.UTC().Hour() / bucketHours) * bucketHours
		return day.Add(time.Duration(hours) * time.Hour)
	}
	hour := TruncateToHour(value)
	minutes := (value.UTC().Minute() / bucketMinutes) * bucketMinutes
	return hour.Add(time.Duration(minutes) * time.Minute)
}

// Percentile selects the nearest-rank percentile from the given durations:
// the value at index ceil(p*n)-1 of the ascending-sorted slice, clamped to
// [0, n-1]. Returns 0 for an empty input.
func Percentile(values []int, percentile float64) int {
	if len(values) == 0 {
		return 0
	}
	ordered := make([]int, len(values))
	copy(ordered, values)
	sort.Ints(ordered)

	rank := int(math.Ceil(percentile*float64(len(ordered)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank > len(ordered)-1 {
		rank = len(ordered) - 1
	}
	return ordered[rank]
}

// RoundPercent computes value/total as a percentage rounded to two
// decimals, and 0 when total is not positive.
func RoundPercent(value int64, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(value)*100/float64(total)*100) / 100
}
