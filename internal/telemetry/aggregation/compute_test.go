package aggregation

import (
	"testing"
	"time"

	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/model"
	"github.com/stretchr/testify/assert"
)

var baseTime = time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC)

func rawLog(offset time.Duration, statusCode int, durationMs int) model.RawLog {
	severity := model.SeverityInfo
	if statusCode >= 500 {
		severity = model.SeverityError
	}
	return model.RawLog{
		TimestampUTC:     baseTime.Add(offset),
		Method:           "GET",
		EndpointTemplate: "/api/providers",
		StatusCode:       statusCode,
		DurationMs:       durationMs,
		Severity:         severity,
	}
}

func TestBuildHourlyMetrics(t *testing.T) {
	t.Run("groups by bucket and dimensions", func(t *testing.T) {
		rawLogs := []model.RawLog{
			rawLog(5*time.Minute, 200, 100),
			rawLog(10*time.Minute, 200, 300),
			rawLog(15*time.Minute, 500, 900),
			rawLog(65*time.Minute, 200, 50),
		}

		metrics := BuildHourlyMetrics(rawLogs)
		assert.Len(t, metrics, 3)

		first := metrics[0]
		assert.Equal(t, baseTime, first.BucketStartUTC)
		assert.Equal(t, 200, first.StatusCode)
		assert.Equal(t, int64(2), first.RequestCount)
		assert.Equal(t, int64(0), first.ErrorCount)
		assert.Equal(t, int64(400), first.TotalDurationMs)
		assert.Equal(t, 100, first.MinDurationMs)
		assert.Equal(t, 300, first.MaxDurationMs)
		assert.Equal(t, 100, first.P50DurationMs)
		assert.Equal(t, 300, first.P95DurationMs)

		errored := metrics[1]
		assert.Equal(t, 500, errored.StatusCode)
		assert.Equal(t, int64(1), errored.ErrorCount)

		nextHour := metrics[2]
		assert.Equal(t, baseTime.Add(time.Hour), nextHour.BucketStartUTC)
		assert.Equal(t, int64(1), nextHour.RequestCount)
	})

	t.Run("is deterministic regardless of input order", func(t *testing.T) {
		forward := []model.RawLog{
			rawLog(0, 200, 100),
			rawLog(time.Minute, 404, 20),
			rawLog(2*time.Minute, 500, 800),
		}
		reversed := []model.RawLog{forward[2], forward[1], forward[0]}
		assert.Equal(t, BuildHourlyMetrics(forward), BuildHourlyMetrics(reversed))
	})

	t.Run("explicit error flag counts without a 5xx status", func(t *testing.T) {
		entry := rawLog(0, 200, 10)
		entry.IsError = true
		metrics := BuildHourlyMetrics([]model.RawLog{entry})
		assert.Equal(t, int64(1), metrics[0].ErrorCount)
	})

	t.Run("empty input yields no rows", func(t *testing.T) {
		assert.Empty(t, BuildHourlyMetrics(nil))
	})
}

func TestBuildDailyMetrics(t *testing.T) {
	rawLogs := []model.RawLog{
		rawLog(0, 200, 100),
		rawLog(9*time.Hour, 200, 200),
		rawLog(11*time.Hour, 200, 300),
	}
	metrics := BuildDailyMetrics(rawLogs)
	// 14:00 +11h crosses midnight into the next day.
	assert.Len(t, metrics, 2)
	assert.Equal(t, time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC), metrics[0].BucketStartUTC)
	assert.Equal(t, int64(2), metrics[0].RequestCount)
	assert.Equal(t, time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC), metrics[1].BucketStartUTC)
	assert.Equal(t, int64(1), metrics[1].RequestCount)
}

func TestBuildCatalogUpdates(t *testing.T) {
	updatedAt := baseTime.Add(2 * time.Hour)

	t.Run("merges sightings of the same key", func(t *testing.T) {
		early := rawLog(0, 500, 100)
		early.NormalizedErrorKey = "abc"
		early.ErrorType = "TimeoutError"
		early.NormalizedErrorMessage = "request timed out after {n} ms"

		late := rawLog(30*time.Minute, 500, 200)
		late.NormalizedErrorKey = "abc"
		late.ErrorType = "TimeoutError"
		late.NormalizedErrorMessage = "request timed out after {n} ms"

		entries := BuildCatalogUpdates([]model.RawLog{late, early}, updatedAt)
		assert.Len(t, entries, 1)
		assert.Equal(t, "abc", entries[0].ErrorKey)
		assert.Equal(t, early.TimestampUTC, entries[0].FirstSeenUTC)
		assert.Equal(t, late.TimestampUTC, entries[0].LastSeenUTC)
		assert.Equal(t, updatedAt, entries[0].UpdatedAtUTC)
	})

	t.Run("skips rows without keys", func(t *testing.T) {
		ok := rawLog(0, 200, 100)
		keyless := rawLog(0, 500, 100)
		entries := BuildCatalogUpdates([]model.RawLog{ok, keyless}, updatedAt)
		assert.Empty(t, entries)
	})

	t.Run("keyed rows participate even without an error outcome", func(t *testing.T) {
		notFound := rawLog(0, 404, 10)
		notFound.NormalizedErrorKey = "cafef00d"
		notFound.ErrorType = "NotFoundError"
		notFound.NormalizedErrorMessage = "provider {guid} not found"

		entries := BuildCatalogUpdates([]model.RawLog{notFound}, updatedAt)
		assert.Len(t, entries, 1)
		assert.Equal(t, "cafef00d", entries[0].ErrorKey)
		assert.Equal(t, "NotFoundError", entries[0].ErrorType)
	})

	t.Run("first non empty type and message win", func(t *testing.T) {
		bare := rawLog(0, 500, 100)
		bare.NormalizedErrorKey = "abc"

		typed := rawLog(10*time.Minute, 500, 100)
		typed.NormalizedErrorKey = "abc"
		typed.ErrorType = "TimeoutError"
		typed.NormalizedErrorMessage = "request timed out after {n} ms"

		blankAgain := rawLog(20*time.Minute, 500, 100)
		blankAgain.NormalizedErrorKey = "abc"

		entries := BuildCatalogUpdates([]model.RawLog{bare, typed, blankAgain}, updatedAt)
		assert.Len(t, entries, 1)
		assert.Equal(t, "TimeoutError", entries[0].ErrorType)
		assert.Equal(t, "request timed out after {n} ms", entries[0].NormalizedMessage)
		assert.Equal(t, blankAgain.TimestampUTC, entries[0].LastSeenUTC)
	})

	t.Run("keys with no type or message fall back to placeholders", func(t *testing.T) {
		bare := rawLog(0, 500, 100)
		bare.NormalizedErrorKey = "abc"

		entries := BuildCatalogUpdates([]model.RawLog{bare}, updatedAt)
		assert.Len(t, entries, 1)
		assert.Equal(t, "UnknownError", entries[0].ErrorType)
		assert.Equal(t, "no normalized message", entries[0].NormalizedMessage)
	})
}

func TestBuildOccurrences(t *testing.T) {
	erroring := rawLog(5*time.Minute, 500, 100)
	erroring.NormalizedErrorKey = "abc"
	unresolved := rawLog(6*time.Minute, 500, 100)
	unresolved.NormalizedErrorKey = "missing"

	occurrences := BuildOccurrences(
		[]model.RawLog{erroring, erroring, unresolved},
		map[string]string{"abc": "catalog-doc-1"},
	)

	assert.Len(t, occurrences, 1)
	assert.Equal(t, "catalog-doc-1", occurrences[0].ErrorCatalogID)
	assert.Equal(t, "abc", occurrences[0].ErrorKey)
	assert.Equal(t, baseTime, occurrences[0].BucketStartUTC)
	assert.Equal(t, int64(2), occurrences[0].OccurrenceCount)

	t.Run("keyed rows count even without an error outcome", func(t *testing.T) {
		notFound := rawLog(5*time.Minute, 404, 10)
		notFound.NormalizedErrorKey = "cafef00d"

		occurrences := BuildOccurrences(
			[]model.RawLog{notFound},
			map[string]string{"cafef00d": "catalog-doc-2"},
		)
		assert.Len(t, occurrences, 1)
		assert.Equal(t, int64(1), occurrences[0].OccurrenceCount)
	})
}
