package aggregation

import (
	"sort"
	"time"

	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/model"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/timeseries"
)

type metricKey struct {
	bucketStart      time.Time
	method           string
	endpointTemplate string
	statusCode       int
	severity         string
	tenantID         string
}

func keyForRawLog(rawLog model.RawLog, bucketStart time.Time) metricKey {
	return metricKey{
		bucketStart:      bucketStart,
		method:           model.NormalizeMethod(rawLog.Method),
		endpointTemplate: model.NormalizeEndpointTemplate(rawLog.EndpointTemplate),
		statusCode:       rawLog.StatusCode,
		severity:         model.NormalizeSeverity(rawLog.Severity),
		tenantID:         model.NormalizeTenantID(rawLog.TenantID),
	}
}

// BuildHourlyMetrics recomputes hourly aggregate rows from raw logs. The
// output is deterministic for a given input regardless of input order.
func BuildHourlyMetrics(rawLogs []model.RawLog) []model.EndpointMetric {
	return buildMetrics(rawLogs, timeseries.TruncateToHour)
}

// BuildDailyMetrics recomputes daily aggregate rows from raw logs.
func BuildDailyMetrics(rawLogs []model.RawLog) []model.EndpointMetric {
	return buildMetrics(rawLogs, timeseries.TruncateToDay)
}

func buildMetrics(
	rawLogs []model.RawLog,
	truncate func(time.Time) time.Time,
) []model.EndpointMetric {
	durationsByKey := make(map[metricKey][]int)
	metricsByKey := make(map[metricKey]*model.EndpointMetric)

	for _, rawLog := range rawLogs {
		key := keyForRawLog(rawLog, truncate(rawLog.TimestampUTC))
		metric, ok := metricsByKey[key]
		if !ok {
			metric = &model.EndpointMetric{
				BucketStartUTC:   key.bucketStart,
				Method:           key.method,
				EndpointTemplate: key.endpointTemplate,
				StatusCode:       key.statusCode,
				Severity:         key.severity,
				TenantID:         key.tenantID,
				MinDurationMs:    rawLog.DurationMs,
				MaxDurationMs:    rawLog.DurationMs,
			}
			metricsByKey[key] = metric
		}

		metric.RequestCount++
		if model.IsErrorOutcome(rawLog.StatusCode, rawLog.IsError) {
			metric.ErrorCount++
		}
		metric.WarningCount += int64(rawLog.WarningCount)
		metric.TotalDurationMs += int64(rawLog.DurationMs)
		if rawLog.DurationMs < metric.MinDurationMs {
			metric.MinDurationMs = rawLog.DurationMs
		}
		if rawLog.DurationMs > metric.MaxDurationMs {
			metric.MaxDurationMs = rawLog.DurationMs
		}
		durationsByKey[key] = append(durationsByKey[key], rawLog.DurationMs)
	}

	results := make([]model.EndpointMetric, 0, len(metricsByKey))
	for key, metric := range metricsByKey {
		durations := durationsByKey[key]
		metric.P50DurationMs = timeseries.Percentile(durations, 0.50)
		metric.P95DurationMs = timeseries.Percentile(durations, 0.95)
		metric.P99DurationMs = timeseries.Percentile(durations, 0.99)
		results = append(results, *metric)
	}
	sortMetrics(results)
	return results
}

func sortMetrics(metrics []model.EndpointMetric) {
	sort.Slice(metrics, func(i, j int) bool {
		a, b := metrics[i], metrics[j]
		if !a.BucketStartUTC.Equal(b.BucketStartUTC) {
			return a.BucketStartUTC.Before(b.BucketStartUTC)
		}
		if a.EndpointTemplate != b.EndpointTemplate {
			return a.EndpointTemplate < b.EndpointTemplate
		}
		if a.Method != b.Method {
			return a.Method < b.Method
		}
		if a.StatusCode != b.StatusCode {
			return a.StatusCode < b.StatusCode
		}
		if a.Severity != b.Severity {
			return a.Severity < b.Severity
		}
		return a.TenantID < b.TenantID
	})
}

const unknownErrorType = "UnknownError"
const unknownErrorMessage = "no normalized message"

// BuildCatalogUpdates derives the error catalog rows present in the given
// raw logs. Every row with a normalized key participates, error outcome or
// not; a keyed 404 belongs in the catalog too. Type and message take the
// first non-empty values observed per key, falling back to placeholders.
// The first and last seen boundaries span the observed window only; the
// store merge extends rather than overwrites earlier sightings.
func BuildCatalogUpdates(rawLogs []model.RawLog, updatedAt time.Time) []model.ErrorCatalogEntry {
	entriesByKey := make(map[string]*model.ErrorCatalogEntry)

	for _, rawLog := range rawLogs {
		if rawLog.NormalizedErrorKey == "" {
			continue
		}
		entry, ok := entriesByKey[rawLog.NormalizedErrorKey]
		if !ok {
			entry = &model.ErrorCatalogEntry{
				ErrorKey:          rawLog.NormalizedErrorKey,
				ErrorType:         rawLog.ErrorType,
				NormalizedMessage: rawLog.NormalizedErrorMessage,
				FirstSeenUTC:      rawLog.TimestampUTC,
				LastSeenUTC:       rawLog.TimestampUTC,
				UpdatedAtUTC:      updatedAt,
			}
			entriesByKey[rawLog.NormalizedErrorKey] = entry
			continue
		}
		if entry.ErrorType == "" {
			entry.ErrorType = rawLog.ErrorType
		}
		if entry.NormalizedMessage == "" {
			entry.NormalizedMessage = rawLog.NormalizedErrorMessage
		}
		if rawLog.TimestampUTC.Before(entry.FirstSeenUTC) {
			entry.FirstSeenUTC = rawLog.TimestampUTC
		}
		if rawLog.TimestampUTC.After(entry.LastSeenUTC) {
			entry.LastSeenUTC = rawLog.TimestampUTC
		}
	}

	results := make([]model.ErrorCatalogEntry, 0, len(entriesByKey))
	for _, entry := range entriesByKey {
		if entry.ErrorType == "" {
			entry.ErrorType = unknownErrorType
		}
		if entry.NormalizedMessage == "" {
			entry.NormalizedMessage = unknownErrorMessage
		}
		results = append(results, *entry)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].ErrorKey < results[j].ErrorKey
	})
	return results
}

// BuildOccurrences rebuilds the per-hour occurrence rows for errors whose
// key resolves to a catalog entry. Unresolvable keys are skipped silently;
// the next run picks them up once the catalog has caught up.
func BuildOccurrences(
	rawLogs []model.RawLog,
	catalogIDsByKey map[string]string,
) []model.ErrorOccurrence {
	type occurrenceKey struct {
		errorKey string
		metric   metricKey
	}
	occurrencesByKey := make(map[occurrenceKey]*model.ErrorOccurrence)

	for _, rawLog := range rawLogs {
		if rawLog.NormalizedErrorKey == "" {
			continue
		}
		catalogID, ok := catalogIDsByKey[rawLog.NormalizedErrorKey]
		if !ok {
			continue
		}
		key := occurrenceKey{
			errorKey: rawLog.NormalizedErrorKey,
			metric:   keyForRawLog(rawLog, timeseries.TruncateToHour(rawLog.TimestampUTC)),
		}
		occurrence, exists := occurrencesByKey[key]
		if !exists {
			occurrence = &model.ErrorOccurrence{
				ErrorCatalogID:   catalogID,
				ErrorKey:         key.errorKey,
				BucketStartUTC:   key.metric.bucketStart,
				Method:           key.metric.method,
				EndpointTemplate: key.metric.endpointTemplate,
				StatusCode:       key.metric.statusCode,
				Severity:         key.metric.severity,
				TenantID:         key.metric.tenantID,
			}
			occurrencesByKey[key] = occurrence
		}
		occurrence.OccurrenceCount++
	}

	results := make([]model.ErrorOccurrence, 0, len(occurrencesByKey))
	for _, occurrence := range occurrencesByKey {
		results = append(results, *occurrence)
	}
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.ErrorKey != b.ErrorKey {
			return a.ErrorKey < b.ErrorKey
		}
		if !a.BucketStartUTC.Equal(b.BucketStartUTC) {
			return a.BucketStartUTC.Before(b.BucketStartUTC)
		}
		if a.EndpointTemplate != b.EndpointTemplate {
			return a.EndpointTemplate < b.EndpointTemplate
		}
		return a.Method < b.Method
	})
	return results
}
