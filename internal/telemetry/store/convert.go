package store

import (
	"fmt"
	"time"

	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/model"
)

// Timestamps are stored as strict_date_optional_time strings.
const timestampLayout = time.RFC3339Nano

// Catalog timestamps use fixed-width milliseconds so the merge script can
// compare them lexicographically.
const catalogTimestampLayout = "2006-01-02T15:04:05.000Z"

func FormatTimestamp(value time.Time) string {
	return value.UTC().Format(timestampLayout)
}

func FormatCatalogTimestamp(value time.Time) string {
	return value.UTC().Format(catalogTimestampLayout)
}

// RawLogToDocument flattens a raw log into an index-ready document map.
func RawLogToDocument(rawLog model.RawLog) map[string]interface{} {
	return map[string]interface{}{
		"timestamp":                FormatTimestamp(rawLog.TimestampUTC),
		"correlation_id":           rawLog.CorrelationID,
		"trace_id":                 rawLog.TraceID,
		"method":                   rawLog.Method,
		"endpoint_template":        rawLog.EndpointTemplate,
		"path":                     rawLog.Path,
		"status_code":              rawLog.StatusCode,
		"duration_ms":              rawLog.DurationMs,
		"severity":                 rawLog.Severity,
		"is_error":                 rawLog.IsError,
		"warning_count":            rawLog.WarningCount,
		"warning_codes_json":       rawLog.WarningCodesJSON,
		"error_type":               rawLog.ErrorType,
		"normalized_error_message": rawLog.NormalizedErrorMessage,
		"normalized_error_key":     rawLog.NormalizedErrorKey,
		"ip_hash":                  rawLog.IPHash,
		"user_agent":               rawLog.UserAgent,
		"user_id":                  rawLog.UserID,
		"tenant_id":                rawLog.TenantID,
		"request_size_bytes":       rawLog.RequestSizeBytes,
		"response_size_bytes":      rawLog.ResponseSizeBytes,
		"scheme":                   rawLog.Scheme,
		"host":                     rawLog.Host,
		"created_at":               FormatTimestamp(rawLog.CreatedAtUTC),
	}
}

// RawLogsFromDocuments converts search hits back into raw logs.
func RawLogsFromDocuments(documents []map[string]interface{}) ([]model.RawLog, error) {
	rawLogs := make([]model.RawLog, len(documents))
	for i, document := range documents {
		timestamp, err := parseTimestampField(document, "timestamp")
		if err != nil {
			return nil, err
		}
		createdAt, _ := parseTimestampField(document, "created_at")
		rawLogs[i] = model.RawLog{
			ID:                     stringField(document, "_id"),
			TimestampUTC:           timestamp,
			CorrelationID:          stringField(document, "correlation_id"),
			TraceID:                stringField(document, "trace_id"),
			Method:                 stringField(document, "method"),
			EndpointTemplate:       stringField(document, "endpoint_template"),
			Path:                   stringField(document, "path"),
			StatusCode:             intField(document, "status_code"),
			DurationMs:             intField(document, "duration_ms"),
			Severity:               stringField(document, "severity"),
			IsError:                boolField(document, "is_error"),
			WarningCount:           intField(document, "warning_count"),
			WarningCodesJSON:       stringField(document, "warning_codes_json"),
			ErrorType:              stringField(document, "error_type"),
			NormalizedErrorMessage: stringField(document, "normalized_error_message"),
			NormalizedErrorKey:     stringField(document, "normalized_error_key"),
			IPHash:                 stringField(document, "ip_hash"),
			UserAgent:              stringField(document, "user_agent"),
			UserID:                 stringField(document, "user_id"),
			TenantID:               stringField(document, "tenant_id"),
			RequestSizeBytes:       int64Field(document, "request_size_bytes"),
			ResponseSizeBytes:      int64Field(document, "response_size_bytes"),
			Scheme:                 stringField(document, "scheme"),
			Host:                   stringField(document, "host"),
			CreatedAtUTC:           createdAt,
		}
	}
	return rawLogs, nil
}

// EndpointMetricToDocument flattens an aggregate row for bulk indexing.
func EndpointMetricToDocument(metric model.EndpointMetric) map[string]interface{} {
	return map[string]interface{}{
		"bucket_start":      FormatTimestamp(metric.BucketStartUTC),
		"method":            metric.Method,
		"endpoint_template": metric.EndpointTemplate,
		"status_code":       metric.StatusCode,
		"severity":          metric.Severity,
		"tenant_id":         metric.TenantID,
		"request_count":     metric.RequestCount,
		"error_count":       metric.ErrorCount,
		"warning_count":     metric.WarningCount,
		"total_duration_ms": metric.TotalDurationMs,
		"min_duration_ms":   metric.MinDurationMs,
		"max_duration_ms":   metric.MaxDurationMs,
		"p50_duration_ms":   metric.P50DurationMs,
		"p95_duration_ms":   metric.P95DurationMs,
		"p99_duration_ms":   metric.P99DurationMs,
	}
}

// EndpointMetricsFromDocuments converts aggregate search hits back into rows.
func EndpointMetricsFromDocuments(documents []map[string]interface{}) ([]model.EndpointMetric, error) {
	metrics := make([]model.EndpointMetric, len(documents))
	for i, document := range documents {
		bucketStart, err := parseTimestampField(document, "bucket_start")
		if err != nil {
			return nil, err
		}
		metrics[i] = model.EndpointMetric{
			BucketStartUTC:   bucketStart,
			Method:           stringField(document, "method"),
			EndpointTemplate: stringField(document, "endpoint_template"),
			StatusCode:       intField(document, "status_code"),
			Severity:         stringField(document, "severity"),
			TenantID:         stringField(document, "tenant_id"),
			RequestCount:     int64Field(document, "request_count"),
			ErrorCount:       int64Field(document, "error_count"),
			WarningCount:     int64Field(document, "warning_count"),
			TotalDurationMs:  int64Field(document, "total_duration_ms"),
			MinDurationMs:    intField(document, "min_duration_ms"),
			MaxDurationMs:    intField(document, "max_duration_ms"),
			P50DurationMs:    intField(document, "p50_duration_ms"),
			P95DurationMs:    intField(document, "p95_duration_ms"),
			P99DurationMs:    intField(document, "p99_duration_ms"),
		}
	}
	return metrics, nil
}

// ErrorCatalogEntryToDocument flattens a catalog entry for the upsert branch
// that inserts a previously unseen error key.
func ErrorCatalogEntryToDocument(entry model.ErrorCatalogEntry) map[string]interface{} {
	return map[string]interface{}{
		"error_key":          entry.ErrorKey,
		"error_type":         entry.ErrorType,
		"normalized_message": entry.NormalizedMessage,
		"first_seen":         FormatCatalogTimestamp(entry.FirstSeenUTC),
		"last_seen":          FormatCatalogTimestamp(entry.LastSeenUTC),
		"updated_at":         FormatCatalogTimestamp(entry.UpdatedAtUTC),
	}
}

// ErrorCatalogEntriesFromDocuments converts catalog search hits back into
// entries.
func ErrorCatalogEntriesFromDocuments(documents []map[string]interface{}) ([]model.ErrorCatalogEntry, error) {
	entries := make([]model.ErrorCatalogEntry, len(documents))
	for i, document := range documents {
		firstSeen, err := parseTimestampField(document, "first_seen")
		if err != nil {
			return nil, err
		}
		lastSeen, err := parseTimestampField(document, "last_seen")
		if err != nil {
			return nil, err
		}
		updatedAt, _ := parseTimestampField(document, "updated_at")
		entries[i] = model.ErrorCatalogEntry{
			ErrorKey:          stringField(document, "error_key"),
			ErrorType:         stringField(document, "error_type"),
			NormalizedMessage: stringField(document, "normalized_message"),
			FirstSeenUTC:      firstSeen,
			LastSeenUTC:       lastSeen,
			UpdatedAtUTC:      updatedAt,
		}
	}
	return entries, nil
}

// ErrorOccurrencesFromDocuments converts occurrence search hits back into rows.
func ErrorOccurrencesFromDocuments(documents []map[string]interface{}) ([]model.ErrorOccurrence, error) {
	occurrences := make([]model.ErrorOccurrence, len(documents))
	for i, document := range documents {
		bucketStart, err := parseTimestampField(document, "bucket_start")
		if err != nil {
			return nil, err
		}
		occurrences[i] = model.ErrorOccurrence{
			ErrorCatalogID:   stringField(document, "error_catalog_id"),
			ErrorKey:         stringField(document, "error_key"),
			BucketStartUTC:   bucketStart,
			Method:           stringField(document, "method"),
			EndpointTemplate: stringField(document, "endpoint_template"),
			StatusCode:       intField(document, "status_code"),
			Severity:         stringField(document, "severity"),
			TenantID:         stringField(document, "tenant_id"),
			OccurrenceCount:  int64Field(document, "occurrence_count"),
		}
	}
	return occurrences, nil
}

// ErrorOccurrenceToDocument flattens an occurrence row for bulk indexing.
func ErrorOccurrenceToDocument(occurrence model.ErrorOccurrence) map[string]interface{} {
	return map[string]interface{}{
		"error_catalog_id":  occurrence.ErrorCatalogID,
		"error_key":         occurrence.ErrorKey,
		"bucket_start":      FormatTimestamp(occurrence.BucketStartUTC),
		"method":            occurrence.Method,
		"endpoint_template": occurrence.EndpointTemplate,
		"status_code":       occurrence.StatusCode,
		"severity":          occurrence.Severity,
		"tenant_id":         occurrence.TenantID,
		"occurrence_count":  occurrence.OccurrenceCount,
	}
}

func parseTimestampField(document map[string]interface{}, field string) (time.Time, error) {
	raw, ok := document[field].(string)
	if !ok {
		return time.Time{}, fmt.Errorf("document field %s is not a timestamp string", field)
	}
	parsed, err := time.Parse(timestampLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse document field %s: %w", field, err)
	}
	return parsed.UTC(), nil
}

func stringField(document map[string]interface{}, field string) string {
	value, _ := document[field].(string)
	return value
}

func boolField(document map[string]interface{}, field string) bool {
	value, _ := document[field].(bool)
	return value
}

func intField(document map[string]interface{}, field string) int {
	switch value := document[field].(type) {
	case float64:
		return int(value)
	case int:
		return value
	default:
		return 0
	}
}

func int64Field(document map[string]interface{}, field string) int64 {
	switch value := document[field].(type) {
	case float64:
		return int64(value)
	case int64:
		return value
	case int:
		return int64(value)
	default:
		return 0
	}
}
