package model

import "time"

// EndpointMetric is one aggregate row keyed by
// (bucket start, method, endpoint template, status code, severity, tenant).
// Hourly and daily rows share the shape; only the bucket width differs.
type EndpointMetric struct {
	BucketStartUTC   time.Time `json:"bucket_start"`
	Method           string    `json:"method"`
	EndpointTemplate string    `json:"endpoint_template"`
	StatusCode       int       `json:"status_code"`
	Severity         string    `json:"severity"`
	TenantID         string    `json:"tenant_id"`
	RequestCount     int64     `json:"request_count"`
	ErrorCount       int64     `json:"error_count"`
	WarningCount     int64     `json:"warning_count"`
	TotalDurationMs  int64     `json:"total_duration_ms"`
	MinDurationMs    int       `json:"min_duration_ms"`
	MaxDurationMs    int       `json:"max_duration_ms"`
	P50DurationMs    int       `json:"p50_duration_ms"`
	P95DurationMs    int       `json:"p95_duration_ms"`
	P99DurationMs    int       `json:"p99_duration_ms"`
}

// ErrorCatalogEntry deduplicates semantically identical errors by their
// normalized key. Entries are upserted on every maintenance run and are
// never aged out by retention.
type ErrorCatalogEntry struct {
	ErrorKey          string    `json:"error_key"`
	ErrorType         string    `json:"error_type"`
	NormalizedMessage string    `json:"normalized_message"`
	FirstSeenUTC      time.Time `json:"first_seen"`
	LastSeenUTC       time.Time `json:"last_seen"`
	UpdatedAtUTC      time.Time `json:"updated_at"`
}

// ErrorOccurrence counts one catalog entry's hits within an hourly bucket,
// broken down by method/endpoint/status/severity/tenant.
type ErrorOccurrence struct {
	ErrorCatalogID   string    `json:"error_catalog_id"`
	ErrorKey         string    `json:"error_key"`
	BucketStartUTC   time.Time `json:"bucket_start"`
	Method           string    `json:"method"`
	EndpointTemplate string    `json:"endpoint_template"`
	StatusCode       int       `json:"status_code"`
	Severity         string    `json:"severity"`
	TenantID         string    `json:"tenant_id"`
	OccurrenceCount  int64     `json:"occurrence_count"`
}

// MaintenanceOptions parameterizes one aggregation run. All values are
// clamped server-side; zero values fall back to defaults.
type MaintenanceOptions struct {
	HourlyRecomputeWindowHours int `json:"hourly_recompute_window_hours"`
	DailyRecomputeWindowDays   int `json:"daily_recompute_window_days"`
	RawRetentionDays           int `json:"raw_retention_days"`
	AggregateRetentionDays     int `json:"aggregate_retention_days"`
}

// MaintenanceResult is the audit trail of one maintenance run.
type MaintenanceResult struct {
	ProcessedRawLogs           int   `json:"processed_raw_logs"`
	RecomputedHourlyBuckets    int   `json:"recomputed_hourly_buckets"`
	RecomputedDailyBuckets     int   `json:"recomputed_daily_buckets"`
	UpdatedErrorCatalogEntries int   `json:"updated_error_catalog_entries"`
	UpsertedErrorOccurrences   int   `json:"upserted_error_occurrences"`
	PurgedRawLogs              int64 `json:"purged_raw_logs"`
	PurgedAggregateRows        int64 `json:"purged_aggregate_rows"`
	PurgedErrorOccurrences     int64 `json:"purged_error_occurrences"`
}
