package aggregation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/metrics"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/model"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/store"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/store/bootstrapper"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/timeseries"
	"go.uber.org/zap"
)

const (
	DefaultHourlyWindowHours = 6
	DefaultDailyWindowDays   = 30
	DefaultRawRetentionDays  = 14
	DefaultAggRetentionDays  = 180
)

const rawLogPageSize = 5000
const catalogLookupBatchSize = 1000
const releaseTimeout = 10 * time.Second

// Engine recomputes aggregate rows from raw logs and applies retention. A
// run always rewrites its full recompute window, so rerunning after a
// partial failure converges to the same rows.
type Engine interface {
	RunMaintenance(ctx context.Context, options model.MaintenanceOptions) (model.MaintenanceResult, error)
}

type EngineImpl struct {
	sc       store.Client
	lock     MaintenanceLock
	logger   *zap.Logger
	now      func() time.Time
	pageSize int
}

func NewEngineImpl(sc store.Client, lock MaintenanceLock, logger *zap.Logger) *EngineImpl {
	if lock == nil {
		lock = NewLocalMaintenanceLock()
	}
	return &EngineImpl{
		sc:       sc,
		lock:     lock,
		logger:   logger,
		now:      time.Now,
		pageSize: rawLogPageSize,
	}
}

// ClampOptions bounds window and retention settings, substituting defaults
// for non-positive values.
func ClampOptions(options model.MaintenanceOptions) model.MaintenanceOptions {
	return model.MaintenanceOptions{
		HourlyRecomputeWindowHours: clampWithDefault(options.HourlyRecomputeWindowHours, 1, 168, DefaultHourlyWindowHours),
		DailyRecomputeWindowDays:   clampWithDefault(options.DailyRecomputeWindowDays, 1, 365, DefaultDailyWindowDays),
		RawRetentionDays:           clampWithDefault(options.RawRetentionDays, 1, 180, DefaultRawRetentionDays),
		AggregateRetentionDays:     clampWithDefault(options.AggregateRetentionDays, 7, 730, DefaultAggRetentionDays),
	}
}

func clampWithDefault(value, min, max, fallback int) int {
	if value <= 0 {
		return fallback
	}
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func (e *EngineImpl) RunMaintenance(
	ctx context.Context,
	options model.MaintenanceOptions,
) (model.MaintenanceResult, error) {
	startedAt := time.Now()

	acquired, err := e.lock.Acquire(ctx)
	if err != nil {
		metrics.ObserveMaintenanceRun(time.Since(startedAt), metrics.OutcomeError)
		return model.MaintenanceResult{}, fmt.Errorf("failed to acquire maintenance lock: %w", err)
	}
	if !acquired {
		metrics.ObserveMaintenanceRun(time.Since(startedAt), metrics.OutcomeSkipped)
		return model.MaintenanceResult{}, ErrMaintenanceInProgress
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if releaseErr := e.lock.Release(releaseCtx); releaseErr != nil {
			e.logger.Error("Failed to release maintenance lock", zap.Error(releaseErr))
		}
	}()

	result, err := e.rebuild(ctx, ClampOptions(options))
	if err != nil {
		metrics.ObserveMaintenanceRun(time.Since(startedAt), metrics.OutcomeError)
		return model.MaintenanceResult{}, err
	}
	metrics.ObserveMaintenanceRun(time.Since(startedAt), metrics.OutcomeSuccess)

	e.logger.Info(
		"Maintenance run completed",
		zap.Duration("elapsed", time.Since(startedAt)),
		zap.Int("processed_raw_logs", result.ProcessedRawLogs),
		zap.Int("recomputed_hourly_buckets", result.RecomputedHourlyBuckets),
		zap.Int("recomputed_daily_buckets", result.RecomputedDailyBuckets),
		zap.Int("updated_error_catalog_entries", result.UpdatedErrorCatalogEntries),
		zap.Int("upserted_error_occurrences", result.UpsertedErrorOccurrences),
		zap.Int64("purged_raw_logs", result.PurgedRawLogs),
		zap.Int64("purged_aggregate_rows", result.PurgedAggregateRows),
		zap.Int64("purged_error_occurrences", result.PurgedErrorOccurrences),
	)
	return result, nil
}

func (e *EngineImpl) rebuild(
	ctx context.Context,
	options model.MaintenanceOptions,
) (model.MaintenanceResult, error) {
	var result model.MaintenanceResult
	now := e.now().UTC()

	hourlyFrom := timeseries.TruncateToHour(now.Add(-time.Duration(options.HourlyRecomputeWindowHours) * time.Hour))
	dailyFrom := timeseries.TruncateToDay(now.AddDate(0, 0, -(options.DailyRecomputeWindowDays - 1)))
	loadFrom := hourlyFrom
	if dailyFrom.Before(loadFrom) {
		loadFrom = dailyFrom
	}

	rawLogs, err := e.loadRawLogs(ctx, loadFrom, now)
	if err != nil {
		return result, err
	}

	hourlyLogs := filterSince(rawLogs, hourlyFrom)
	dailyLogs := rawLogs
	if dailyFrom.After(loadFrom) {
		dailyLogs = filterSince(rawLogs, dailyFrom)
	}
	result.ProcessedRawLogs = len(hourlyLogs)

	hourlyMetrics := BuildHourlyMetrics(hourlyLogs)
	if err := e.replaceMetricsWindow(ctx, bootstrapper.MetricsHourlyIndexName, hourlyFrom, hourlyMetrics); err != nil {
		return result, err
	}
	result.RecomputedHourlyBuckets = countDistinctBuckets(hourlyLogs, timeseries.TruncateToHour)

	dailyMetrics := BuildDailyMetrics(dailyLogs)
	if err := e.replaceMetricsWindow(ctx, bootstrapper.MetricsDailyIndexName, dailyFrom, dailyMetrics); err != nil {
		return result, err
	}
	result.RecomputedDailyBuckets = countDistinctBuckets(dailyLogs, timeseries.TruncateToDay)

	catalogUpdates := BuildCatalogUpdates(hourlyLogs, now)
	if err := e.upsertCatalogEntries(ctx, catalogUpdates); err != nil {
		return result, err
	}
	result.UpdatedErrorCatalogEntries = len(catalogUpdates)

	catalogIDsByKey, err := e.resolveCatalogIDs(ctx, catalogUpdates)
	if err != nil {
		return result, err
	}
	occurrences := BuildOccurrences(hourlyLogs, catalogIDsByKey)
	if err := e.replaceOccurrencesWindow(ctx, hourlyFrom, occurrences); err != nil {
		return result, err
	}
	result.UpsertedErrorOccurrences = len(occurrences)

	if err := e.applyRetention(ctx, now, options, &result); err != nil {
		return result, err
	}
	return result, nil
}

// loadRawLogs pages the whole recompute window into memory ordered by
// timestamp, the way the aggregation math expects it. Paging uses
// search_after on the sort key so windows larger than the store's
// max_result_window still load completely.
func (e *EngineImpl) loadRawLogs(ctx context.Context, from time.Time, until time.Time) ([]model.RawLog, error) {
	var rawLogs []model.RawLog
	var searchAfter []interface{}
	for {
		parts := map[string]interface{}{
			"query": map[string]interface{}{
				"range": map[string]interface{}{
					"timestamp": map[string]interface{}{
						"gte": store.FormatTimestamp(from),
						"lte": store.FormatTimestamp(until),
					},
				},
			},
			"sort": []interface{}{
				map[string]interface{}{"timestamp": "asc"},
				map[string]interface{}{"correlation_id": "asc"},
			},
		}
		if searchAfter != nil {
			parts["search_after"] = searchAfter
		}
		body, err := buildQueryBody(parts)
		if err != nil {
			return nil, err
		}

		pageSize := e.pageSize
		documents, err := e.sc.Search(ctx, body, []string{bootstrapper.RawRequestIndexName}, &pageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to load raw logs: %w", err)
		}
		page, err := store.RawLogsFromDocuments(documents)
		if err != nil {
			return nil, err
		}
		rawLogs = append(rawLogs, page...)
		if len(documents) < e.pageSize || len(page) == 0 {
			return rawLogs, nil
		}
		last := page[len(page)-1]
		searchAfter = []interface{}{store.FormatTimestamp(last.TimestampUTC), last.CorrelationID}
	}
}

// countDistinctBuckets counts the distinct bucket starts the given logs
// fall into under the given truncation.
func countDistinctBuckets(rawLogs []model.RawLog, truncate func(time.Time) time.Time) int {
	buckets := make(map[time.Time]struct{})
	for _, rawLog := range rawLogs {
		buckets[truncate(rawLog.TimestampUTC)] = struct{}{}
	}
	return len(buckets)
}

// replaceMetricsWindow deletes every aggregate row whose bucket starts at or
// after the window start, then inserts the recomputed rows. Deleting first
// keeps the rewrite idempotent.
func (e *EngineImpl) replaceMetricsWindow(
	ctx context.Context,
	index string,
	from time.Time,
	rows []model.EndpointMetric,
) error {
	if err := e.deleteBucketsSince(ctx, []string{index}, from); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	documents := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		documents[i] = store.EndpointMetricToDocument(row)
	}
	if err := e.sc.BulkIndex(ctx, documents, index); err != nil {
		return fmt.Errorf("failed to write aggregate rows to %s: %w", index, err)
	}
	return nil
}

func (e *EngineImpl) replaceOccurrencesWindow(
	ctx context.Context,
	from time.Time,
	occurrences []model.ErrorOccurrence,
) error {
	if err := e.deleteBucketsSince(ctx, []string{bootstrapper.ErrorOccurrenceIndexName}, from); err != nil {
		return err
	}
	if len(occurrences) == 0 {
		return nil
	}
	documents := make([]map[string]interface{}, len(occurrences))
	for i, occurrence := range occurrences {
		documents[i] = store.ErrorOccurrenceToDocument(occurrence)
	}
	if err := e.sc.BulkIndex(ctx, documents, bootstrapper.ErrorOccurrenceIndexName); err != nil {
		return fmt.Errorf("failed to write error occurrences: %w", err)
	}
	return nil
}

func (e *EngineImpl) deleteBucketsSince(ctx context.Context, indices []string, from time.Time) error {
	body, err := buildQueryBody(map[string]interface{}{
		"query": map[string]interface{}{
			"range": map[string]interface{}{
				"bucket_start": map[string]interface{}{
					"gte": store.FormatTimestamp(from),
				},
			},
		},
	})
	if err != nil {
		return err
	}
	if _, err := e.sc.DeleteByQuery(ctx, body, indices); err != nil {
		return fmt.Errorf("failed to clear aggregate window in %v: %w", indices, err)
	}
	return nil
}

// upsertCatalogEntries merges each entry into the catalog under its error
// key. Existing rows keep their earliest first_seen and only move last_seen
// forward; type and message always refresh to the latest computed values.
func (e *EngineImpl) upsertCatalogEntries(ctx context.Context, entries []model.ErrorCatalogEntry) error {
	const mergeScript = `
if (params.first_seen.compareTo(ctx._source.first_seen) < 0) {
	ctx._source.first_seen = params.first_seen;
}
if (params.last_seen.compareTo(ctx._source.last_seen) > 0) {
	ctx._source.last_seen = params.last_seen;
}
ctx._source.error_type = params.error_type;
ctx._source.normalized_message = params.normalized_message;
ctx._source.updated_at = params.updated_at;
`
	for _, entry := range entries {
		body := map[string]interface{}{
			"script": map[string]interface{}{
				"source": mergeScript,
				"lang":   "painless",
				"params": map[string]interface{}{
					"error_type":         entry.ErrorType,
					"normalized_message": entry.NormalizedMessage,
					"first_seen":         store.FormatCatalogTimestamp(entry.FirstSeenUTC),
					"last_seen":          store.FormatCatalogTimestamp(entry.LastSeenUTC),
					"updated_at":         store.FormatCatalogTimestamp(entry.UpdatedAtUTC),
				},
			},
			"upsert": store.ErrorCatalogEntryToDocument(entry),
		}
		if err := e.sc.Upsert(ctx, body, bootstrapper.ErrorCatalogIndexName, entry.ErrorKey); err != nil {
			return fmt.Errorf("failed to upsert error catalog entry %s: %w", entry.ErrorKey, err)
		}
	}
	return nil
}

// resolveCatalogIDs maps error keys to catalog document ids. Keys that do
// not resolve are left out; occurrence building skips them.
func (e *EngineImpl) resolveCatalogIDs(
	ctx context.Context,
	entries []model.ErrorCatalogEntry,
) (map[string]string, error) {
	catalogIDsByKey := make(map[string]string, len(entries))
	for start := 0; start < len(entries); start += catalogLookupBatchSize {
		end := start + catalogLookupBatchSize
		if end > len(entries) {
			end = len(entries)
		}
		keys := make([]string, 0, end-start)
		for _, entry := range entries[start:end] {
			keys = append(keys, entry.ErrorKey)
		}

		body, err := buildQueryBody(map[string]interface{}{
			"query": map[string]interface{}{
				"terms": map[string]interface{}{
					"error_key": keys,
				},
			},
		})
		if err != nil {
			return nil, err
		}
		batchSize := len(keys)
		documents, err := e.sc.Search(ctx, body, []string{bootstrapper.ErrorCatalogIndexName}, &batchSize)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve error catalog ids: %w", err)
		}
		for _, document := range documents {
			key, _ := document["error_key"].(string)
			id, _ := document["_id"].(string)
			if key != "" && id != "" {
				catalogIDsByKey[key] = id
			}
		}
	}
	return catalogIDsByKey, nil
}

func (e *EngineImpl) applyRetention(
	ctx context.Context,
	now time.Time,
	options model.MaintenanceOptions,
	result *model.MaintenanceResult,
) error {
	rawCutoff := now.AddDate(0, 0, -options.RawRetentionDays)
	purgedRaw, err := e.deleteOlderThan(ctx, []string{bootstrapper.RawRequestIndexName}, "timestamp", rawCutoff)
	if err != nil {
		return err
	}
	result.PurgedRawLogs = purgedRaw

	// Daily rows are purged at day granularity so a bucket is only dropped
	// once its whole day has aged out.
	aggregateCutoff := now.AddDate(0, 0, -options.AggregateRetentionDays)
	purgedHourlyAggregates, err := e.deleteOlderThan(
		ctx,
		[]string{bootstrapper.MetricsHourlyIndexName},
		"bucket_start",
		aggregateCutoff,
	)
	if err != nil {
		return err
	}
	purgedDailyAggregates, err := e.deleteOlderThan(
		ctx,
		[]string{bootstrapper.MetricsDailyIndexName},
		"bucket_start",
		timeseries.TruncateToDay(aggregateCutoff),
	)
	if err != nil {
		return err
	}
	result.PurgedAggregateRows = purgedHourlyAggregates + purgedDailyAggregates

	purgedOccurrences, err := e.deleteOlderThan(
		ctx,
		[]string{bootstrapper.ErrorOccurrenceIndexName},
		"bucket_start",
		aggregateCutoff,
	)
	if err != nil {
		return err
	}
	result.PurgedErrorOccurrences = purgedOccurrences
	return nil
}

func (e *EngineImpl) deleteOlderThan(
	ctx context.Context,
	indices []string,
	field string,
	cutoff time.Time,
) (int64, error) {
	body, err := buildQueryBody(map[string]interface{}{
		"query": map[string]interface{}{
			"range": map[string]interface{}{
				field: map[string]interface{}{
					"lt": store.FormatTimestamp(cutoff),
				},
			},
		},
	})
	if err != nil {
		return 0, err
	}
	deleted, err := e.sc.DeleteByQuery(ctx, body, indices)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired rows from %v: %w", indices, err)
	}
	return deleted, nil
}

func filterSince(rawLogs []model.RawLog, from time.Time) []model.RawLog {
	filtered := make([]model.RawLog, 0, len(rawLogs))
	for _, rawLog := range rawLogs {
		if !rawLog.TimestampUTC.Before(from) {
			filtered = append(filtered, rawLog)
		}
	}
	return filtered
}

func buildQueryBody(parts map[string]interface{}) (string, error) {
	body, err := json.Marshal(parts)
	if err != nil {
		return "", fmt.Errorf("failed to marshal query body: %w", err)
	}
	return string(body), nil
}
