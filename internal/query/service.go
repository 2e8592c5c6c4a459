package query

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/model"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/store"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/store/bootstrapper"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/timeseries"
	"go.uber.org/zap"
)

const (
	// windowPageSize is how many raw rows one store round trip fetches when
	// paging a chart window.
	windowPageSize = 5000
	// MaxPageSize bounds the raw request listing page.
	MaxPageSize = 200
	// MaxTake bounds top-N endpoint listings.
	MaxTake             = 100
	DefaultTake         = 20
	topErrorGroups      = 30
	overviewTopN        = 10
	overviewCacheTTL    = 10 * time.Second
	maxErrorSamples     = 25
	defaultErrorSamples = 10
)

// Service answers the monitoring dashboard's read queries over raw logs and
// the error catalog.
type Service interface {
	GetOverview(ctx context.Context, rangeToken string, filters RequestFilters) (OverviewResult, error)
	GetTopEndpoints(ctx context.Context, filters RequestFilters, take int) ([]EndpointStat, error)
	GetLatency(ctx context.Context, rangeToken string, filters RequestFilters) (LatencyResult, error)
	GetErrors(ctx context.Context, rangeToken string, filters RequestFilters, groupBy string) (ErrorsResult, error)
	GetErrorDetails(ctx context.Context, rangeToken string, filters RequestFilters, groupBy string, key string, take int) (*ErrorDetails, error)
	GetRequests(ctx context.Context, filters RequestFilters, page int, pageSize int) (RequestsPage, error)
	GetRequestByCorrelationID(ctx context.Context, correlationID string) (*RequestDetail, error)
	ExportRequestsCSV(ctx context.Context, filters RequestFilters, limit int) ([]byte, error)
}

type ServiceImpl struct {
	sc       store.Client
	cache    *ristretto.Cache
	logger   *zap.Logger
	pageSize int
}

func NewServiceImpl(sc store.Client, cache *ristretto.Cache, logger *zap.Logger) *ServiceImpl {
	return &ServiceImpl{
		sc:       sc,
		cache:    cache,
		logger:   logger,
		pageSize: windowPageSize,
	}
}

// NewOverviewCache builds the short-lived cache that absorbs dashboard
// refresh bursts.
func NewOverviewCache() (*ristretto.Cache, error) {
	return ristretto.NewCache(&ristretto.Config{
		NumCounters: 10000,
		MaxCost:     1000,
		BufferItems: 64,
	})
}

func (s *ServiceImpl) GetOverview(
	ctx context.Context,
	rangeToken string,
	filters RequestFilters,
) (OverviewResult, error) {
	cacheKey := overviewCacheKey(rangeToken, filters)
	if s.cache != nil {
		if cached, found := s.cache.Get(cacheKey); found {
			if result, ok := cached.(OverviewResult); ok {
				return result, nil
			}
		}
	}

	rawLogs, err := s.loadWindowLogs(ctx, filters)
	if err != nil {
		return OverviewResult{}, err
	}

	bucketMinutes := BucketMinutes(filters.From, filters.To)
	result := OverviewResult{
		RangeToken:    rangeToken,
		FromUTC:       filters.From,
		ToUTC:         filters.To,
		BucketMinutes: bucketMinutes,
		Series:        buildSeries(rawLogs, bucketMinutes),
		TopErrors:     []ErrorGroup{},
	}

	type endpointKey struct {
		method   string
		endpoint string
	}
	durations := make([]int, 0, len(rawLogs))
	endpointCounts := make(map[endpointKey]int64)
	statusCounts := make(map[int]int64)
	var totalDuration int64
	for _, rawLog := range rawLogs {
		result.TotalRequests++
		if model.IsErrorOutcome(rawLog.StatusCode, rawLog.IsError) {
			result.ErrorCount++
		}
		result.WarningCount += int64(rawLog.WarningCount)
		totalDuration += int64(rawLog.DurationMs)
		durations = append(durations, rawLog.DurationMs)
		endpointCounts[endpointKey{
			method:   model.NormalizeMethod(rawLog.Method),
			endpoint: model.NormalizeEndpointTemplate(rawLog.EndpointTemplate),
		}]++
		statusCounts[rawLog.StatusCode]++
	}
	result.ErrorRatePercent = timeseries.RoundPercent(result.ErrorCount, result.TotalRequests)
	if windowMinutes := filters.To.Sub(filters.From).Minutes(); windowMinutes > 0 {
		result.RequestsPerMin = math.Round(float64(result.TotalRequests)/windowMinutes*100) / 100
	}
	if result.TotalRequests > 0 {
		result.AvgDurationMs = int(totalDuration / result.TotalRequests)
	}
	result.P95DurationMs = timeseries.Percentile(durations, 0.95)
	result.P99DurationMs = timeseries.Percentile(durations, 0.99)

	for key, count := range endpointCounts {
		top := result.TopEndpoint
		if top == nil || count > top.RequestCount ||
			(count == top.RequestCount && key.endpoint < top.EndpointTemplate) {
			result.TopEndpoint = &TopEndpoint{
				Method:           key.method,
				EndpointTemplate: key.endpoint,
				RequestCount:     count,
			}
		}
	}
	result.StatusCounts = make([]StatusCount, 0, len(statusCounts))
	for status, count := range statusCounts {
		result.StatusCounts = append(result.StatusCounts, StatusCount{StatusCode: status, Count: count})
	}
	sort.Slice(result.StatusCounts, func(i, j int) bool {
		if result.StatusCounts[i].Count != result.StatusCounts[j].Count {
			return result.StatusCounts[i].Count > result.StatusCounts[j].Count
		}
		return result.StatusCounts[i].StatusCode < result.StatusCounts[j].StatusCode
	})

	groups := groupErrors(rawLogs, GroupByType)
	if len(groups) > overviewTopN {
		groups = groups[:overviewTopN]
	}
	result.TopErrors = groups

	if s.cache != nil {
		s.cache.SetWithTTL(cacheKey, result, 1, overviewCacheTTL)
	}
	return result, nil
}

func (s *ServiceImpl) GetTopEndpoints(
	ctx context.Context,
	filters RequestFilters,
	take int,
) ([]EndpointStat, error) {
	if take <= 0 {
		take = DefaultTake
	}
	if take > MaxTake {
		take = MaxTake
	}

	rawLogs, err := s.loadWindowLogs(ctx, filters)
	if err != nil {
		return nil, err
	}

	type endpointKey struct {
		method   string
		endpoint string
	}
	type endpointAccumulator struct {
		requestCount  int64
		errorCount    int64
		warningCount  int64
		totalDuration int64
		maxDuration   int
		durations     []int
	}
	accumulators := make(map[endpointKey]*endpointAccumulator)
	for _, rawLog := range rawLogs {
		key := endpointKey{
			method:   model.NormalizeMethod(rawLog.Method),
			endpoint: model.NormalizeEndpointTemplate(rawLog.EndpointTemplate),
		}
		acc, ok := accumulators[key]
		if !ok {
			acc = &endpointAccumulator{}
			accumulators[key] = acc
		}
		acc.requestCount++
		if model.IsErrorOutcome(rawLog.StatusCode, rawLog.IsError) {
			acc.errorCount++
		}
		acc.warningCount += int64(rawLog.WarningCount)
		acc.totalDuration += int64(rawLog.DurationMs)
		if rawLog.DurationMs > acc.maxDuration {
			acc.maxDuration = rawLog.DurationMs
		}
		acc.durations = append(acc.durations, rawLog.DurationMs)
	}

	stats := make([]EndpointStat, 0, len(accumulators))
	for key, acc := range accumulators {
		stats = append(stats, EndpointStat{
			Method:           key.method,
			EndpointTemplate: key.endpoint,
			RequestCount:     acc.requestCount,
			ErrorCount:       acc.errorCount,
			ErrorRatePercent: timeseries.RoundPercent(acc.errorCount, acc.requestCount),
			WarningCount:     acc.warningCount,
			AvgDurationMs:    int(acc.totalDuration / acc.requestCount),
			P95DurationMs:    timeseries.Percentile(acc.durations, 0.95),
			P99DurationMs:    timeseries.Percentile(acc.durations, 0.99),
			MaxDurationMs:    acc.maxDuration,
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].RequestCount != stats[j].RequestCount {
			return stats[i].RequestCount > stats[j].RequestCount
		}
		if stats[i].P95DurationMs != stats[j].P95DurationMs {
			return stats[i].P95DurationMs > stats[j].P95DurationMs
		}
		if stats[i].EndpointTemplate != stats[j].EndpointTemplate {
			return stats[i].EndpointTemplate < stats[j].EndpointTemplate
		}
		return stats[i].Method < stats[j].Method
	})
	if len(stats) > take {
		stats = stats[:take]
	}
	return stats, nil
}

func (s *ServiceImpl) GetLatency(
	ctx context.Context,
	rangeToken string,
	filters RequestFilters,
) (LatencyResult, error) {
	rawLogs, err := s.loadWindowLogs(ctx, filters)
	if err != nil {
		return LatencyResult{}, err
	}

	bucketMinutes := BucketMinutes(filters.From, filters.To)
	durationsByBucket := make(map[time.Time][]int)
	allDurations := make([]int, 0, len(rawLogs))
	minDuration, maxDuration := 0, 0
	for i, rawLog := range rawLogs {
		bucket := timeseries.TruncateToBucket(rawLog.TimestampUTC, bucketMinutes)
		durationsByBucket[bucket] = append(durationsByBucket[bucket], rawLog.DurationMs)
		allDurations = append(allDurations, rawLog.DurationMs)
		if i == 0 || rawLog.DurationMs < minDuration {
			minDuration = rawLog.DurationMs
		}
		if rawLog.DurationMs > maxDuration {
			maxDuration = rawLog.DurationMs
		}
	}

	series := make([]LatencyPoint, 0, len(durationsByBucket))
	for bucket, durations := range durationsByBucket {
		var total int64
		for _, duration := range durations {
			total += int64(duration)
		}
		series = append(series, LatencyPoint{
			BucketStartUTC: bucket,
			RequestCount:   int64(len(durations)),
			AvgDurationMs:  int(total / int64(len(durations))),
			P50DurationMs:  timeseries.Percentile(durations, 0.50),
			P95DurationMs:  timeseries.Percentile(durations, 0.95),
			P99DurationMs:  timeseries.Percentile(durations, 0.99),
		})
	}
	sort.Slice(series, func(i, j int) bool {
		return series[i].BucketStartUTC.Before(series[j].BucketStartUTC)
	})

	return LatencyResult{
		RangeToken:    rangeToken,
		BucketMinutes: bucketMinutes,
		P50DurationMs: timeseries.Percentile(allDurations, 0.50),
		P95DurationMs: timeseries.Percentile(allDurations, 0.95),
		P99DurationMs: timeseries.Percentile(allDurations, 0.99),
		MinDurationMs: minDuration,
		MaxDurationMs: maxDuration,
		Series:        series,
	}, nil
}

func (s *ServiceImpl) GetErrors(
	ctx context.Context,
	rangeToken string,
	filters RequestFilters,
	groupBy string,
) (ErrorsResult, error) {
	filters.OnlyErrors = true
	groupBy = NormalizeGroupBy(groupBy)

	rawLogs, err := s.loadWindowLogs(ctx, filters)
	if err != nil {
		return ErrorsResult{}, err
	}

	groups := groupErrors(rawLogs, groupBy)
	if len(groups) > topErrorGroups {
		groups = groups[:topErrorGroups]
	}
	if groupBy == GroupByType {
		if err := s.enrichWithCatalog(ctx, groups); err != nil {
			s.logger.Warn("Failed to enrich error groups with catalog entries", zap.Error(err))
		}
	}

	bucketMinutes := BucketMinutes(filters.From, filters.To)
	countsByBucket := make(map[time.Time]int64)
	for _, rawLog := range rawLogs {
		countsByBucket[timeseries.TruncateToBucket(rawLog.TimestampUTC, bucketMinutes)]++
	}
	series := make([]ErrorSeriesPoint, 0, len(countsByBucket))
	for bucket, count := range countsByBucket {
		series = append(series, ErrorSeriesPoint{BucketStartUTC: bucket, Count: count})
	}
	sort.Slice(series, func(i, j int) bool {
		return series[i].BucketStartUTC.Before(series[j].BucketStartUTC)
	})

	return ErrorsResult{
		RangeToken:    rangeToken,
		GroupBy:       groupBy,
		BucketMinutes: bucketMinutes,
		TotalErrors:   int64(len(rawLogs)),
		Groups:        groups,
		Series:        series,
	}, nil
}

// GetErrorDetails drills into one error group: a summary, an occurrence
// series, and the most recent sample requests. The key is whatever label key
// the grouped listing handed out, including the synthetic "status:N" keys
// that keyless errors group under. Returns nil when the key matches nothing
// in the window.
func (s *ServiceImpl) GetErrorDetails(
	ctx context.Context,
	rangeToken string,
	filters RequestFilters,
	groupBy string,
	key string,
	take int,
) (*ErrorDetails, error) {
	if take <= 0 {
		take = defaultErrorSamples
	}
	if take > maxErrorSamples {
		take = maxErrorSamples
	}
	filters.OnlyErrors = true
	groupBy = NormalizeGroupBy(groupBy)

	rawLogs, err := s.loadWindowLogs(ctx, filters)
	if err != nil {
		return nil, err
	}

	matched := make([]model.RawLog, 0, len(rawLogs))
	for _, rawLog := range rawLogs {
		if matchesErrorGroup(rawLog, groupBy, key) {
			matched = append(matched, rawLog)
		}
	}
	if len(matched) == 0 {
		return nil, nil
	}

	details := &ErrorDetails{
		RangeToken:   rangeToken,
		GroupBy:      groupBy,
		Key:          key,
		Count:        int64(len(matched)),
		FirstSeenUTC: matched[0].TimestampUTC,
		LastSeenUTC:  matched[0].TimestampUTC,
	}
	templateCounts := make(map[string]int64)
	statusCounts := make(map[int]int64)
	for _, rawLog := range matched {
		if rawLog.TimestampUTC.Before(details.FirstSeenUTC) {
			details.FirstSeenUTC = rawLog.TimestampUTC
		}
		if rawLog.TimestampUTC.After(details.LastSeenUTC) {
			details.LastSeenUTC = rawLog.TimestampUTC
		}
		if details.ErrorType == "" {
			details.ErrorType = rawLog.ErrorType
		}
		if details.NormalizedMessage == "" {
			details.NormalizedMessage = rawLog.NormalizedErrorMessage
		}
		templateCounts[model.NormalizeEndpointTemplate(rawLog.EndpointTemplate)]++
		statusCounts[rawLog.StatusCode]++
	}
	details.EndpointTemplate = mostFrequentTemplate(templateCounts)
	for status, count := range statusCounts {
		if count > statusCounts[details.TopStatusCode] ||
			(count == statusCounts[details.TopStatusCode] && (details.TopStatusCode == 0 || status < details.TopStatusCode)) {
			details.TopStatusCode = status
		}
	}

	switch groupBy {
	case GroupByEndpoint:
		details.Label = key
	case GroupByStatus:
		details.Label = "HTTP " + key
	default:
		details.Label = details.ErrorType
		if strings.HasPrefix(key, "status:") {
			details.Label = "HTTP " + strings.TrimPrefix(key, "status:")
		}
	}
	if details.Label == "" {
		details.Label = "-"
	}

	details.BucketMinutes = BucketMinutes(filters.From, filters.To)
	countsByBucket := make(map[time.Time]int64)
	for _, rawLog := range matched {
		countsByBucket[timeseries.TruncateToBucket(rawLog.TimestampUTC, details.BucketMinutes)]++
	}
	details.Series = make([]ErrorSeriesPoint, 0, len(countsByBucket))
	for bucket, count := range countsByBucket {
		details.Series = append(details.Series, ErrorSeriesPoint{BucketStartUTC: bucket, Count: count})
	}
	sort.Slice(details.Series, func(i, j int) bool {
		return details.Series[i].BucketStartUTC.Before(details.Series[j].BucketStartUTC)
	})

	// The window loads newest first, so the head already holds the samples.
	sampleCount := take
	if sampleCount > len(matched) {
		sampleCount = len(matched)
	}
	details.Samples = make([]RequestRow, sampleCount)
	for i := 0; i < sampleCount; i++ {
		details.Samples[i] = requestRowFromRawLog(matched[i])
	}
	return details, nil
}

// matchesErrorGroup reports whether a raw log belongs to the error group the
// given key identifies under the given grouping dimension.
func matchesErrorGroup(rawLog model.RawLog, groupBy string, key string) bool {
	switch groupBy {
	case GroupByEndpoint:
		return model.NormalizeEndpointTemplate(rawLog.EndpointTemplate) == key
	case GroupByStatus:
		status, err := strconv.Atoi(strings.TrimSpace(key))
		return err == nil && rawLog.StatusCode == status
	default:
		if rawLog.NormalizedErrorKey != "" {
			return rawLog.NormalizedErrorKey == key
		}
		return key == "status:"+strconv.Itoa(rawLog.StatusCode)
	}
}

func mostFrequentTemplate(templateCounts map[string]int64) string {
	var template string
	var best int64
	for candidate, count := range templateCounts {
		if count > best || (count == best && (template == "" || candidate < template)) {
			template = candidate
			best = count
		}
	}
	return template
}

func (s *ServiceImpl) GetRequests(
	ctx context.Context,
	filters RequestFilters,
	page int,
	pageSize int,
) (RequestsPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	query := BuildFilterQuery(filters)
	countBody, err := buildBody(map[string]interface{}{"query": query})
	if err != nil {
		return RequestsPage{}, err
	}
	total, err := s.sc.Count(ctx, countBody, []string{bootstrapper.RawRequestIndexName})
	if err != nil {
		return RequestsPage{}, fmt.Errorf("failed to count raw requests: %w", err)
	}

	searchBody, err := buildBody(map[string]interface{}{
		"query": query,
		"sort": []interface{}{
			map[string]interface{}{"timestamp": "desc"},
		},
		"from": (page - 1) * pageSize,
	})
	if err != nil {
		return RequestsPage{}, err
	}
	documents, err := s.sc.Search(ctx, searchBody, []string{bootstrapper.RawRequestIndexName}, &pageSize)
	if err != nil {
		return RequestsPage{}, fmt.Errorf("failed to list raw requests: %w", err)
	}
	rawLogs, err := store.RawLogsFromDocuments(documents)
	if err != nil {
		return RequestsPage{}, err
	}

	items := make([]RequestRow, len(rawLogs))
	for i, rawLog := range rawLogs {
		items[i] = requestRowFromRawLog(rawLog)
	}
	return RequestsPage{
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Items:    items,
	}, nil
}

// GetRequestByCorrelationID returns the most recent raw log carrying the
// correlation id, or nil when none exists. Retried requests reuse the id;
// the newest attempt is the one the dashboard links to.
func (s *ServiceImpl) GetRequestByCorrelationID(
	ctx context.Context,
	correlationID string,
) (*RequestDetail, error) {
	body, err := buildBody(map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"correlation_id": correlationID},
		},
		"sort": []interface{}{
			map[string]interface{}{"timestamp": "desc"},
		},
	})
	if err != nil {
		return nil, err
	}
	size := 1
	documents, err := s.sc.Search(ctx, body, []string{bootstrapper.RawRequestIndexName}, &size)
	if err != nil {
		return nil, fmt.Errorf("failed to load request %s: %w", correlationID, err)
	}
	rawLogs, err := store.RawLogsFromDocuments(documents)
	if err != nil {
		return nil, err
	}
	if len(rawLogs) == 0 {
		return nil, nil
	}

	rawLog := rawLogs[0]
	return &RequestDetail{
		RequestRow:             requestRowFromRawLog(rawLog),
		TraceID:                rawLog.TraceID,
		WarningCodesJSON:       rawLog.WarningCodesJSON,
		NormalizedErrorMessage: rawLog.NormalizedErrorMessage,
		NormalizedErrorKey:     rawLog.NormalizedErrorKey,
		IPHash:                 rawLog.IPHash,
		UserAgent:              rawLog.UserAgent,
		RequestSizeBytes:       rawLog.RequestSizeBytes,
		ResponseSizeBytes:      rawLog.ResponseSizeBytes,
		Scheme:                 rawLog.Scheme,
		Host:                   rawLog.Host,
		CreatedAtUTC:           rawLog.CreatedAtUTC,
	}, nil
}

// loadWindowLogs pulls the whole filtered window into memory, newest first.
func (s *ServiceImpl) loadWindowLogs(
	ctx context.Context,
	filters RequestFilters,
) ([]model.RawLog, error) {
	return s.pageFilteredLogs(ctx, filters, 0)
}

// pageFilteredLogs scans the filtered raw logs newest first using
// search_after, so windows larger than the store's max_result_window come
// back complete. A positive limit stops the scan once that many rows are
// collected.
func (s *ServiceImpl) pageFilteredLogs(
	ctx context.Context,
	filters RequestFilters,
	limit int,
) ([]model.RawLog, error) {
	var rawLogs []model.RawLog
	var searchAfter []interface{}
	for {
		parts := map[string]interface{}{
			"query": BuildFilterQuery(filters),
			"sort": []interface{}{
				map[string]interface{}{"timestamp": "desc"},
				map[string]interface{}{"correlation_id": "desc"},
			},
		}
		if searchAfter != nil {
			parts["search_after"] = searchAfter
		}
		body, err := buildBody(parts)
		if err != nil {
			return nil, err
		}
		pageSize := s.pageSize
		if limit > 0 && limit-len(rawLogs) < pageSize {
			pageSize = limit - len(rawLogs)
		}
		documents, err := s.sc.Search(ctx, body, []string{bootstrapper.RawRequestIndexName}, &pageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to load raw request window: %w", err)
		}
		page, err := store.RawLogsFromDocuments(documents)
		if err != nil {
			return nil, err
		}
		rawLogs = append(rawLogs, page...)
		if len(documents) < pageSize || len(page) == 0 {
			return rawLogs, nil
		}
		if limit > 0 && len(rawLogs) >= limit {
			return rawLogs[:limit], nil
		}
		last := page[len(page)-1]
		searchAfter = []interface{}{store.FormatTimestamp(last.TimestampUTC), last.CorrelationID}
	}
}

// enrichWithCatalog joins type-grouped rows with their catalog entries so
// first seen dates survive raw log retention.
func (s *ServiceImpl) enrichWithCatalog(ctx context.Context, groups []ErrorGroup) error {
	keys := make([]string, 0, len(groups))
	for _, group := range groups {
		if group.ErrorKey != "" {
			keys = append(keys, group.ErrorKey)
		}
	}
	if len(keys) == 0 {
		return nil
	}

	body, err := buildBody(map[string]interface{}{
		"query": map[string]interface{}{
			"terms": map[string]interface{}{"error_key": keys},
		},
	})
	if err != nil {
		return err
	}
	size := len(keys)
	documents, err := s.sc.Search(ctx, body, []string{bootstrapper.ErrorCatalogIndexName}, &size)
	if err != nil {
		return err
	}
	entries, err := store.ErrorCatalogEntriesFromDocuments(documents)
	if err != nil {
		return err
	}

	entriesByKey := make(map[string]model.ErrorCatalogEntry, len(entries))
	for _, entry := range entries {
		entriesByKey[entry.ErrorKey] = entry
	}
	for i := range groups {
		if entry, ok := entriesByKey[groups[i].ErrorKey]; ok {
			groups[i].FirstSeenUTC = entry.FirstSeenUTC
			if entry.LastSeenUTC.After(groups[i].LastSeenUTC) {
				groups[i].LastSeenUTC = entry.LastSeenUTC
			}
		}
	}
	return nil
}

func buildSeries(rawLogs []model.RawLog, bucketMinutes int) []SeriesPoint {
	type bucketAccumulator struct {
		requestCount  int64
		errorCount    int64
		warnCount     int64
		totalDuration int64
		durations     []int
	}
	accumulators := make(map[time.Time]*bucketAccumulator)
	for _, rawLog := range rawLogs {
		bucket := timeseries.TruncateToBucket(rawLog.TimestampUTC, bucketMinutes)
		acc, ok := accumulators[bucket]
		if !ok {
			acc = &bucketAccumulator{}
			accumulators[bucket] = acc
		}
		acc.requestCount++
		if model.IsErrorOutcome(rawLog.StatusCode, rawLog.IsError) {
			acc.errorCount++
		}
		if model.NormalizeSeverity(rawLog.Severity) == model.SeverityWarn {
			acc.warnCount++
		}
		acc.totalDuration += int64(rawLog.DurationMs)
		acc.durations = append(acc.durations, rawLog.DurationMs)
	}

	series := make([]SeriesPoint, 0, len(accumulators))
	for bucket, acc := range accumulators {
		series = append(series, SeriesPoint{
			BucketStartUTC: bucket,
			RequestCount:   acc.requestCount,
			ErrorCount:     acc.errorCount,
			WarnCount:      acc.warnCount,
			AvgDurationMs:  int(acc.totalDuration / acc.requestCount),
			P95DurationMs:  timeseries.Percentile(acc.durations, 0.95),
		})
	}
	sort.Slice(series, func(i, j int) bool {
		return series[i].BucketStartUTC.Before(series[j].BucketStartUTC)
	})
	return series
}

// groupErrors buckets error rows by the chosen dimension, most frequent
// first. The input is expected to be pre-filtered to error outcomes when
// called from the errors listing; the overview passes the full window and
// relies on the error outcome check here.
func groupErrors(rawLogs []model.RawLog, groupBy string) []ErrorGroup {
	type groupAccumulator struct {
		group          ErrorGroup
		statusCounts   map[int]int64
		templateCounts map[string]int64
	}
	accumulators := make(map[string]*groupAccumulator)
	var totalErrors int64

	for _, rawLog := range rawLogs {
		if !model.IsErrorOutcome(rawLog.StatusCode, rawLog.IsError) && rawLog.StatusCode < 400 {
			continue
		}
		totalErrors++

		var label, mapKey string
		switch groupBy {
		case GroupByEndpoint:
			label = model.NormalizeEndpointTemplate(rawLog.EndpointTemplate)
			mapKey = label
		case GroupByStatus:
			label = strconv.Itoa(rawLog.StatusCode)
			mapKey = label
		default:
			label = rawLog.ErrorType
			mapKey = rawLog.NormalizedErrorKey
			if mapKey == "" {
				mapKey = "status:" + strconv.Itoa(rawLog.StatusCode)
				label = "HTTP " + strconv.Itoa(rawLog.StatusCode)
			}
		}
		if label == "" {
			label = "-"
		}

		acc, ok := accumulators[mapKey]
		if !ok {
			acc = &groupAccumulator{
				group: ErrorGroup{
					Label:             label,
					ErrorKey:          rawLog.NormalizedErrorKey,
					ErrorType:         rawLog.ErrorType,
					NormalizedMessage: rawLog.NormalizedErrorMessage,
					FirstSeenUTC:      rawLog.TimestampUTC,
					LastSeenUTC:       rawLog.TimestampUTC,
				},
				statusCounts:   make(map[int]int64),
				templateCounts: make(map[string]int64),
			}
			if groupBy != GroupByType {
				acc.group.ErrorKey = ""
				acc.group.ErrorType = ""
				acc.group.NormalizedMessage = ""
			}
			accumulators[mapKey] = acc
		}
		acc.group.Count++
		acc.statusCounts[rawLog.StatusCode]++
		acc.templateCounts[model.NormalizeEndpointTemplate(rawLog.EndpointTemplate)]++
		if rawLog.TimestampUTC.After(acc.group.LastSeenUTC) {
			acc.group.LastSeenUTC = rawLog.TimestampUTC
		}
		if rawLog.TimestampUTC.Before(acc.group.FirstSeenUTC) {
			acc.group.FirstSeenUTC = rawLog.TimestampUTC
		}
	}

	groups := make([]ErrorGroup, 0, len(accumulators))
	for _, acc := range accumulators {
		var topStatus int
		var topCount int64
		for status, count := range acc.statusCounts {
			if count > topCount || (count == topCount && status < topStatus) {
				topStatus = status
				topCount = count
			}
		}
		acc.group.TopStatusCode = topStatus
		acc.group.EndpointTemplate = mostFrequentTemplate(acc.templateCounts)
		acc.group.Percent = timeseries.RoundPercent(acc.group.Count, totalErrors)
		groups = append(groups, acc.group)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].Label < groups[j].Label
	})
	return groups
}

func requestRowFromRawLog(rawLog model.RawLog) RequestRow {
	return RequestRow{
		TimestampUTC:     rawLog.TimestampUTC,
		CorrelationID:    rawLog.CorrelationID,
		Method:           rawLog.Method,
		Path:             rawLog.Path,
		EndpointTemplate: rawLog.EndpointTemplate,
		StatusCode:       rawLog.StatusCode,
		DurationMs:       rawLog.DurationMs,
		Severity:         rawLog.Severity,
		IsError:          rawLog.IsError,
		WarningCount:     rawLog.WarningCount,
		ErrorType:        rawLog.ErrorType,
		TenantID:         rawLog.TenantID,
		UserID:           rawLog.UserID,
	}
}

func overviewCacheKey(rangeToken string, filters RequestFilters) string {
	return fmt.Sprintf(
		"overview|%s|%d|%d|%s|%s|%d|%s|%s|%s|%s|%t",
		rangeToken,
		filters.From.Unix(),
		filters.To.Unix(),
		filters.Method,
		filters.Endpoint,
		filters.StatusCode,
		filters.Severity,
		filters.UserID,
		filters.TenantID,
		filters.Search,
		filters.OnlyErrors,
	)
}

func buildBody(parts map[string]interface{}) (string, error) {
	body, err := json.Marshal(parts)
	if err != nil {
		return "", fmt.Errorf("failed to marshal query body: %w", err)
	}
	return string(body), nil
}
