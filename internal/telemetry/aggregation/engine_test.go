package aggregation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/model"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/store"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/store/bootstrapper"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

type deleteCall struct {
	query   string
	indices []string
}

type bulkCall struct {
	index     string
	documents []map[string]interface{}
}

type upsertCall struct {
	index string
	id    string
}

// fakeStoreClient serves canned raw log documents and records every write
// so tests can assert the rewrite order and payloads.
type fakeStoreClient struct {
	mu           sync.Mutex
	rawLogDocs   []map[string]interface{}
	deleteCalls  []deleteCall
	bulkCalls    []bulkCall
	upsertCalls  []upsertCall
	upsertBodies []map[string]interface{}
	callOrder    []string
	deleted      int64
}

func (fc *fakeStoreClient) Search(
	_ context.Context,
	query string,
	indices []string,
	_ *int,
) ([]map[string]interface{}, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.callOrder = append(fc.callOrder, "search:"+indices[0])

	switch indices[0] {
	case bootstrapper.RawRequestIndexName:
		return fc.rawLogDocs, nil
	case bootstrapper.ErrorCatalogIndexName:
		var documents []map[string]interface{}
		for _, call := range fc.upsertCalls {
			if strings.Contains(query, call.id) {
				documents = append(documents, map[string]interface{}{
					"error_key": call.id,
					"_id":       call.id,
				})
			}
		}
		return documents, nil
	default:
		return nil, nil
	}
}

func (fc *fakeStoreClient) Count(_ context.Context, _ string, _ []string) (int64, error) {
	return int64(len(fc.rawLogDocs)), nil
}

func (fc *fakeStoreClient) BulkIndex(
	_ context.Context,
	documents []map[string]interface{},
	index string,
) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.bulkCalls = append(fc.bulkCalls, bulkCall{index: index, documents: documents})
	fc.callOrder = append(fc.callOrder, "bulk:"+index)
	return nil
}

func (fc *fakeStoreClient) Upsert(
	_ context.Context,
	body map[string]interface{},
	index string,
	id string,
) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.upsertCalls = append(fc.upsertCalls, upsertCall{index: index, id: id})
	fc.upsertBodies = append(fc.upsertBodies, body)
	fc.callOrder = append(fc.callOrder, "upsert:"+index)
	return nil
}

func (fc *fakeStoreClient) DeleteByQuery(
	_ context.Context,
	query string,
	indices []string,
) (int64, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.deleteCalls = append(fc.deleteCalls, deleteCall{query: query, indices: indices})
	fc.callOrder = append(fc.callOrder, "delete:"+indices[0])
	return fc.deleted, nil
}

func (fc *fakeStoreClient) bulkFor(index string) []bulkCall {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	var calls []bulkCall
	for _, call := range fc.bulkCalls {
		if call.index == index {
			calls = append(calls, call)
		}
	}
	return calls
}

type heldLock struct{}

func (heldLock) Acquire(context.Context) (bool, error) { return false, nil }
func (heldLock) Release(context.Context) error         { return nil }

func engineAt(t *testing.T, fc *fakeStoreClient, now time.Time) *EngineImpl {
	engine := NewEngineImpl(fc, NewLocalMaintenanceLock(), zaptest.NewLogger(t))
	engine.now = func() time.Time { return now }
	return engine
}

func TestRunMaintenance(t *testing.T) {
	now := time.Date(2026, 5, 10, 14, 30, 0, 0, time.UTC)
	options := model.MaintenanceOptions{
		HourlyRecomputeWindowHours: 6,
		DailyRecomputeWindowDays:   30,
		RawRetentionDays:           14,
		AggregateRetentionDays:     180,
	}

	makeRawDocs := func() []map[string]interface{} {
		var documents []map[string]interface{}
		for i := 0; i < 10; i++ {
			statusCode := 200
			var errorKey, errorType string
			if i < 2 {
				statusCode = 500
				errorKey = "deadbeef"
				errorType = "TimeoutError"
			}
			documents = append(documents, store.RawLogToDocument(model.RawLog{
				TimestampUTC:       now.Add(-time.Duration(i) * time.Minute),
				CorrelationID:      "corr",
				Method:             "GET",
				EndpointTemplate:   "/api/providers",
				StatusCode:         statusCode,
				DurationMs:         100 + i,
				Severity:           model.SeverityInfo,
				NormalizedErrorKey: errorKey,
				ErrorType:          errorType,
			}))
		}
		return documents
	}

	t.Run("rewrites the full window and reports the audit", func(t *testing.T) {
		fc := &fakeStoreClient{rawLogDocs: makeRawDocs(), deleted: 3}
		engine := engineAt(t, fc, now)

		result, err := engine.RunMaintenance(context.Background(), options)
		assert.NoError(t, err)
		assert.Equal(t, 10, result.ProcessedRawLogs)

		hourly := fc.bulkFor(bootstrapper.MetricsHourlyIndexName)
		assert.Len(t, hourly, 1)
		// 200s and 500s land in separate rows of the same hour bucket.
		assert.Len(t, hourly[0].documents, 2)
		// All ten logs share one hour and one day, so one bucket each.
		assert.Equal(t, 1, result.RecomputedHourlyBuckets)

		daily := fc.bulkFor(bootstrapper.MetricsDailyIndexName)
		assert.Len(t, daily, 1)
		assert.Equal(t, 1, result.RecomputedDailyBuckets)

		assert.Equal(t, []upsertCall{{index: bootstrapper.ErrorCatalogIndexName, id: "deadbeef"}}, fc.upsertCalls)
		assert.Equal(t, 1, result.UpdatedErrorCatalogEntries)

		occurrences := fc.bulkFor(bootstrapper.ErrorOccurrenceIndexName)
		assert.Len(t, occurrences, 1)
		assert.Equal(t, "deadbeef", occurrences[0].documents[0]["error_catalog_id"])
		assert.Equal(t, 1, result.UpsertedErrorOccurrences)

		assert.Equal(t, int64(3), result.PurgedRawLogs)
		assert.Equal(t, int64(3), result.PurgedAggregateRows)
		assert.Equal(t, int64(3), result.PurgedErrorOccurrences)
	})

	t.Run("deletes each window before writing it", func(t *testing.T) {
		fc := &fakeStoreClient{rawLogDocs: makeRawDocs()}
		engine := engineAt(t, fc, now)

		_, err := engine.RunMaintenance(context.Background(), options)
		assert.NoError(t, err)

		deleteAt := -1
		bulkAt := -1
		for i, call := range fc.callOrder {
			if call == "delete:"+bootstrapper.MetricsHourlyIndexName && deleteAt == -1 {
				deleteAt = i
			}
			if call == "bulk:"+bootstrapper.MetricsHourlyIndexName && bulkAt == -1 {
				bulkAt = i
			}
		}
		assert.GreaterOrEqual(t, deleteAt, 0)
		assert.GreaterOrEqual(t, bulkAt, 0)
		assert.Less(t, deleteAt, bulkAt)
	})

	t.Run("rerunning produces the same writes", func(t *testing.T) {
		first := &fakeStoreClient{rawLogDocs: makeRawDocs()}
		second := &fakeStoreClient{rawLogDocs: makeRawDocs()}

		_, err := engineAt(t, first, now).RunMaintenance(context.Background(), options)
		assert.NoError(t, err)
		_, err = engineAt(t, second, now).RunMaintenance(context.Background(), options)
		assert.NoError(t, err)

		assert.Equal(t, first.bulkCalls, second.bulkCalls)
		assert.Equal(t, first.upsertCalls, second.upsertCalls)
	})

	t.Run("empty store still purges and reports zeros", func(t *testing.T) {
		fc := &fakeStoreClient{}
		engine := engineAt(t, fc, now)

		result, err := engine.RunMaintenance(context.Background(), options)
		assert.NoError(t, err)
		assert.Equal(t, 0, result.ProcessedRawLogs)
		assert.Equal(t, 0, result.RecomputedHourlyBuckets)
		assert.Empty(t, fc.bulkCalls)
		// Window clears and retention purges still run; hourly and daily
		// aggregates are purged separately because their cutoffs differ.
		assert.Len(t, fc.deleteCalls, 7)
	})

	t.Run("catalog merge refreshes type and message unconditionally", func(t *testing.T) {
		fc := &fakeStoreClient{rawLogDocs: makeRawDocs()}
		engine := engineAt(t, fc, now)

		_, err := engine.RunMaintenance(context.Background(), options)
		assert.NoError(t, err)
		assert.Len(t, fc.upsertBodies, 1)

		script, _ := fc.upsertBodies[0]["script"].(map[string]interface{})
		source, _ := script["source"].(string)
		// The type and message assignments must sit after the last_seen
		// conditional closes, so stale rows still pick up current values.
		lastSeenBlockEnd := strings.Index(source, "ctx._source.last_seen = params.last_seen;")
		assert.Greater(t, lastSeenBlockEnd, 0)
		closing := strings.Index(source[lastSeenBlockEnd:], "}")
		assert.Greater(t, closing, 0)
		typeAssign := strings.Index(source, "ctx._source.error_type = params.error_type;")
		messageAssign := strings.Index(source, "ctx._source.normalized_message = params.normalized_message;")
		assert.Greater(t, typeAssign, lastSeenBlockEnd+closing)
		assert.Greater(t, messageAssign, lastSeenBlockEnd+closing)
	})

	t.Run("held lock skips the run", func(t *testing.T) {
		fc := &fakeStoreClient{rawLogDocs: makeRawDocs()}
		engine := NewEngineImpl(fc, heldLock{}, zaptest.NewLogger(t))
		engine.now = func() time.Time { return now }

		_, err := engine.RunMaintenance(context.Background(), options)
		assert.ErrorIs(t, err, ErrMaintenanceInProgress)
		assert.Empty(t, fc.callOrder)
	})
}

// pagingStoreClient serves raw log pages the way the store does: it honors
// the requested size and resumes after the search_after cursor.
type pagingStoreClient struct {
	fakeStoreClient
	queries []string
}

func (pc *pagingStoreClient) Search(
	ctx context.Context,
	query string,
	indices []string,
	size *int,
) ([]map[string]interface{}, error) {
	if indices[0] != bootstrapper.RawRequestIndexName {
		return pc.fakeStoreClient.Search(ctx, query, indices, size)
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.queries = append(pc.queries, query)

	var parsed struct {
		SearchAfter []interface{} `json:"search_after"`
	}
	if err := json.Unmarshal([]byte(query), &parsed); err != nil {
		return nil, err
	}
	start := 0
	if len(parsed.SearchAfter) == 2 {
		cursor, _ := parsed.SearchAfter[1].(string)
		for i, document := range pc.rawLogDocs {
			if document["correlation_id"] == cursor {
				start = i + 1
				break
			}
		}
	}
	end := start + *size
	if end > len(pc.rawLogDocs) {
		end = len(pc.rawLogDocs)
	}
	return pc.rawLogDocs[start:end], nil
}

func TestLoadRawLogsPaging(t *testing.T) {
	now := time.Date(2026, 5, 10, 14, 30, 0, 0, time.UTC)
	var documents []map[string]interface{}
	for i := 0; i < 10; i++ {
		documents = append(documents, store.RawLogToDocument(model.RawLog{
			TimestampUTC:     now.Add(-time.Duration(i) * time.Minute),
			CorrelationID:    fmt.Sprintf("corr-%02d", i),
			Method:           "GET",
			EndpointTemplate: "/api/providers",
			StatusCode:       200,
			DurationMs:       100,
			Severity:         model.SeverityInfo,
		}))
	}

	t.Run("loads windows larger than a single page", func(t *testing.T) {
		pc := &pagingStoreClient{fakeStoreClient: fakeStoreClient{rawLogDocs: documents}}
		engine := NewEngineImpl(pc, NewLocalMaintenanceLock(), zaptest.NewLogger(t))
		engine.now = func() time.Time { return now }
		engine.pageSize = 3

		rawLogs, err := engine.loadRawLogs(context.Background(), now.Add(-time.Hour), now)
		assert.NoError(t, err)
		assert.Len(t, rawLogs, 10)
		// Three full pages plus the final short one.
		assert.Len(t, pc.queries, 4)
		assert.Contains(t, pc.queries[1], `"search_after"`)
		assert.Contains(t, pc.queries[1], "corr-02")
	})

	t.Run("bounds the range at the run timestamp", func(t *testing.T) {
		pc := &pagingStoreClient{fakeStoreClient: fakeStoreClient{rawLogDocs: documents}}
		engine := NewEngineImpl(pc, NewLocalMaintenanceLock(), zaptest.NewLogger(t))
		engine.now = func() time.Time { return now }

		_, err := engine.loadRawLogs(context.Background(), now.Add(-time.Hour), now)
		assert.NoError(t, err)
		assert.Len(t, pc.queries, 1)
		assert.Contains(t, pc.queries[0], `"lte":"`+store.FormatTimestamp(now)+`"`)
	})
}

func TestClampOptions(t *testing.T) {
	t.Run("zero values fall back to defaults", func(t *testing.T) {
		clamped := ClampOptions(model.MaintenanceOptions{})
		assert.Equal(t, DefaultHourlyWindowHours, clamped.HourlyRecomputeWindowHours)
		assert.Equal(t, DefaultDailyWindowDays, clamped.DailyRecomputeWindowDays)
		assert.Equal(t, DefaultRawRetentionDays, clamped.RawRetentionDays)
		assert.Equal(t, DefaultAggRetentionDays, clamped.AggregateRetentionDays)
	})

	t.Run("out of range values are clamped", func(t *testing.T) {
		clamped := ClampOptions(model.MaintenanceOptions{
			HourlyRecomputeWindowHours: 1000,
			DailyRecomputeWindowDays:   1000,
			RawRetentionDays:           1000,
			AggregateRetentionDays:     3,
		})
		assert.Equal(t, 168, clamped.HourlyRecomputeWindowHours)
		assert.Equal(t, 365, clamped.DailyRecomputeWindowDays)
		assert.Equal(t, 180, clamped.RawRetentionDays)
		assert.Equal(t, 7, clamped.AggregateRetentionDays)
	})
}

func TestLocalMaintenanceLock(t *testing.T) {
	lock := NewLocalMaintenanceLock()
	ctx := context.Background()

	acquired, err := lock.Acquire(ctx)
	assert.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = lock.Acquire(ctx)
	assert.NoError(t, err)
	assert.False(t, acquired)

	assert.NoError(t, lock.Release(ctx))
	acquired, err = lock.Acquire(ctx)
	assert.NoError(t, err)
	assert.True(t, acquired)
}
