package store

import (
	"context"

	"github.com/elastic/go-elasticsearch/v8"
)

const SearchResultSize = 10

type RefreshRate string

const (
	// Wait for the changes made by the request to be made visible by a refresh before replying.
	Wait RefreshRate = "wait_for"
	// Immediate Refresh the relevant primary and replica shards immediately after the operation occurs.
	Immediate RefreshRate = "true"
	// Async Take no refresh related actions. Changes become visible at some point after the request returns.
	Async RefreshRate = "false"
)

// Client is the narrow Elasticsearch surface the telemetry pipeline needs.
type Client interface {
	// Search searches for documents in the indices. The query body may carry
	// sort/from clauses; queryResultSize is the number of results to return,
	// nil for default.
	Search(ctx context.Context, query string, indices []string, queryResultSize *int) ([]map[string]interface{}, error)
	// Count counts the documents matching the query.
	Count(ctx context.Context, query string, indices []string) (int64, error)
	// BulkIndex indexes (inserts) multiple documents in the same index.
	BulkIndex(ctx context.Context, documents []map[string]interface{}, index string) error
	// Upsert updates or inserts a document with the given id using a scripted upsert body.
	Upsert(ctx context.Context, upsertScript map[string]interface{}, index string, id string) error
	// DeleteByQuery deletes the documents matching the query and reports how many were removed.
	DeleteByQuery(ctx context.Context, query string, indices []string) (int64, error)
}

type ClientImpl struct {
	es          *elasticsearch.Client
	refreshRate string
}

func NewClientImpl(es *elasticsearch.Client, refreshRate RefreshRate) *ClientImpl {
	return &ClientImpl{es: es, refreshRate: string(refreshRate)}
}
