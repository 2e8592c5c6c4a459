package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

type esHit struct {
	ID     string                 `json:"_id"`
	Source map[string]interface{} `json:"_source"`
}

type esSearchResponse struct {
	Hits struct {
		HitArray []esHit `json:"hits"`
	} `json:"hits"`
}

type esCountResponse struct {
	Count float64 `json:"count"`
}

type esDeleteByQueryResponse struct {
	Deleted float64 `json:"deleted"`
}

func (c *ClientImpl) Search(
	ctx context.Context,
	query string,
	indices []string,
	queryResultSize *int,
) ([]map[string]interface{}, error) {
	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(indices...),
		c.es.Search.WithBody(strings.NewReader(query)),
		c.es.Search.WithSize(getQuerySize(queryResultSize)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("failed to execute query: %s", res.String())
	}

	var esResponse esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}

	var results []map[string]interface{}
	for _, hit := range esResponse.Hits.HitArray {
		results = append(results, hit.Source)
		results[len(results)-1]["_id"] = hit.ID
	}
	return results, nil
}

func (c *ClientImpl) Count(
	ctx context.Context,
	query string,
	indices []string,
) (int64, error) {
	res, err := c.es.Count(
		c.es.Count.WithContext(ctx),
		c.es.Count.WithIndex(indices...),
		c.es.Count.WithBody(strings.NewReader(query)),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to execute count: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, fmt.Errorf("failed to execute count: %s", res.String())
	}

	var countResponse esCountResponse
	if err := json.NewDecoder(res.Body).Decode(&countResponse); err != nil {
		return 0, fmt.Errorf("failed to decode response body: %w", err)
	}
	return int64(countResponse.Count), nil
}

func (c *ClientImpl) DeleteByQuery(
	ctx context.Context,
	query string,
	indices []string,
) (int64, error) {
	res, err := c.es.DeleteByQuery(
		indices,
		strings.NewReader(query),
		c.es.DeleteByQuery.WithContext(ctx),
		c.es.DeleteByQuery.WithRefresh(c.refreshRate == string(Immediate)),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete by query: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, fmt.Errorf("delete by query error: %s", res.String())
	}

	var deleteResponse esDeleteByQueryResponse
	if err := json.NewDecoder(res.Body).Decode(&deleteResponse); err != nil {
		return 0, fmt.Errorf("failed to decode response body: %w", err)
	}
	return int64(deleteResponse.Deleted), nil
}

func getQuerySize(queryResultSize *int) int {
	if queryResultSize == nil {
		return SearchResultSize
	}
	return *queryResultSize
}
