package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

func (c *ClientImpl) BulkIndex(
	ctx context.Context,
	documents []map[string]interface{},
	index string,
) error {
	var buf bytes.Buffer
	meta := []byte("{\"index\":{}}\n")
	for _, document := range documents {
		documentJSON, err := json.Marshal(document)
		if err != nil {
			return fmt.Errorf("error marshaling document to bulk index: %w", err)
		}
		buf.Write(meta)
		buf.Write(documentJSON)
		buf.WriteByte('\n')
	}

	res, err := c.es.Bulk(
		bytes.NewReader(buf.Bytes()),
		c.es.Bulk.WithIndex(index),
		c.es.Bulk.WithContext(ctx),
		c.es.Bulk.WithRefresh(c.refreshRate),
	)
	if err != nil {
		return fmt.Errorf("error bulk indexing: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk index error: %s", res.String())
	}
	return nil
}

func (c *ClientImpl) Upsert(
	ctx context.Context,
	upsertScript map[string]interface{},
	index string,
	id string,
) error {
	upsertJSON, err := json.Marshal(upsertScript)
	if err != nil {
		return fmt.Errorf("error marshaling upsert: %w", err)
	}

	res, err := c.es.Update(
		index, id,
		bytes.NewReader(upsertJSON),
		c.es.Update.WithContext(ctx),
		c.es.Update.WithRefresh(c.refreshRate),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert in Elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("upsert error: %s", res.String())
	}
	return nil
}
