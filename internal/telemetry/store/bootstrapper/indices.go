package bootstrapper

const RawRequestIndexName = "raw_request_index"
const MetricsHourlyIndexName = "endpoint_metrics_hourly_index"
const MetricsDailyIndexName = "endpoint_metrics_daily_index"
const ErrorCatalogIndexName = "error_catalog_index"
const ErrorOccurrenceIndexName = "error_occurrences_hourly_index"

var rawRequestIndex = map[string]interface{}{
	"settings": map[string]interface{}{
		"number_of_shards":   1,
		"number_of_replicas": 1,
	},
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"timestamp": map[string]interface{}{
				"type": "date",
			},
			"created_at": map[string]interface{}{
				"type": "date",
			},
			"correlation_id": map[string]interface{}{
				"type": "keyword",
			},
			"trace_id": map[string]interface{}{
				"type": "keyword",
			},
			"method": map[string]interface{}{
				"type": "keyword",
			},
			"endpoint_template": map[string]interface{}{
				"type": "keyword",
			},
			"path": map[string]interface{}{
				"type": "keyword",
			},
			"status_code": map[string]interface{}{
				"type": "integer",
			},
			"duration_ms": map[string]interface{}{
				"type": "integer",
			},
			"severity": map[string]interface{}{
				"type": "keyword",
			},
			"is_error": map[string]interface{}{
				"type": "boolean",
			},
			"warning_count": map[string]interface{}{
				"type": "integer",
			},
			"error_type": map[string]interface{}{
				"type": "keyword",
			},
			"normalized_error_message": map[string]interface{}{
				"type": "text",
			},
			"normalized_error_key": map[string]interface{}{
				"type": "keyword",
			},
			"ip_hash": map[string]interface{}{
				"type": "keyword",
			},
			"user_agent": map[string]interface{}{
				"type": "keyword",
			},
			"user_id": map[string]interface{}{
				"type": "keyword",
			},
			"tenant_id": map[string]interface{}{
				"type": "keyword",
			},
			"request_size_bytes": map[string]interface{}{
				"type": "long",
			},
			"response_size_bytes": map[string]interface{}{
				"type": "long",
			},
			"scheme": map[string]interface{}{
				"type": "keyword",
			},
			"host": map[string]interface{}{
				"type": "keyword",
			},
		},
	},
}

// Hourly and daily metric rows share one mapping; only the bucket width differs.
var endpointMetricIndex = map[string]interface{}{
	"settings": map[string]interface{}{
		"number_of_shards":   1,
		"number_of_replicas": 1,
	},
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"bucket_start": map[string]interface{}{
				"type": "date",
			},
			"method": map[string]interface{}{
				"type": "keyword",
			},
			"endpoint_template": map[string]interface{}{
				"type": "keyword",
			},
			"status_code": map[string]interface{}{
				"type": "integer",
			},
			"severity": map[string]interface{}{
				"type": "keyword",
			},
			"tenant_id": map[string]interface{}{
				"type": "keyword",
			},
			"request_count": map[string]interface{}{
				"type": "long",
			},
			"error_count": map[string]interface{}{
				"type": "long",
			},
			"warning_count": map[string]interface{}{
				"type": "long",
			},
			"total_duration_ms": map[string]interface{}{
				"type": "long",
			},
			"min_duration_ms": map[string]interface{}{
				"type": "integer",
			},
			"max_duration_ms": map[string]interface{}{
				"type": "integer",
			},
			"p50_duration_ms": map[string]interface{}{
				"type": "integer",
			},
			"p95_duration_ms": map[string]interface{}{
				"type": "integer",
			},
			"p99_duration_ms": map[string]interface{}{
				"type": "integer",
			},
		},
	},
}

var errorCatalogIndex = map[string]interface{}{
	"settings": map[string]interface{}{
		"number_of_shards":   1,
		"number_of_replicas": 1,
	},
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"error_key": map[string]interface{}{
				"type": "keyword",
			},
			"error_type": map[string]interface{}{
				"type": "keyword",
			},
			"normalized_message": map[string]interface{}{
				"type": "text",
			},
			"first_seen": map[string]interface{}{
				"type": "date",
			},
			"last_seen": map[string]interface{}{
				"type": "date",
			},
			"updated_at": map[string]interface{}{
				"type": "date",
			},
		},
	},
}

var errorOccurrenceIndex = map[string]interface{}{
	"settings": map[string]interface{}{
		"number_of_shards":   1,
		"number_of_replicas": 1,
	},
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"error_catalog_id": map[string]interface{}{
				"type": "keyword",
			},
			"error_key": map[string]interface{}{
				"type": "keyword",
			},
			"bucket_start": map[string]interface{}{
				"type": "date",
			},
			"method": map[string]interface{}{
				"type": "keyword",
			},
			"endpoint_template": map[string]interface{}{
				"type": "keyword",
			},
			"status_code": map[string]interface{}{
				"type": "integer",
			},
			"severity": map[string]interface{}{
				"type": "keyword",
			},
			"tenant_id": map[string]interface{}{
				"type": "keyword",
			},
			"occurrence_count": map[string]interface{}{
				"type": "long",
			},
		},
	},
}
