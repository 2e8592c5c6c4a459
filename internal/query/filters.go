package query

import (
	"strings"
	"time"

	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/model"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/store"
)

// Paths the dashboard itself produces. They are excluded from every query so
// watching the dashboard does not inflate its own numbers.
var excludedPathPrefixes = []string{
	"/api/admin/monitoring",
	"/hubs/monitoring",
}

const (
	GroupByType     = "type"
	GroupByEndpoint = "endpoint"
	GroupByStatus   = "status"
)

// RequestFilters narrows dashboard queries. From and To are absolute UTC
// bounds resolved from a range token before the filters reach the store.
type RequestFilters struct {
	From       time.Time
	To         time.Time
	Method     string
	Endpoint   string
	StatusCode int
	Severity   string
	UserID     string
	TenantID   string
	Search     string
	OnlyErrors bool
}

// NormalizeGroupBy maps anything outside {type, endpoint, status} to type.
func NormalizeGroupBy(groupBy string) string {
	switch strings.ToLower(strings.TrimSpace(groupBy)) {
	case GroupByEndpoint:
		return GroupByEndpoint
	case GroupByStatus:
		return GroupByStatus
	default:
		return GroupByType
	}
}

// BuildFilterQuery translates the filters into one bool query over the raw
// log index. The dashboard's own traffic is always excluded.
func BuildFilterQuery(filters RequestFilters) map[string]interface{} {
	must := []interface{}{
		map[string]interface{}{
			"range": map[string]interface{}{
				"timestamp": map[string]interface{}{
					"gte": store.FormatTimestamp(filters.From),
					"lt":  store.FormatTimestamp(filters.To),
				},
			},
		},
	}

	if method := model.NormalizeMethod(filters.Method); strings.TrimSpace(filters.Method) != "" {
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{"method": method},
		})
	}
	if endpoint := strings.ToLower(strings.TrimSpace(filters.Endpoint)); endpoint != "" {
		must = append(must, map[string]interface{}{
			"wildcard": map[string]interface{}{
				"endpoint_template": map[string]interface{}{
					"value": "*" + endpoint + "*",
				},
			},
		})
	}
	if filters.StatusCode > 0 {
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{"status_code": filters.StatusCode},
		})
	}
	// Unknown severity values are ignored rather than coerced to a level
	// the caller never asked for.
	switch strings.ToLower(strings.TrimSpace(filters.Severity)) {
	case model.SeverityInfo, model.SeverityWarn, model.SeverityError:
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{"severity": model.NormalizeSeverity(filters.Severity)},
		})
	case "warning":
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{"severity": model.SeverityWarn},
		})
	}
	if userID := strings.TrimSpace(filters.UserID); userID != "" {
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{"user_id": userID},
		})
	}
	if tenantID := model.NormalizeTenantID(filters.TenantID); tenantID != "" {
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{"tenant_id": tenantID},
		})
	}
	if search := strings.TrimSpace(filters.Search); search != "" {
		must = append(must, map[string]interface{}{
			"bool": map[string]interface{}{
				"should": []interface{}{
					map[string]interface{}{
						"term": map[string]interface{}{"correlation_id": search},
					},
					map[string]interface{}{
						"term": map[string]interface{}{"method": model.NormalizeMethod(search)},
					},
					map[string]interface{}{
						"wildcard": map[string]interface{}{
							"path": map[string]interface{}{
								"value":            "*" + strings.ToLower(search) + "*",
								"case_insensitive": true,
							},
						},
					},
					map[string]interface{}{
						"wildcard": map[string]interface{}{
							"endpoint_template": map[string]interface{}{
								"value":            "*" + strings.ToLower(search) + "*",
								"case_insensitive": true,
							},
						},
					},
					map[string]interface{}{
						"wildcard": map[string]interface{}{
							"error_type": map[string]interface{}{
								"value":            "*" + search + "*",
								"case_insensitive": true,
							},
						},
					},
					map[string]interface{}{
						"match": map[string]interface{}{
							"normalized_error_message": strings.ToLower(search),
						},
					},
				},
				"minimum_should_match": 1,
			},
		})
	}
	if filters.OnlyErrors {
		// Listings treat 4xx as errors too, unlike aggregate error counts.
		must = append(must, map[string]interface{}{
			"bool": map[string]interface{}{
				"should": []interface{}{
					map[string]interface{}{
						"range": map[string]interface{}{
							"status_code": map[string]interface{}{"gte": 400},
						},
					},
					map[string]interface{}{
						"term": map[string]interface{}{"is_error": true},
					},
				},
				"minimum_should_match": 1,
			},
		})
	}

	mustNot := make([]interface{}, 0, len(excludedPathPrefixes))
	for _, prefix := range excludedPathPrefixes {
		mustNot = append(mustNot, map[string]interface{}{
			"prefix": map[string]interface{}{"path": prefix},
		})
	}

	return map[string]interface{}{
		"bool": map[string]interface{}{
			"must":     must,
			"must_not": mustNot,
		},
	}
}

// IsExcludedPath reports whether a path belongs to the dashboard's own
// traffic.
func IsExcludedPath(path string) bool {
	lowered := strings.ToLower(path)
	for _, prefix := range excludedPathPrefixes {
		if strings.HasPrefix(lowered, prefix) {
			return true
		}
	}
	return false
}
