package query

import "time"

// OverviewResult is the dashboard landing payload: window totals, a request
// series, and the most frequent error groups.
type OverviewResult struct {
	RangeToken       string        `json:"rangeToken"`
	FromUTC          time.Time     `json:"fromUtc"`
	ToUTC            time.Time     `json:"toUtc"`
	BucketMinutes    int           `json:"bucketMinutes"`
	TotalRequests    int64         `json:"totalRequests"`
	ErrorCount       int64         `json:"errorCount"`
	WarningCount     int64         `json:"warningCount"`
	ErrorRatePercent float64       `json:"errorRatePercent"`
	RequestsPerMin   float64       `json:"requestsPerMinute"`
	AvgDurationMs    int           `json:"avgDurationMs"`
	P95DurationMs    int           `json:"p95DurationMs"`
	P99DurationMs    int           `json:"p99DurationMs"`
	TopEndpoint      *TopEndpoint  `json:"topEndpoint,omitempty"`
	StatusCounts     []StatusCount `json:"statusCounts"`
	Series           []SeriesPoint `json:"series"`
	TopErrors        []ErrorGroup  `json:"topErrors"`
}

// TopEndpoint is the single most-hit endpoint of the overview window.
type TopEndpoint struct {
	Method           string `json:"method"`
	EndpointTemplate string `json:"endpointTemplate"`
	RequestCount     int64  `json:"requestCount"`
}

// StatusCount is one slice of the status code distribution.
type StatusCount struct {
	StatusCode int   `json:"statusCode"`
	Count      int64 `json:"count"`
}

// SeriesPoint is one chart bucket of the overview series.
type SeriesPoint struct {
	BucketStartUTC time.Time `json:"bucketStartUtc"`
	RequestCount   int64     `json:"requestCount"`
	ErrorCount     int64     `json:"errorCount"`
	WarnCount      int64     `json:"warnCount"`
	AvgDurationMs  int       `json:"avgDurationMs"`
	P95DurationMs  int       `json:"p95DurationMs"`
}

// EndpointStat summarizes one endpoint's traffic inside the window.
type EndpointStat struct {
	Method           string  `json:"method"`
	EndpointTemplate string  `json:"endpointTemplate"`
	RequestCount     int64   `json:"requestCount"`
	ErrorCount       int64   `json:"errorCount"`
	ErrorRatePercent float64 `json:"errorRatePercent"`
	WarningCount     int64   `json:"warningCount"`
	AvgDurationMs    int     `json:"avgDurationMs"`
	P95DurationMs    int     `json:"p95DurationMs"`
	P99DurationMs    int     `json:"p99DurationMs"`
	MaxDurationMs    int     `json:"maxDurationMs"`
}

// ErrorGroup is one row of the error listing. Label depends on the grouping
// dimension and is "-" when the underlying value is empty.
type ErrorGroup struct {
	Label             string    `json:"label"`
	ErrorKey          string    `json:"errorKey,omitempty"`
	ErrorType         string    `json:"errorType,omitempty"`
	NormalizedMessage string    `json:"normalizedMessage,omitempty"`
	EndpointTemplate  string    `json:"endpointTemplate,omitempty"`
	Count             int64     `json:"count"`
	Percent           float64   `json:"percent"`
	TopStatusCode     int       `json:"topStatusCode"`
	FirstSeenUTC      time.Time `json:"firstSeenUtc,omitempty"`
	LastSeenUTC       time.Time `json:"lastSeenUtc"`
}

// ErrorDetails is the drill-down payload for one error group: the summary,
// an occurrence series, and the most recent sample requests.
type ErrorDetails struct {
	RangeToken        string             `json:"rangeToken"`
	GroupBy           string             `json:"groupBy"`
	Key               string             `json:"key"`
	Label             string             `json:"label"`
	ErrorType         string             `json:"errorType,omitempty"`
	NormalizedMessage string             `json:"normalizedMessage,omitempty"`
	EndpointTemplate  string             `json:"endpointTemplate,omitempty"`
	TopStatusCode     int                `json:"topStatusCode"`
	Count             int64              `json:"count"`
	FirstSeenUTC      time.Time          `json:"firstSeenUtc"`
	LastSeenUTC       time.Time          `json:"lastSeenUtc"`
	BucketMinutes     int                `json:"bucketMinutes"`
	Series            []ErrorSeriesPoint `json:"series"`
	Samples           []RequestRow       `json:"samples"`
}

// ErrorSeriesPoint is one chart bucket of the error-count series.
type ErrorSeriesPoint struct {
	BucketStartUTC time.Time `json:"bucketStartUtc"`
	Count          int64     `json:"count"`
}

// ErrorsResult is the grouped error listing with its count series.
type ErrorsResult struct {
	RangeToken    string             `json:"rangeToken"`
	GroupBy       string             `json:"groupBy"`
	BucketMinutes int                `json:"bucketMinutes"`
	TotalErrors   int64              `json:"totalErrors"`
	Groups        []ErrorGroup       `json:"groups"`
	Series        []ErrorSeriesPoint `json:"series"`
}

// LatencyPoint is one chart bucket of the latency series.
type LatencyPoint struct {
	BucketStartUTC time.Time `json:"bucketStartUtc"`
	RequestCount   int64     `json:"requestCount"`
	AvgDurationMs  int       `json:"avgDurationMs"`
	P50DurationMs  int       `json:"p50DurationMs"`
	P95DurationMs  int       `json:"p95DurationMs"`
	P99DurationMs  int       `json:"p99DurationMs"`
}

// LatencyResult is the latency chart payload plus window-wide percentiles.
type LatencyResult struct {
	RangeToken    string         `json:"rangeToken"`
	BucketMinutes int            `json:"bucketMinutes"`
	P50DurationMs int            `json:"p50DurationMs"`
	P95DurationMs int            `json:"p95DurationMs"`
	P99DurationMs int            `json:"p99DurationMs"`
	MinDurationMs int            `json:"minDurationMs"`
	MaxDurationMs int            `json:"maxDurationMs"`
	Series        []LatencyPoint `json:"series"`
}

// RequestRow is one row of the paged raw request listing.
type RequestRow struct {
	TimestampUTC     time.Time `json:"timestampUtc"`
	CorrelationID    string    `json:"correlationId"`
	Method           string    `json:"method"`
	Path             string    `json:"path"`
	EndpointTemplate string    `json:"endpointTemplate"`
	StatusCode       int       `json:"statusCode"`
	DurationMs       int       `json:"durationMs"`
	Severity         string    `json:"severity"`
	IsError          bool      `json:"isError"`
	WarningCount     int       `json:"warningCount"`
	ErrorType        string    `json:"errorType,omitempty"`
	TenantID         string    `json:"tenantId,omitempty"`
	UserID           string    `json:"userId,omitempty"`
}

// RequestsPage is the paged raw request listing.
type RequestsPage struct {
	Total    int64        `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"pageSize"`
	Items    []RequestRow `json:"items"`
}

// RequestDetail is the full raw log view for one correlation id.
type RequestDetail struct {
	RequestRow
	TraceID                string    `json:"traceId,omitempty"`
	WarningCodesJSON       string    `json:"warningCodesJson,omitempty"`
	NormalizedErrorMessage string    `json:"normalizedErrorMessage,omitempty"`
	NormalizedErrorKey     string    `json:"normalizedErrorKey,omitempty"`
	IPHash                 string    `json:"ipHash,omitempty"`
	UserAgent              string    `json:"userAgent,omitempty"`
	RequestSizeBytes       int64     `json:"requestSizeBytes"`
	ResponseSizeBytes      int64     `json:"responseSizeBytes"`
	Scheme                 string    `json:"scheme"`
	Host                   string    `json:"host"`
	CreatedAtUTC           time.Time `json:"createdAtUtc"`
}
