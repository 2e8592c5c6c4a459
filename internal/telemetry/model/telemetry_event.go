package model

import (
	"strings"
	"time"
)

const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)

// TelemetryEvent captures the outcome of one completed HTTP request. It is
// the transient ingestion input; RawLog is its persisted form.
type TelemetryEvent struct {
	TimestampUTC           time.Time `json:"timestamp_utc"`
	CorrelationID          string    `json:"correlation_id"`
	TraceID                string    `json:"trace_id,omitempty"`
	Method                 string    `json:"method"`
	EndpointTemplate       string    `json:"endpoint_template"`
	Path                   string    `json:"path"`
	StatusCode             int       `json:"status_code"`
	DurationMs             int       `json:"duration_ms"`
	Severity               string    `json:"severity"`
	IsError                bool      `json:"is_error"`
	WarningCount           int       `json:"warning_count"`
	WarningCodesJSON       string    `json:"warning_codes_json,omitempty"`
	ErrorType              string    `json:"error_type,omitempty"`
	NormalizedErrorMessage string    `json:"normalized_error_message,omitempty"`
	NormalizedErrorKey     string    `json:"normalized_error_key,omitempty"`
	IPHash                 string    `json:"ip_hash,omitempty"`
	UserAgent              string    `json:"user_agent,omitempty"`
	UserID                 string    `json:"user_id,omitempty"`
	TenantID               string    `json:"tenant_id,omitempty"`
	RequestSizeBytes       int64     `json:"request_size_bytes,omitempty"`
	ResponseSizeBytes      int64     `json:"response_size_bytes,omitempty"`
	Scheme                 string    `json:"scheme"`
	Host                   string    `json:"host"`
}

// RawLog is the durable, append-only form of a TelemetryEvent. Rows are
// never updated after insert; retention deletes them by age.
type RawLog struct {
	ID                     string    `json:"-"`
	TimestampUTC           time.Time `json:"timestamp"`
	CorrelationID          string    `json:"correlation_id"`
	TraceID                string    `json:"trace_id,omitempty"`
	Method                 string    `json:"method"`
	EndpointTemplate       string    `json:"endpoint_template"`
	Path                   string    `json:"path"`
	StatusCode             int       `json:"status_code"`
	DurationMs             int       `json:"duration_ms"`
	Severity               string    `json:"severity"`
	IsError                bool      `json:"is_error"`
	WarningCount           int       `json:"warning_count"`
	WarningCodesJSON       string    `json:"warning_codes_json,omitempty"`
	ErrorType              string    `json:"error_type,omitempty"`
	NormalizedErrorMessage string    `json:"normalized_error_message,omitempty"`
	NormalizedErrorKey     string    `json:"normalized_error_key,omitempty"`
	IPHash                 string    `json:"ip_hash,omitempty"`
	UserAgent              string    `json:"user_agent,omitempty"`
	UserID                 string    `json:"user_id,omitempty"`
	TenantID               string    `json:"tenant_id,omitempty"`
	RequestSizeBytes       int64     `json:"request_size_bytes,omitempty"`
	ResponseSizeBytes      int64     `json:"response_size_bytes,omitempty"`
	Scheme                 string    `json:"scheme"`
	Host                   string    `json:"host"`
	CreatedAtUTC           time.Time `json:"created_at"`
}

// RawLogFromEvent normalizes a telemetry event into its persisted form.
func RawLogFromEvent(event TelemetryEvent) RawLog {
	durationMs := event.DurationMs
	if durationMs < 0 {
		durationMs = 0
	}
	warningCount := event.WarningCount
	if warningCount < 0 {
		warningCount = 0
	}
	return RawLog{
		TimestampUTC:           event.TimestampUTC.UTC(),
		CorrelationID:          event.CorrelationID,
		TraceID:                event.TraceID,
		Method:                 NormalizeMethod(event.Method),
		EndpointTemplate:       NormalizeEndpointTemplate(event.EndpointTemplate),
		Path:                   event.Path,
		StatusCode:             event.StatusCode,
		DurationMs:             durationMs,
		Severity:               NormalizeSeverity(event.Severity),
		IsError:                event.IsError,
		WarningCount:           warningCount,
		WarningCodesJSON:       event.WarningCodesJSON,
		ErrorType:              event.ErrorType,
		NormalizedErrorMessage: event.NormalizedErrorMessage,
		NormalizedErrorKey:     event.NormalizedErrorKey,
		IPHash:                 event.IPHash,
		UserAgent:              event.UserAgent,
		UserID:                 event.UserID,
		TenantID:               NormalizeTenantID(event.TenantID),
		RequestSizeBytes:       event.RequestSizeBytes,
		ResponseSizeBytes:      event.ResponseSizeBytes,
		Scheme:                 event.Scheme,
		Host:                   event.Host,
		CreatedAtUTC:           event.TimestampUTC.UTC(),
	}
}

// IsErrorOutcome treats explicit error flags and 5xx responses as errors.
func IsErrorOutcome(statusCode int, isError bool) bool {
	return isError || statusCode >= 500
}

func NormalizeMethod(method string) string {
	if strings.TrimSpace(method) == "" {
		return "GET"
	}
	return strings.ToUpper(strings.TrimSpace(method))
}

func NormalizeEndpointTemplate(endpointTemplate string) string {
	if strings.TrimSpace(endpointTemplate) == "" {
		return "/"
	}
	return strings.ToLower(strings.TrimSpace(endpointTemplate))
}

// NormalizeSeverity maps anything outside {info, warn, error} to info,
// accepting "warning" as an alias for warn.
func NormalizeSeverity(severity string) string {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case SeverityError:
		return SeverityError
	case SeverityWarn, "warning":
		return SeverityWarn
	default:
		return SeverityInfo
	}
}

func NormalizeTenantID(tenantID string) string {
	return strings.TrimSpace(tenantID)
}
