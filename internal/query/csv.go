package query

import (
	"context"
	"strconv"
	"strings"

	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/model"
)

// utf8BOM makes spreadsheet tools detect the encoding; the semicolon
// separator matches their locale defaults.
const utf8BOM = "\uFEFF"
const csvSeparator = ";"

const csvTimestampLayout = "2006-01-02 15:04:05"

var csvHeader = []string{
	"timestamp_utc",
	"correlation_id",
	"method",
	"path",
	"endpoint_template",
	"status_code",
	"duration_ms",
	"severity",
	"is_error",
	"warning_count",
	"error_type",
	"tenant_id",
	"user_id",
}

// ExportRequestsCSV renders the filtered raw requests as a spreadsheet
// friendly CSV, newest first. The export covers the whole filtered window
// unless the caller passes a positive limit.
func (s *ServiceImpl) ExportRequestsCSV(
	ctx context.Context,
	filters RequestFilters,
	limit int,
) ([]byte, error) {
	rawLogs, err := s.pageFilteredLogs(ctx, filters, limit)
	if err != nil {
		return nil, err
	}
	return BuildRequestsCSV(rawLogs), nil
}

// BuildRequestsCSV renders raw logs into the export dialect.
func BuildRequestsCSV(rawLogs []model.RawLog) []byte {
	var sb strings.Builder
	sb.WriteString(utf8BOM)
	sb.WriteString(strings.Join(csvHeader, csvSeparator))
	sb.WriteString("\r\n")

	for _, rawLog := range rawLogs {
		fields := []string{
			rawLog.TimestampUTC.UTC().Format(csvTimestampLayout),
			rawLog.CorrelationID,
			rawLog.Method,
			rawLog.Path,
			rawLog.EndpointTemplate,
			strconv.Itoa(rawLog.StatusCode),
			strconv.Itoa(rawLog.DurationMs),
			rawLog.Severity,
			strconv.FormatBool(rawLog.IsError),
			strconv.Itoa(rawLog.WarningCount),
			rawLog.ErrorType,
			rawLog.TenantID,
			rawLog.UserID,
		}
		for i, field := range fields {
			if i > 0 {
				sb.WriteString(csvSeparator)
			}
			sb.WriteString(escapeCSVField(field))
		}
		sb.WriteString("\r\n")
	}
	return []byte(sb.String())
}

func escapeCSVField(field string) string {
	if !strings.ContainsAny(field, csvSeparator+"\"\n\r") {
		return field
	}
	return "\"" + strings.ReplaceAll(field, "\"", "\"\"") + "\""
}
