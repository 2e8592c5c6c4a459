package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/buffer"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/model"
	"go.uber.org/zap"
)

const CorrelationIDHeader = "X-Correlation-Id"
const TraceIDHeader = "X-Trace-Id"
const userIDHeader = "X-User-Id"
const tenantIDHeader = "X-Tenant-Id"

const maxUserAgentChars = 512
const maxErrorMessageChars = 1200

var guidRegex = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
var emailRegex = regexp.MustCompile(`[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
var numberRegex = regexp.MustCompile(`\d+`)

// RequestTelemetry instruments handlers and feeds completed-request events
// into the ingestion buffer. Enqueueing never blocks and a full buffer never
// fails the request.
type RequestTelemetry struct {
	tb         buffer.TelemetryBuffer
	logger     *zap.Logger
	ipHashSalt string
	skipPaths  []string
}

func NewRequestTelemetry(tb buffer.TelemetryBuffer, ipHashSalt string, logger *zap.Logger) *RequestTelemetry {
	if strings.TrimSpace(ipHashSalt) == "" {
		ipHashSalt = "conserta-pra-mim"
	}
	return &RequestTelemetry{
		tb:         tb,
		logger:     logger,
		ipHashSalt: ipHashSalt,
		skipPaths:  []string{"/metrics", "/healthz", "/favicon.ico"},
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode   int
	responseSize int64
}

func (sr *statusRecorder) WriteHeader(statusCode int) {
	sr.statusCode = statusCode
	sr.ResponseWriter.WriteHeader(statusCode)
}

func (sr *statusRecorder) Write(body []byte) (int, error) {
	written, err := sr.ResponseWriter.Write(body)
	sr.responseSize += int64(written)
	return written, err
}

// Wrap returns a handler that records one telemetry event per request.
func (rt *RequestTelemetry) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, skipPath := range rt.skipPaths {
			if strings.EqualFold(r.URL.Path, skipPath) {
				next.ServeHTTP(w, r)
				return
			}
		}

		startedAt := time.Now().UTC()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		warnings := newWarningCollector()
		r = r.WithContext(withWarningCollector(r.Context(), warnings))

		var panicValue interface{}
		func() {
			defer func() {
				panicValue = recover()
			}()
			next.ServeHTTP(recorder, r)
		}()

		durationMs := int(time.Since(startedAt).Milliseconds())
		statusCode := recorder.statusCode
		if panicValue != nil {
			statusCode = http.StatusInternalServerError
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}

		event := rt.buildEvent(r, startedAt, statusCode, durationMs, recorder.responseSize, warnings, panicValue)
		if !rt.tb.TryEnqueue(event) {
			rt.logger.Warn(
				"Telemetry buffer full, event dropped",
				zap.String("path", r.URL.Path),
				zap.String("method", r.Method),
				zap.Int("status_code", statusCode),
				zap.Int("queue_length", rt.tb.ApproximateQueueLength()),
			)
		}
	})
}

func (rt *RequestTelemetry) buildEvent(
	r *http.Request,
	startedAt time.Time,
	statusCode int,
	durationMs int,
	responseSize int64,
	warnings *WarningCollector,
	panicValue interface{},
) model.TelemetryEvent {
	warningCodes := warnings.Codes()
	isError := panicValue != nil

	var errorType, normalizedMessage, errorKey string
	if isError {
		errorType = "PanicError"
		normalizedMessage = NormalizeErrorMessage(fmt.Sprintf("%v", panicValue))
		errorKey = BuildErrorKey(errorType, normalizedMessage)
	}

	var warningCodesJSON string
	if len(warningCodes) > 0 {
		encoded, err := json.Marshal(warningCodes)
		if err == nil {
			warningCodesJSON = string(encoded)
		}
	}

	return model.TelemetryEvent{
		TimestampUTC:           startedAt,
		CorrelationID:          resolveCorrelationID(r),
		TraceID:                r.Header.Get(TraceIDHeader),
		Method:                 r.Method,
		EndpointTemplate:       resolveEndpointTemplate(r),
		Path:                   r.URL.Path,
		StatusCode:             statusCode,
		DurationMs:             durationMs,
		Severity:               ResolveSeverity(statusCode, len(warningCodes), isError),
		IsError:                isError,
		WarningCount:           len(warningCodes),
		WarningCodesJSON:       warningCodesJSON,
		ErrorType:              errorType,
		NormalizedErrorMessage: normalizedMessage,
		NormalizedErrorKey:     errorKey,
		IPHash:                 rt.hashIP(r.RemoteAddr),
		UserAgent:              truncate(r.UserAgent(), maxUserAgentChars),
		UserID:                 r.Header.Get(userIDHeader),
		TenantID:               r.Header.Get(tenantIDHeader),
		RequestSizeBytes:       maxInt64(r.ContentLength, 0),
		ResponseSizeBytes:      responseSize,
		Scheme:                 resolveScheme(r),
		Host:                   r.Host,
	}
}

func resolveCorrelationID(r *http.Request) string {
	correlationID := strings.TrimSpace(r.Header.Get(CorrelationIDHeader))
	if correlationID != "" {
		return correlationID
	}
	return uuid.NewString()
}

// resolveEndpointTemplate prefers the route pattern over the literal path so
// that /api/requests/123 and /api/requests/456 aggregate together.
func resolveEndpointTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if template, err := route.GetPathTemplate(); err == nil && template != "" {
			return template
		}
	}
	if r.URL.Path == "" {
		return "/"
	}
	return r.URL.Path
}

func resolveScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		return forwarded
	}
	return "http"
}

// ResolveSeverity classifies the outcome: failures and 5xx are error,
// warnings and 4xx are warn, everything else info.
func ResolveSeverity(statusCode int, warningCount int, isError bool) string {
	if isError || statusCode >= 500 {
		return model.SeverityError
	}
	if warningCount > 0 || statusCode >= 400 {
		return model.SeverityWarn
	}
	return model.SeverityInfo
}

func (rt *RequestTelemetry) hashIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	if strings.TrimSpace(host) == "" {
		return ""
	}
	digest := sha256.Sum256([]byte(rt.ipHashSalt + ":" + strings.TrimSpace(host)))
	return hex.EncodeToString(digest[:])[:32]
}

// NormalizeErrorMessage lowercases the message and collapses volatile parts
// (guids, emails, numbers) into placeholders so identical failures share a key.
func NormalizeErrorMessage(message string) string {
	normalized := strings.ToLower(strings.TrimSpace(message))
	if normalized == "" {
		return ""
	}
	normalized = guidRegex.ReplaceAllString(normalized, "{guid}")
	normalized = emailRegex.ReplaceAllString(normalized, "{email}")
	normalized = numberRegex.ReplaceAllString(normalized, "{n}")
	return truncate(normalized, maxErrorMessageChars)
}

// BuildErrorKey derives the stable dedup key for an error type and message.
func BuildErrorKey(errorType string, normalizedMessage string) string {
	digest := sha256.Sum256([]byte(errorType + "|" + normalizedMessage))
	return hex.EncodeToString(digest[:])[:40]
}

func truncate(value string, maxLength int) string {
	value = strings.TrimSpace(value)
	if len(value) <= maxLength {
		return value
	}
	return value[:maxLength]
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
