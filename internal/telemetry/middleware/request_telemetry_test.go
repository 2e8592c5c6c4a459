package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/buffer"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/model"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func newInstrumented(t *testing.T, next http.Handler) (*buffer.TelemetryBufferImpl, http.Handler) {
	tb := buffer.NewTelemetryBufferImpl(0)
	rt := NewRequestTelemetry(tb, "test-salt", zaptest.NewLogger(t))
	return tb, rt.Wrap(next)
}

func TestRequestTelemetry(t *testing.T) {
	t.Run("records one event per request", func(t *testing.T) {
		tb, wrapped := newInstrumented(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte("created"))
		}))

		request := httptest.NewRequest("POST", "/api/providers", strings.NewReader("body"))
		request.Header.Set(CorrelationIDHeader, "corr-123")
		request.Header.Set("X-Tenant-Id", "tenant-a")
		request.RemoteAddr = "203.0.113.10:51234"
		wrapped.ServeHTTP(httptest.NewRecorder(), request)

		event, ok := tb.TryDequeue()
		assert.True(t, ok)
		assert.Equal(t, "corr-123", event.CorrelationID)
		assert.Equal(t, "POST", event.Method)
		assert.Equal(t, "/api/providers", event.Path)
		assert.Equal(t, http.StatusCreated, event.StatusCode)
		assert.Equal(t, model.SeverityInfo, event.Severity)
		assert.False(t, event.IsError)
		assert.Equal(t, "tenant-a", event.TenantID)
		assert.Equal(t, int64(7), event.ResponseSizeBytes)
		assert.Len(t, event.IPHash, 32)
	})

	t.Run("generates a correlation id when absent", func(t *testing.T) {
		tb, wrapped := newInstrumented(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/quotes", nil))

		event, _ := tb.TryDequeue()
		assert.NotEmpty(t, event.CorrelationID)
	})

	t.Run("recovers panics as error events", func(t *testing.T) {
		tb, wrapped := newInstrumented(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("connection to 10.0.0.5 refused")
		}))

		recorder := httptest.NewRecorder()
		wrapped.ServeHTTP(recorder, httptest.NewRequest("GET", "/api/quotes", nil))
		assert.Equal(t, http.StatusInternalServerError, recorder.Code)

		event, ok := tb.TryDequeue()
		assert.True(t, ok)
		assert.True(t, event.IsError)
		assert.Equal(t, http.StatusInternalServerError, event.StatusCode)
		assert.Equal(t, model.SeverityError, event.Severity)
		assert.Equal(t, "PanicError", event.ErrorType)
		assert.Equal(t, "connection to {n}.{n}.{n}.{n} refused", event.NormalizedErrorMessage)
		assert.Len(t, event.NormalizedErrorKey, 40)
	})

	t.Run("handler warnings raise severity to warn", func(t *testing.T) {
		tb, wrapped := newInstrumented(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			AddWarning(r, "deprecated-field")
		}))
		wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/quotes", nil))

		event, _ := tb.TryDequeue()
		assert.Equal(t, model.SeverityWarn, event.Severity)
		assert.Equal(t, 1, event.WarningCount)
		assert.Equal(t, `["deprecated-field"]`, event.WarningCodesJSON)
	})

	t.Run("skips health and metrics endpoints", func(t *testing.T) {
		tb, wrapped := newInstrumented(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/healthz", nil))
		wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/metrics", nil))

		_, ok := tb.TryDequeue()
		assert.False(t, ok)
	})

	t.Run("never fails the request when the buffer is full", func(t *testing.T) {
		tb := buffer.NewTelemetryBufferImpl(1000)
		for tb.TryEnqueue(model.TelemetryEvent{}) {
		}
		rt := NewRequestTelemetry(tb, "test-salt", zaptest.NewLogger(t))
		wrapped := rt.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		recorder := httptest.NewRecorder()
		wrapped.ServeHTTP(recorder, httptest.NewRequest("GET", "/api/quotes", nil))
		assert.Equal(t, http.StatusOK, recorder.Code)
	})
}

func TestResolveSeverity(t *testing.T) {
	assert.Equal(t, model.SeverityError, ResolveSeverity(500, 0, false))
	assert.Equal(t, model.SeverityError, ResolveSeverity(200, 0, true))
	assert.Equal(t, model.SeverityWarn, ResolveSeverity(404, 0, false))
	assert.Equal(t, model.SeverityWarn, ResolveSeverity(200, 2, false))
	assert.Equal(t, model.SeverityInfo, ResolveSeverity(200, 0, false))
}

func TestNormalizeErrorMessage(t *testing.T) {
	t.Run("collapses volatile fragments", func(t *testing.T) {
		message := "User 7f3a2b1c-0d4e-4f5a-8b6c-9d0e1f2a3b4c (bob@example.com) failed 3 times"
		assert.Equal(t, "user {guid} ({email}) failed {n} times", NormalizeErrorMessage(message))
	})

	t.Run("truncates long messages", func(t *testing.T) {
		long := strings.Repeat("x", 5000)
		assert.Len(t, NormalizeErrorMessage(long), 1200)
	})

	t.Run("empty message stays empty", func(t *testing.T) {
		assert.Equal(t, "", NormalizeErrorMessage("   "))
	})
}

func TestBuildErrorKey(t *testing.T) {
	key := BuildErrorKey("TimeoutError", "timed out after {n} ms")
	assert.Len(t, key, 40)
	assert.Equal(t, key, BuildErrorKey("TimeoutError", "timed out after {n} ms"))
	assert.NotEqual(t, key, BuildErrorKey("TimeoutError", "a different message"))
}

func TestHashIPStability(t *testing.T) {
	rt := NewRequestTelemetry(buffer.NewTelemetryBufferImpl(0), "salt-a", zaptest.NewLogger(t))
	other := NewRequestTelemetry(buffer.NewTelemetryBufferImpl(0), "salt-b", zaptest.NewLogger(t))

	first := rt.hashIP("203.0.113.10:51234")
	assert.Len(t, first, 32)
	assert.Equal(t, first, rt.hashIP("203.0.113.10:9999"))
	assert.NotEqual(t, first, other.hashIP("203.0.113.10:51234"))
	assert.Empty(t, rt.hashIP(""))
}
