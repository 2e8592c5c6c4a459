package buffer

import (
	"context"
	"sync/atomic"

	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/metrics"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/model"
)

const DefaultCapacity = 20000
const minCapacity = 1000
const maxCapacity = 200000

// TelemetryBuffer absorbs telemetry events from request-handling goroutines
// without ever blocking them. When full, new events are silently dropped:
// telemetry must never become an availability risk for the instrumented
// service.
type TelemetryBuffer interface {
	// TryEnqueue never blocks. It returns false when the buffer is at
	// capacity; the caller must treat that as "telemetry dropped" and move on.
	TryEnqueue(event model.TelemetryEvent) bool
	// Dequeue suspends the calling consumer until an item is available or the
	// context is cancelled. Multiple consumers may drain concurrently.
	Dequeue(ctx context.Context) (model.TelemetryEvent, error)
	// TryDequeue drains one buffered event without waiting.
	TryDequeue() (model.TelemetryEvent, bool)
	// ApproximateQueueLength is a best-effort depth signal for backpressure
	// monitoring. It can be mildly stale.
	ApproximateQueueLength() int
}

type TelemetryBufferImpl struct {
	events      chan model.TelemetryEvent
	queueLength atomic.Int64
}

func NewTelemetryBufferImpl(capacity int) *TelemetryBufferImpl {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if capacity < minCapacity {
		capacity = minCapacity
	}
	if capacity > maxCapacity {
		capacity = maxCapacity
	}
	return &TelemetryBufferImpl{
		events: make(chan model.TelemetryEvent, capacity),
	}
}

func (tb *TelemetryBufferImpl) TryEnqueue(event model.TelemetryEvent) bool {
	select {
	case tb.events <- event:
		metrics.SetBufferDepth(int(tb.queueLength.Add(1)))
		return true
	default:
		metrics.ObserveDroppedEvent()
		return false
	}
}

func (tb *TelemetryBufferImpl) Dequeue(ctx context.Context) (model.TelemetryEvent, error) {
	select {
	case event := <-tb.events:
		metrics.SetBufferDepth(int(tb.queueLength.Add(-1)))
		return event, nil
	case <-ctx.Done():
		return model.TelemetryEvent{}, ctx.Err()
	}
}

func (tb *TelemetryBufferImpl) TryDequeue() (model.TelemetryEvent, bool) {
	select {
	case event := <-tb.events:
		metrics.SetBufferDepth(int(tb.queueLength.Add(-1)))
		return event, true
	default:
		return model.TelemetryEvent{}, false
	}
}

func (tb *TelemetryBufferImpl) ApproximateQueueLength() int {
	length := tb.queueLength.Load()
	if length < 0 {
		return 0
	}
	return int(length)
}
