package buffer

import (
	"context"
	"testing"
	"time"

	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/model"
	"github.com/stretchr/testify/assert"
)

func TestTelemetryBuffer(t *testing.T) {
	t.Run("enqueue never blocks and drops on overflow", func(t *testing.T) {
		tb := NewTelemetryBufferImpl(minCapacity)
		for i := 0; i < minCapacity; i++ {
			assert.True(t, tb.TryEnqueue(model.TelemetryEvent{StatusCode: 200}))
		}
		assert.False(t, tb.TryEnqueue(model.TelemetryEvent{StatusCode: 200}))
		assert.Equal(t, minCapacity, tb.ApproximateQueueLength())
	})

	t.Run("dequeue drains in fifo order", func(t *testing.T) {
		tb := NewTelemetryBufferImpl(minCapacity)
		tb.TryEnqueue(model.TelemetryEvent{StatusCode: 200})
		tb.TryEnqueue(model.TelemetryEvent{StatusCode: 500})

		ctx := context.Background()
		first, err := tb.Dequeue(ctx)
		assert.NoError(t, err)
		assert.Equal(t, 200, first.StatusCode)

		second, err := tb.Dequeue(ctx)
		assert.NoError(t, err)
		assert.Equal(t, 500, second.StatusCode)
		assert.Equal(t, 0, tb.ApproximateQueueLength())
	})

	t.Run("dequeue respects context cancellation", func(t *testing.T) {
		tb := NewTelemetryBufferImpl(minCapacity)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := tb.Dequeue(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("try dequeue returns immediately when empty", func(t *testing.T) {
		tb := NewTelemetryBufferImpl(minCapacity)
		_, ok := tb.TryDequeue()
		assert.False(t, ok)

		tb.TryEnqueue(model.TelemetryEvent{StatusCode: 204})
		event, ok := tb.TryDequeue()
		assert.True(t, ok)
		assert.Equal(t, 204, event.StatusCode)
	})

	t.Run("capacity is clamped", func(t *testing.T) {
		tb := NewTelemetryBufferImpl(1)
		assert.Equal(t, minCapacity, cap(tb.events))

		tb = NewTelemetryBufferImpl(0)
		assert.Equal(t, DefaultCapacity, cap(tb.events))

		tb = NewTelemetryBufferImpl(maxCapacity * 2)
		assert.Equal(t, maxCapacity, cap(tb.events))
	})
}
