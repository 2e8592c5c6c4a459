package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/buffer"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/model"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

type fakeWriter struct {
	mu      sync.Mutex
	batches [][]model.TelemetryEvent
	err     error
}

func (fw *fakeWriter) SaveRawEvents(_ context.Context, events []model.TelemetryEvent) (int, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.err != nil {
		return 0, fw.err
	}
	batch := make([]model.TelemetryEvent, len(events))
	copy(batch, events)
	fw.batches = append(fw.batches, batch)
	return len(batch), nil
}

func (fw *fakeWriter) batchCount() int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return len(fw.batches)
}

func (fw *fakeWriter) totalEvents() int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	total := 0
	for _, batch := range fw.batches {
		total += len(batch)
	}
	return total
}

type fakeNotifier struct {
	mu     sync.Mutex
	scopes []string
	counts []int
}

func (fn *fakeNotifier) NotifyUpdated(scope string, count int) {
	fn.mu.Lock()
	defer fn.mu.Unlock()
	fn.scopes = append(fn.scopes, scope)
	fn.counts = append(fn.counts, count)
}

func (fn *fakeNotifier) notifications() int {
	fn.mu.Lock()
	defer fn.mu.Unlock()
	return len(fn.scopes)
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestFlushWorker(t *testing.T) {
	t.Run("persists buffered events in one batch", func(t *testing.T) {
		tb := buffer.NewTelemetryBufferImpl(0)
		writer := &fakeWriter{}
		notifier := &fakeNotifier{}
		fw := NewFlushWorker(tb, writer, notifier, 10, 20*time.Millisecond, zaptest.NewLogger(t))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go fw.Run(ctx)

		for i := 0; i < 5; i++ {
			tb.TryEnqueue(model.TelemetryEvent{Path: "/api/providers", StatusCode: 200})
		}
		waitFor(t, func() bool { return writer.totalEvents() == 5 })
		assert.Equal(t, 1, writer.batchCount())
		waitFor(t, func() bool { return notifier.notifications() == 1 })
	})

	t.Run("drops the batch when persistence fails", func(t *testing.T) {
		tb := buffer.NewTelemetryBufferImpl(0)
		writer := &fakeWriter{err: errors.New("index unavailable")}
		fw := NewFlushWorker(tb, writer, nil, 10, 10*time.Millisecond, zaptest.NewLogger(t))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go fw.Run(ctx)

		tb.TryEnqueue(model.TelemetryEvent{Path: "/api/requests", StatusCode: 500})
		waitFor(t, func() bool { return tb.ApproximateQueueLength() == 0 })
		assert.Equal(t, 0, writer.batchCount())
	})

	t.Run("suppresses notifications for dashboard only batches", func(t *testing.T) {
		tb := buffer.NewTelemetryBufferImpl(0)
		writer := &fakeWriter{}
		notifier := &fakeNotifier{}
		fw := NewFlushWorker(tb, writer, notifier, 10, 10*time.Millisecond, zaptest.NewLogger(t))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go fw.Run(ctx)

		tb.TryEnqueue(model.TelemetryEvent{Path: "/api/admin/monitoring/overview", StatusCode: 200})
		waitFor(t, func() bool { return writer.totalEvents() == 1 })
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, 0, notifier.notifications())
	})

	t.Run("stops when the context is cancelled", func(t *testing.T) {
		tb := buffer.NewTelemetryBufferImpl(0)
		writer := &fakeWriter{}
		fw := NewFlushWorker(tb, writer, nil, 10, 10*time.Millisecond, zaptest.NewLogger(t))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			fw.Run(ctx)
			close(done)
		}()
		cancel()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("worker did not stop after cancellation")
		}
	})

	t.Run("invalid settings fall back to defaults", func(t *testing.T) {
		fw := NewFlushWorker(buffer.NewTelemetryBufferImpl(0), &fakeWriter{}, nil, 0, 0, zaptest.NewLogger(t))
		assert.Equal(t, defaultBatchSize, fw.batchSize)
		assert.Equal(t, defaultAccumulateDelay, fw.accumulateDelay)
	})
}

func TestShouldNotify(t *testing.T) {
	assert.False(t, shouldNotify([]model.TelemetryEvent{{Path: "/api/admin/monitoring/errors"}}))
	assert.True(t, shouldNotify([]model.TelemetryEvent{
		{Path: "/api/admin/monitoring/errors"},
		{Path: "/api/providers"},
	}))
}
