package ingest

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/metrics"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/buffer"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/model"
	"go.uber.org/zap"
)

const defaultBatchSize = 200
const defaultAccumulateDelay = 250 * time.Millisecond

// FlushNotifier receives a signal after a raw log batch lands, so dashboards
// can refresh without polling.
type FlushNotifier interface {
	NotifyUpdated(scope string, count int)
}

// FlushWorker drains the ingestion buffer in batches and persists them.
// Persistence failures drop the batch: protecting API throughput wins over
// telemetry completeness.
type FlushWorker struct {
	tb              buffer.TelemetryBuffer
	writer          RawLogWriter
	notifier        FlushNotifier
	logger          *zap.Logger
	batchSize       int
	accumulateDelay time.Duration
}

func NewFlushWorker(
	tb buffer.TelemetryBuffer,
	writer RawLogWriter,
	notifier FlushNotifier,
	batchSize int,
	accumulateDelay time.Duration,
	logger *zap.Logger,
) *FlushWorker {
	if batchSize < 10 || batchSize > 2000 {
		batchSize = defaultBatchSize
	}
	if accumulateDelay < 10*time.Millisecond || accumulateDelay > 2*time.Second {
		accumulateDelay = defaultAccumulateDelay
	}
	return &FlushWorker{
		tb:              tb,
		writer:          writer,
		notifier:        notifier,
		logger:          logger,
		batchSize:       batchSize,
		accumulateDelay: accumulateDelay,
	}
}

// Run drains the buffer until the context is cancelled. It waits for a first
// event, accumulates for a short delay up to the batch size, then persists.
func (fw *FlushWorker) Run(ctx context.Context) {
	fw.logger.Info(
		"Telemetry flush worker started",
		zap.Int("batch_size", fw.batchSize),
		zap.Duration("accumulate_delay", fw.accumulateDelay),
	)

	batch := make([]model.TelemetryEvent, 0, fw.batchSize)
	for {
		firstEvent, err := fw.tb.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			fw.logger.Error("Failed to dequeue telemetry event", zap.Error(err))
			continue
		}

		batch = batch[:0]
		batch = append(batch, firstEvent)

		select {
		case <-time.After(fw.accumulateDelay):
		case <-ctx.Done():
			// flush what is buffered before leaving
		}

		for len(batch) < fw.batchSize {
			nextEvent, ok := fw.tb.TryDequeue()
			if !ok {
				break
			}
			batch = append(batch, nextEvent)
		}

		fw.persistBatch(ctx, batch)

		if ctx.Err() != nil {
			return
		}
	}
}

func (fw *FlushWorker) persistBatch(ctx context.Context, batch []model.TelemetryEvent) {
	if len(batch) == 0 {
		return
	}

	persisted, err := fw.writer.SaveRawEvents(ctx, batch)
	if err != nil {
		fw.logger.Error(
			"Failed to flush telemetry batch, dropping events to protect API throughput",
			zap.Int("batch_count", len(batch)),
			zap.Error(err),
		)
		return
	}
	metrics.ObserveFlushedEvents(persisted)

	if fw.notifier != nil && shouldNotify(batch) {
		fw.notifier.NotifyUpdated("raw-flush", persisted)
	}
}

// shouldNotify suppresses notifications for batches made up entirely of the
// monitoring dashboard's own requests, to avoid a refresh feedback loop.
func shouldNotify(batch []model.TelemetryEvent) bool {
	for _, event := range batch {
		if !strings.HasPrefix(strings.ToLower(event.Path), "/api/admin/monitoring") {
			return true
		}
	}
	return false
}
