package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/model"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/store"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/store/bootstrapper"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

// RawLogWriter persists drained telemetry batches as raw log rows. There is
// no dedup: at-least-once semantics are accepted, and a crash between
// enqueue and persistence loses (never duplicates) events.
type RawLogWriter interface {
	SaveRawEvents(ctx context.Context, events []model.TelemetryEvent) (int, error)
}

type RawLogWriterImpl struct {
	sc     store.Client
	logger *zap.Logger
}

func NewRawLogWriterImpl(sc store.Client, logger *zap.Logger) *RawLogWriterImpl {
	return &RawLogWriterImpl{
		sc:     sc,
		logger: logger,
	}
}

func (rw *RawLogWriterImpl) SaveRawEvents(
	ctx context.Context,
	events []model.TelemetryEvent,
) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	documents := make([]map[string]interface{}, len(events))
	for i, event := range events {
		documents[i] = store.RawLogToDocument(model.RawLogFromEvent(event))
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	err := rw.sc.BulkIndex(writeCtx, documents, bootstrapper.RawRequestIndexName)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk index raw logs: %w", err)
	}
	return len(documents), nil
}
