package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels completed maintenance runs.
	OutcomeSuccess = "success"
	// OutcomeError labels failed maintenance runs.
	OutcomeError = "error"
	// OutcomeSkipped labels runs that found the maintenance lock held.
	OutcomeSkipped = "skipped"
)

var (
	bufferDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "api_telemetry",
			Name:      "buffer_depth",
			Help:      "Approximate number of telemetry events waiting in the ingestion buffer.",
		},
	)

	droppedEventsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "api_telemetry",
			Name:      "dropped_events_total",
			Help:      "Telemetry events dropped because the ingestion buffer was full.",
		},
	)

	flushedEventsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "api_telemetry",
			Name:      "flushed_events_total",
			Help:      "Telemetry events persisted to the raw log store.",
		},
	)

	maintenanceRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "api_telemetry",
			Name:      "maintenance_runs_total",
			Help:      "Maintenance runs handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	maintenanceDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "api_telemetry",
			Name:      "maintenance_seconds",
			Help:      "Maintenance run latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)
)

// Register attaches the telemetry collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		bufferDepth,
		droppedEventsTotal,
		flushedEventsTotal,
		maintenanceRunsTotal,
		maintenanceDurationSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// SetBufferDepth reports the ingestion buffer's approximate queue length.
func SetBufferDepth(depth int) {
	bufferDepth.Set(float64(depth))
}

// ObserveDroppedEvent records one event lost to buffer overflow.
func ObserveDroppedEvent() {
	droppedEventsTotal.Inc()
}

// ObserveFlushedEvents records a persisted raw log batch.
func ObserveFlushedEvents(count int) {
	if count > 0 {
		flushedEventsTotal.Add(float64(count))
	}
}

// ObserveMaintenanceRun records a maintenance run duration and outcome label.
func ObserveMaintenanceRun(duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeError, OutcomeSkipped:
	default:
		outcome = OutcomeSuccess
	}
	maintenanceRunsTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	maintenanceDurationSeconds.Observe(duration.Seconds())
}
