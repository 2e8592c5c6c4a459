package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/asaskevich/EventBus"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/config"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/metrics"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/query"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/query/router"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/realtime"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/aggregation"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/buffer"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/ingest"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/middleware"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/store"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/store/bootstrapper"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// @title API Request Monitoring
// @version 1.0
// @description Ingestion, aggregation and query service for API request telemetry.

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	var logger *zap.Logger
	if cfg.Logging.Development {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Elasticsearch.Addresses,
		Username:  cfg.Elasticsearch.Username,
		Password:  cfg.Elasticsearch.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create elasticsearch client", zap.Error(err))
	}

	bs := bootstrapper.NewBootstrapper(es, logger)
	if err := bs.BootstrapElasticsearch(); err != nil {
		logger.Fatal("Failed to bootstrap elasticsearch", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	if err := metrics.Register(registry); err != nil {
		logger.Fatal("Failed to register metrics", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc := store.NewClientImpl(es, store.Async)
	tb := buffer.NewTelemetryBufferImpl(cfg.Buffer.Capacity)

	var hub *realtime.Hub
	var notifier ingest.FlushNotifier
	if cfg.Realtime.Enabled {
		hub = realtime.NewHub()
		bus := realtime.NewNotificationBus(EventBus.New(), logger)
		if err := realtime.ForwardToHub(bus, hub, logger); err != nil {
			logger.Fatal("Failed to subscribe hub to telemetry updates", zap.Error(err))
		}
		notifier = realtime.NewBusNotifier(bus, logger)
	}

	if cfg.Flush.Enabled {
		writer := ingest.NewRawLogWriterImpl(sc, logger)
		fw := ingest.NewFlushWorker(tb, writer, notifier, cfg.Flush.BatchSize, cfg.Flush.AccumulateDelay, logger)
		go fw.Run(ctx)
	}

	lock := newMaintenanceLock(cfg, logger)
	engine := aggregation.NewEngineImpl(sc, lock, logger)

	cache, err := query.NewOverviewCache()
	if err != nil {
		logger.Fatal("Failed to create overview cache", zap.Error(err))
	}
	qs := query.NewServiceImpl(sc, cache, logger)

	rt := middleware.NewRequestTelemetry(tb, os.Getenv("MONITORING_IP_HASH_SALT"), logger)
	r := router.CreateRouter(ctx, qs, engine, hub, registry, logger)

	server := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: rt.Wrap(r),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to shut down server cleanly", zap.Error(err))
		}
	}()

	logger.Info("Starting monitoring server", zap.String("address", cfg.Server.Address))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("Failed to serve", zap.Error(err))
	}
}
