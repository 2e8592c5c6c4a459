package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/config"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/metrics"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/aggregation"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/model"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/store"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/store/bootstrapper"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const runTimeout = 10 * time.Minute

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	once := flag.Bool("once", false, "run a single maintenance pass and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger, err := zap.NewProduction()
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
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Fatal("Failed to register metrics", zap.Error(err))
	}

	sc := store.NewClientImpl(es, store.Async)
	engine := aggregation.NewEngineImpl(sc, newMaintenanceLock(cfg, logger), logger)
	options := model.MaintenanceOptions{
		HourlyRecomputeWindowHours: cfg.Maintenance.HourlyRecomputeWindowHours,
		DailyRecomputeWindowDays:   cfg.Maintenance.DailyRecomputeWindowDays,
		RawRetentionDays:           cfg.Maintenance.RawRetentionDays,
		AggregateRetentionDays:     cfg.Maintenance.AggregateRetentionDays,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		runOnce(ctx, engine, options, logger)
		return
	}

	logger.Info("Starting maintenance runner", zap.Duration("interval", cfg.Maintenance.Interval))
	ticker := time.NewTicker(cfg.Maintenance.Interval)
	defer ticker.Stop()

	runOnce(ctx, engine, options, logger)
	for {
		select {
		case <-ticker.C:
			runOnce(ctx, engine, options, logger)
		case <-ctx.Done():
			logger.Info("Maintenance runner stopping")
			return
		}
	}
}

func runOnce(
	ctx context.Context,
	engine aggregation.Engine,
	options model.MaintenanceOptions,
	logger *zap.Logger,
) {
	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	if _, err := engine.RunMaintenance(runCtx, options); err != nil {
		if errors.Is(err, aggregation.ErrMaintenanceInProgress) {
			logger.Info("Maintenance run skipped, another run is in progress")
			return
		}
		logger.Error("Maintenance run failed", zap.Error(err))
	}
}

func newMaintenanceLock(cfg *config.Config, logger *zap.Logger) aggregation.MaintenanceLock {
	if !cfg.Maintenance.Lock.Enabled {
		return aggregation.NewLocalMaintenanceLock()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Maintenance.Lock.Addr,
		Password: cfg.Maintenance.Lock.Password,
		DB:       cfg.Maintenance.Lock.DB,
	})
	logger.Info("Using redis maintenance lease", zap.String("addr", cfg.Maintenance.Lock.Addr))
	return aggregation.NewRedisMaintenanceLock(client, "", cfg.Maintenance.Lock.LeaseTTL)
}
