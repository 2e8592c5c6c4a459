package main

import (
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/config"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/aggregation"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

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
