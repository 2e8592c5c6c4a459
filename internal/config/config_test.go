package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	t.Run("defaults apply without a config file", func(t *testing.T) {
		t.Setenv("MONITORING_CONFIG", "")

		cfg, err := Load("")
		assert.NoError(t, err)
		assert.Equal(t, ":8081", cfg.Server.Address)
		assert.Equal(t, []string{"http://localhost:9200"}, cfg.Elasticsearch.Addresses)
		assert.Equal(t, 20000, cfg.Buffer.Capacity)
		assert.True(t, cfg.Flush.Enabled)
		assert.Equal(t, 200, cfg.Flush.BatchSize)
		assert.Equal(t, 250*time.Millisecond, cfg.Flush.AccumulateDelay)
		assert.Equal(t, 5*time.Minute, cfg.Maintenance.Interval)
		assert.Equal(t, 6, cfg.Maintenance.HourlyRecomputeWindowHours)
		assert.Equal(t, 30, cfg.Maintenance.DailyRecomputeWindowDays)
		assert.Equal(t, 14, cfg.Maintenance.RawRetentionDays)
		assert.Equal(t, 180, cfg.Maintenance.AggregateRetentionDays)
		assert.False(t, cfg.Maintenance.Lock.Enabled)
		assert.True(t, cfg.Realtime.Enabled)
	})

	t.Run("yaml file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := `
server:
  address: ":9090"
buffer:
  capacity: 50000
flush:
  batchSize: 500
maintenance:
  interval: 10m
  rawRetentionDays: 7
`
		assert.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		cfg, err := Load(path)
		assert.NoError(t, err)
		assert.Equal(t, ":9090", cfg.Server.Address)
		assert.Equal(t, 50000, cfg.Buffer.Capacity)
		assert.Equal(t, 500, cfg.Flush.BatchSize)
		assert.Equal(t, 10*time.Minute, cfg.Maintenance.Interval)
		assert.Equal(t, 7, cfg.Maintenance.RawRetentionDays)
	})

	t.Run("environment overrides win", func(t *testing.T) {
		t.Setenv("MONITORING_CONFIG", "")
		t.Setenv("MONITORING_SERVER_ADDRESS", ":7070")
		t.Setenv("MONITORING_ELASTICSEARCH_ADDRESSES", "http://es1:9200,http://es2:9200")
		t.Setenv("MONITORING_BUFFER_CAPACITY", "30000")
		t.Setenv("MONITORING_MAINTENANCE_LOCK_ENABLED", "true")

		cfg, err := Load("")
		assert.NoError(t, err)
		assert.Equal(t, ":7070", cfg.Server.Address)
		assert.Equal(t, []string{"http://es1:9200", "http://es2:9200"}, cfg.Elasticsearch.Addresses)
		assert.Equal(t, 30000, cfg.Buffer.Capacity)
		assert.True(t, cfg.Maintenance.Lock.Enabled)
	})

	t.Run("out of range values are clamped", func(t *testing.T) {
		t.Setenv("MONITORING_CONFIG", "")
		t.Setenv("MONITORING_BUFFER_CAPACITY", "5")
		t.Setenv("MONITORING_FLUSH_BATCH_SIZE", "100000")
		t.Setenv("MONITORING_FLUSH_ACCUMULATE_DELAY", "1ms")
		t.Setenv("MONITORING_MAINTENANCE_INTERVAL", "1s")

		cfg, err := Load("")
		assert.NoError(t, err)
		assert.Equal(t, 1000, cfg.Buffer.Capacity)
		assert.Equal(t, 2000, cfg.Flush.BatchSize)
		assert.Equal(t, 10*time.Millisecond, cfg.Flush.AccumulateDelay)
		assert.Equal(t, time.Minute, cfg.Maintenance.Interval)
	})

	t.Run("missing config file fails", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}
