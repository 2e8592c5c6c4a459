package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the monitoring services.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Buffer        BufferConfig        `yaml:"buffer"`
	Flush         FlushConfig         `yaml:"flush"`
	Maintenance   MaintenanceConfig   `yaml:"maintenance"`
	Realtime      RealtimeConfig      `yaml:"realtime"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// ElasticsearchConfig configures the backing store.
type ElasticsearchConfig struct {
	Addresses []string `yaml:"addresses"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
}

// BufferConfig bounds the in-process ingestion buffer.
type BufferConfig struct {
	Capacity int `yaml:"capacity"`
}

// FlushConfig controls the raw log flush worker.
type FlushConfig struct {
	Enabled         bool          `yaml:"enabled"`
	BatchSize       int           `yaml:"batchSize"`
	AccumulateDelay time.Duration `yaml:"accumulateDelay"`
}

// MaintenanceConfig controls the aggregation and retention runner.
type MaintenanceConfig struct {
	Interval                   time.Duration `yaml:"interval"`
	HourlyRecomputeWindowHours int           `yaml:"hourlyRecomputeWindowHours"`
	DailyRecomputeWindowDays   int           `yaml:"dailyRecomputeWindowDays"`
	RawRetentionDays           int           `yaml:"rawRetentionDays"`
	AggregateRetentionDays     int           `yaml:"aggregateRetentionDays"`
	Lock                       LockConfig    `yaml:"lock"`
}

// LockConfig configures the Redis-leased maintenance lock. When disabled an
// in-process lock still guards against overlapping runs in one instance.
type LockConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LeaseTTL time.Duration `yaml:"leaseTTL"`
}

// RealtimeConfig controls the WebSocket notification hub.
type RealtimeConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Development bool `yaml:"development"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MONITORING_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	clamp(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8081",
			GracefulTimeout: 10 * time.Second,
		},
		Elasticsearch: ElasticsearchConfig{
			Addresses: []string{"http://localhost:9200"},
		},
		Buffer: BufferConfig{
			Capacity: 20000,
		},
		Flush: FlushConfig{
			Enabled:         true,
			BatchSize:       200,
			AccumulateDelay: 250 * time.Millisecond,
		},
		Maintenance: MaintenanceConfig{
			Interval:                   5 * time.Minute,
			HourlyRecomputeWindowHours: 6,
			DailyRecomputeWindowDays:   30,
			RawRetentionDays:           14,
			AggregateRetentionDays:     180,
			Lock: LockConfig{
				Enabled:  false,
				LeaseTTL: 10 * time.Minute,
			},
		},
		Realtime: RealtimeConfig{Enabled: true},
		Logging:  LoggingConfig{Development: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MONITORING_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("MONITORING_ELASTICSEARCH_ADDRESSES"); v != "" {
		cfg.Elasticsearch.Addresses = strings.Split(v, ",")
	}
	if v := os.Getenv("MONITORING_ELASTICSEARCH_USERNAME"); v != "" {
		cfg.Elasticsearch.Username = v
	}
	if v := os.Getenv("MONITORING_ELASTICSEARCH_PASSWORD"); v != "" {
		cfg.Elasticsearch.Password = v
	}
	if v := os.Getenv("MONITORING_BUFFER_CAPACITY"); v != "" {
		if capacity, err := strconv.Atoi(v); err == nil {
			cfg.Buffer.Capacity = capacity
		}
	}
	if v := os.Getenv("MONITORING_FLUSH_ENABLED"); v != "" {
		cfg.Flush.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("MONITORING_FLUSH_BATCH_SIZE"); v != "" {
		if batchSize, err := strconv.Atoi(v); err == nil {
			cfg.Flush.BatchSize = batchSize
		}
	}
	if v := os.Getenv("MONITORING_FLUSH_ACCUMULATE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Flush.AccumulateDelay = d
		}
	}
	if v := os.Getenv("MONITORING_MAINTENANCE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Maintenance.Interval = d
		}
	}
	if v := os.Getenv("MONITORING_MAINTENANCE_LOCK_ENABLED"); v != "" {
		cfg.Maintenance.Lock.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("MONITORING_MAINTENANCE_LOCK_ADDR"); v != "" {
		cfg.Maintenance.Lock.Addr = v
	}
	if v := os.Getenv("MONITORING_MAINTENANCE_LOCK_PASSWORD"); v != "" {
		cfg.Maintenance.Lock.Password = v
	}
	if v := os.Getenv("MONITORING_MAINTENANCE_LOCK_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Maintenance.Lock.DB = db
		}
	}
	if v := os.Getenv("MONITORING_REALTIME_ENABLED"); v != "" {
		cfg.Realtime.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("MONITORING_LOG_DEVELOPMENT"); v != "" {
		cfg.Logging.Development = strings.EqualFold(v, "true") || v == "1"
	}
}

func clamp(cfg *Config) {
	cfg.Buffer.Capacity = clampInt(cfg.Buffer.Capacity, 1000, 200000)
	cfg.Flush.BatchSize = clampInt(cfg.Flush.BatchSize, 10, 2000)
	if cfg.Flush.AccumulateDelay < 10*time.Millisecond {
		cfg.Flush.AccumulateDelay = 10 * time.Millisecond
	}
	if cfg.Flush.AccumulateDelay > 2*time.Second {
		cfg.Flush.AccumulateDelay = 2 * time.Second
	}
	if cfg.Maintenance.Interval < time.Minute {
		cfg.Maintenance.Interval = time.Minute
	}
	if cfg.Maintenance.Lock.LeaseTTL < time.Minute {
		cfg.Maintenance.Lock.LeaseTTL = time.Minute
	}
}

func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
