// Package config provides centralized configuration for the adasync daemon.
// All tunables (endpoints, batch sizes, retry policy, timeouts) are defined
// here; no hardcoded values should exist elsewhere in the codebase.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the daemon.
type Config struct {
	Indexer  IndexerConfig  `yaml:"indexer"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Worker   WorkerConfig   `yaml:"worker"`
	Jobs     JobsConfig     `yaml:"jobs"`
	RPC      RPCConfig      `yaml:"rpc"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// IndexerConfig configures the upstream chain-indexer client.
type IndexerConfig struct {
	URL      string        `yaml:"url"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
	PageSize int           `yaml:"page_size"`
}

// DatabaseConfig configures the relational store.
type DatabaseConfig struct {
	// DSN is the SQLite path or DSN. A bare directory gets the default
	// database filename appended.
	DSN string `yaml:"dsn"`
}

// CacheConfig configures the optional shared KV cache.
type CacheConfig struct {
	// URL of the shared cache endpoint. Empty disables the shared tier;
	// every code path must stay correct without it.
	URL       string        `yaml:"url"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	WalletTTL time.Duration `yaml:"wallet_ttl"`
	TxTTL     time.Duration `yaml:"tx_ttl"`
}

// WorkerConfig configures the sync workers.
type WorkerConfig struct {
	Count        int           `yaml:"count"`
	BatchSize    int           `yaml:"batch_size"`
	PollInterval time.Duration `yaml:"poll_interval"`
	TxDelay      time.Duration `yaml:"tx_delay"` // throttle between tx detail fetches
}

// JobsConfig configures the durable job queue and its janitor.
type JobsConfig struct {
	MaxRetries      int           `yaml:"max_retries"`
	StuckThreshold  time.Duration `yaml:"stuck_threshold"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	Retention       time.Duration `yaml:"retention"`
}

// RPCConfig configures the JSON-RPC API server.
type RPCConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the default configuration. Required fields (indexer URL,
// API key, database DSN) are left empty and must come from the config file
// or the environment.
func Default() *Config {
	return &Config{
		Indexer: IndexerConfig{
			Timeout:  30 * time.Second,
			PageSize: 100, // server max
		},
		Cache: CacheConfig{
			TokenTTL:  15 * time.Minute,
			WalletTTL: 5 * time.Minute,
			TxTTL:     5 * time.Minute,
		},
		Worker: WorkerConfig{
			Count:        1,
			BatchSize:    50,
			PollInterval: 5 * time.Second,
			TxDelay:      50 * time.Millisecond,
		},
		Jobs: JobsConfig{
			MaxRetries:      3,
			StuckThreshold:  30 * time.Minute,
			CleanupInterval: 1 * time.Hour,
			Retention:       7 * 24 * time.Hour,
		},
		RPC: RPCConfig{
			Addr: "127.0.0.1:8080",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration: defaults, then the YAML config file at
// path (if it exists), then environment variable overrides. A .env file in
// the working directory is honored before the environment is read.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	// Best-effort: a missing .env file is not an error.
	_ = godotenv.Load()

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides configuration from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("INDEXER_URL"); v != "" {
		c.Indexer.URL = v
	}
	if v := os.Getenv("INDEXER_KEY"); v != "" {
		c.Indexer.APIKey = v
	}
	if v := os.Getenv("INDEXER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Indexer.Timeout = d
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("CACHE_URL"); v != "" {
		c.Cache.URL = v
	}
	if v := os.Getenv("WORKER_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Worker.BatchSize = n
		}
	}
	if v := os.Getenv("WORKER_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Worker.PollInterval = d
		}
	}
	if v := os.Getenv("WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Worker.Count = n
		}
	}
	if v := os.Getenv("WORKER_TX_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Worker.TxDelay = d
		}
	}
	if v := os.Getenv("JOB_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Jobs.MaxRetries = n
		}
	}
	if v := os.Getenv("JOB_STUCK_THRESHOLD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Jobs.StuckThreshold = d
		}
	}
	if v := os.Getenv("RPC_ADDR"); v != "" {
		c.RPC.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Indexer.URL == "" {
		return fmt.Errorf("indexer URL is required (INDEXER_URL)")
	}
	if c.Indexer.APIKey == "" {
		return fmt.Errorf("indexer API key is required (INDEXER_KEY)")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required (DATABASE_URL)")
	}
	if c.Worker.BatchSize <= 0 {
		return fmt.Errorf("worker batch size must be positive")
	}
	if c.Worker.Count <= 0 {
		return fmt.Errorf("worker count must be positive")
	}
	if c.Jobs.MaxRetries < 0 {
		return fmt.Errorf("job max retries must not be negative")
	}
	if c.Jobs.StuckThreshold <= 0 {
		return fmt.Errorf("job stuck threshold must be positive")
	}
	return nil
}

// ConfigPath returns the default config file location under dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config.yaml")
}
