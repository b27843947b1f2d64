package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("INDEXER_URL", "https://cardano-mainnet.example.com/api/v0")
	t.Setenv("INDEXER_KEY", "testkey")
	t.Setenv("DATABASE_URL", "/tmp/adasync-test.db")
}

func TestLoadFromEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("WORKER_BATCH_SIZE", "25")
	t.Setenv("WORKER_POLL_INTERVAL", "2s")
	t.Setenv("JOB_MAX_RETRIES", "5")
	t.Setenv("JOB_STUCK_THRESHOLD", "10m")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Indexer.URL != "https://cardano-mainnet.example.com/api/v0" {
		t.Errorf("Indexer.URL = %s", cfg.Indexer.URL)
	}
	if cfg.Worker.BatchSize != 25 {
		t.Errorf("Worker.BatchSize = %d, want 25", cfg.Worker.BatchSize)
	}
	if cfg.Worker.PollInterval != 2*time.Second {
		t.Errorf("Worker.PollInterval = %v", cfg.Worker.PollInterval)
	}
	if cfg.Jobs.MaxRetries != 5 {
		t.Errorf("Jobs.MaxRetries = %d", cfg.Jobs.MaxRetries)
	}
	if cfg.Jobs.StuckThreshold != 10*time.Minute {
		t.Errorf("Jobs.StuckThreshold = %v", cfg.Jobs.StuckThreshold)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %s", cfg.Logging.Level)
	}
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Worker.BatchSize != 50 {
		t.Errorf("default batch size = %d, want 50", cfg.Worker.BatchSize)
	}
	if cfg.Worker.PollInterval != 5*time.Second {
		t.Errorf("default poll interval = %v", cfg.Worker.PollInterval)
	}
	if cfg.Jobs.MaxRetries != 3 {
		t.Errorf("default max retries = %d", cfg.Jobs.MaxRetries)
	}
	if cfg.Jobs.StuckThreshold != 30*time.Minute {
		t.Errorf("default stuck threshold = %v", cfg.Jobs.StuckThreshold)
	}
	if cfg.Indexer.PageSize != 100 {
		t.Errorf("default page size = %d", cfg.Indexer.PageSize)
	}
	if cfg.Cache.URL != "" {
		t.Errorf("cache should default to disabled")
	}
}

func TestLoadFromFile(t *testing.T) {
	setRequiredEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("worker:\n  batch_size: 10\nrpc:\n  addr: \"0.0.0.0:9090\"\n")
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Worker.BatchSize != 10 {
		t.Errorf("Worker.BatchSize = %d, want 10 from file", cfg.Worker.BatchSize)
	}
	if cfg.RPC.Addr != "0.0.0.0:9090" {
		t.Errorf("RPC.Addr = %s", cfg.RPC.Addr)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("WORKER_BATCH_SIZE", "75")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("worker:\n  batch_size: 10\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Worker.BatchSize != 75 {
		t.Errorf("env should override file, got %d", cfg.Worker.BatchSize)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should fail without required fields")
	}

	cfg.Indexer.URL = "https://indexer.example.com"
	cfg.Indexer.APIKey = "key"
	cfg.Database.DSN = "/tmp/x.db"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	cfg.Worker.BatchSize = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should reject zero batch size")
	}
}
