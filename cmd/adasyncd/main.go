// Command adasyncd runs the wallet sync daemon: the durable job queue, the
// sync workers, the queue janitor, and the JSON-RPC API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/adawatch/adasync/internal/cache"
	"github.com/adawatch/adasync/internal/config"
	"github.com/adawatch/adasync/internal/indexer"
	"github.com/adawatch/adasync/internal/metrics"
	"github.com/adawatch/adasync/internal/parser"
	"github.com/adawatch/adasync/internal/rpc"
	"github.com/adawatch/adasync/internal/storage"
	"github.com/adawatch/adasync/internal/token"
	"github.com/adawatch/adasync/internal/worker"
	"github.com/adawatch/adasync/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "adasyncd:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	logLevel := flag.String("log-level", "", "override log level (debug|info|warn|error)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Prefix = "adasyncd"
	log := logging.New(logCfg)
	logging.SetDefault(log)
	log.Info("starting", "db", cfg.Database.DSN, "indexer", cfg.Indexer.URL, "workers", cfg.Worker.Count)

	store, err := storage.New(&storage.Config{DSN: cfg.Database.DSN})
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	idx := indexer.New(&indexer.Config{
		BaseURL:  cfg.Indexer.URL,
		APIKey:   cfg.Indexer.APIKey,
		Timeout:  cfg.Indexer.Timeout,
		PageSize: cfg.Indexer.PageSize,
		Logger:   log,
	})

	// an empty cache URL disables the shared tier; every path stays
	// correct without it. The in-process store serves the configured
	// endpoint until a networked implementation of the same interface
	// exists.
	var kv cache.Store
	if cfg.Cache.URL != "" {
		kv = cache.NewMemory()
	}

	registry, err := token.New(store, idx, kv, cfg.Cache.TokenTTL, log)
	if err != nil {
		return fmt.Errorf("failed to create token registry: %w", err)
	}
	p := parser.New(registry, log)

	m := metrics.New()
	hub := rpc.NewWSHub(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for i := 0; i < cfg.Worker.Count; i++ {
		w := worker.New(store, worker.WrapClient(idx), p, kv, m, hub, worker.Config{
			BatchSize:    cfg.Worker.BatchSize,
			PollInterval: cfg.Worker.PollInterval,
			TxDelay:      cfg.Worker.TxDelay,
		}, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}

	janitor := worker.NewJanitor(store, m, worker.JanitorConfig{
		StuckThreshold:  cfg.Jobs.StuckThreshold,
		CleanupInterval: cfg.Jobs.CleanupInterval,
		Retention:       cfg.Jobs.Retention,
	}, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		janitor.Run(ctx)
	}()

	server := rpc.New(rpc.Config{
		Addr:       cfg.RPC.Addr,
		MaxRetries: cfg.Jobs.MaxRetries,
		WalletTTL:  cfg.Cache.WalletTTL,
		TxTTL:      cfg.Cache.TxTTL,
	}, store, kv, hub, m, log)
	err = server.Start(ctx)

	stop()
	wg.Wait()
	log.Info("shutdown complete")
	return err
}
