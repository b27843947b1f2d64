package worker

import (
	"context"
	"time"

	"github.com/adawatch/adasync/internal/metrics"
	"github.com/adawatch/adasync/internal/storage"
	"github.com/adawatch/adasync/pkg/logging"
)

const (
	stuckCheckInterval = 5 * time.Minute
	statsInterval      = 30 * time.Second
)

// JanitorConfig holds queue maintenance tunables.
type JanitorConfig struct {
	StuckThreshold  time.Duration
	CleanupInterval time.Duration
	Retention       time.Duration
}

// Janitor performs periodic queue maintenance: it returns stalled claims to
// the queue, deletes old terminal jobs, and refreshes queue-depth metrics.
type Janitor struct {
	store   *storage.Storage
	metrics *metrics.Metrics
	cfg     JanitorConfig
	log     *logging.Logger
}

// NewJanitor creates a janitor.
func NewJanitor(store *storage.Storage, m *metrics.Metrics, cfg JanitorConfig, log *logging.Logger) *Janitor {
	if cfg.StuckThreshold <= 0 {
		cfg.StuckThreshold = 30 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	return &Janitor{
		store:   store,
		metrics: m,
		cfg:     cfg,
		log:     log.Component("janitor"),
	}
}

// Run performs maintenance until the context is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	j.log.Info("janitor started",
		"stuck_threshold", j.cfg.StuckThreshold, "retention", j.cfg.Retention)

	stuckTicker := time.NewTicker(stuckCheckInterval)
	cleanupTicker := time.NewTicker(j.cfg.CleanupInterval)
	statsTicker := time.NewTicker(statsInterval)
	defer stuckTicker.Stop()
	defer cleanupTicker.Stop()
	defer statsTicker.Stop()

	j.refreshStats(ctx)

	for {
		select {
		case <-ctx.Done():
			j.log.Info("janitor stopped")
			return
		case <-stuckTicker.C:
			j.resetStuck(ctx)
		case <-cleanupTicker.C:
			j.cleanup(ctx)
		case <-statsTicker.C:
			j.refreshStats(ctx)
		}
	}
}

func (j *Janitor) resetStuck(ctx context.Context) {
	n, err := j.store.ResetStuckJobs(ctx, j.cfg.StuckThreshold)
	if err != nil {
		j.log.Error("failed to reset stuck jobs", "error", err)
		return
	}
	if n > 0 {
		j.log.Warn("reset stalled jobs back to pending", "count", n)
	}
}

func (j *Janitor) cleanup(ctx context.Context) {
	n, err := j.store.CleanupJobs(ctx, j.cfg.Retention)
	if err != nil {
		j.log.Error("failed to clean up old jobs", "error", err)
		return
	}
	if n > 0 {
		j.log.Info("deleted old terminal jobs", "count", n)
	}
}

func (j *Janitor) refreshStats(ctx context.Context) {
	stats, err := j.store.JobStats(ctx)
	if err != nil {
		j.log.Error("failed to read queue stats", "error", err)
		return
	}
	j.metrics.SetQueueStats(stats.Pending, stats.Processing, stats.Completed, stats.Failed)
}
