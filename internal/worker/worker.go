// Package worker runs the sync loop: it claims queued wallet jobs, streams
// the wallet's history from the indexer through the parser, and persists
// the results in idempotent batches.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/adawatch/adasync/internal/cache"
	"github.com/adawatch/adasync/internal/chain"
	"github.com/adawatch/adasync/internal/indexer"
	"github.com/adawatch/adasync/internal/metrics"
	"github.com/adawatch/adasync/internal/parser"
	"github.com/adawatch/adasync/internal/storage"
	"github.com/adawatch/adasync/pkg/helpers"
	"github.com/adawatch/adasync/pkg/logging"
)

// Pager yields pages of transaction hash references. A nil page means the
// listing is exhausted.
type Pager interface {
	Next(ctx context.Context) ([]indexer.TxHashRef, error)
}

// Indexer is the chain-indexer capability the worker consumes.
type Indexer interface {
	CurrentBlockHeight(ctx context.Context) (int64, error)
	ListTxHashes(address string, fromBlock int64) Pager
	FetchTxDetail(ctx context.Context, hash string) (*chain.RawTransaction, error)
	FetchAddressBalance(ctx context.Context, address string) (string, error)
}

// EventSink receives sync lifecycle events for fan-out to subscribers.
type EventSink interface {
	Publish(event string, payload any)
}

// Config holds worker tunables.
type Config struct {
	BatchSize    int
	PollInterval time.Duration
	TxDelay      time.Duration
}

// Worker is one sync loop instance. Multiple workers may run concurrently;
// the queue's claim protocol keeps them off each other's wallets.
type Worker struct {
	store   *storage.Storage
	indexer Indexer
	parser  *parser.Parser
	cache   cache.Store // may be nil
	metrics *metrics.Metrics
	events  EventSink // may be nil
	cfg     Config
	log     *logging.Logger
}

// New creates a worker.
func New(store *storage.Storage, idx Indexer, p *parser.Parser, kv cache.Store, m *metrics.Metrics, events EventSink, cfg Config, log *logging.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Worker{
		store:   store,
		indexer: idx,
		parser:  p,
		cache:   kv,
		metrics: m,
		events:  events,
		cfg:     cfg,
		log:     log.Component("sync-worker"),
	}
}

// Run claims and processes jobs until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("sync worker started", "poll", w.cfg.PollInterval, "batch", w.cfg.BatchSize)

	for {
		job, err := w.store.ClaimJob(ctx, storage.JobTypeWalletSync)
		if err != nil {
			w.log.Error("failed to claim job", "error", err)
		}
		if job == nil {
			select {
			case <-ctx.Done():
				w.log.Info("sync worker stopped")
				return
			case <-time.After(w.cfg.PollInterval):
			}
			continue
		}

		w.metrics.JobsClaimed.Inc()
		w.RunJob(ctx, job)

		select {
		case <-ctx.Done():
			w.log.Info("sync worker stopped")
			return
		default:
		}
	}
}

// errCancelled aborts the hash loop when the job is cancelled mid-run.
var errCancelled = errors.New("job cancelled")

// RunJob executes one claimed sync job to completion, failure, or observed
// cancellation.
func (w *Worker) RunJob(ctx context.Context, job *storage.SyncJob) {
	log := w.log.With("job", job.ID, "wallet", helpers.ShortHash(job.WalletAddress))
	started := time.Now()

	result, err := w.sync(ctx, job, log)
	if errors.Is(err, errCancelled) {
		log.Info("job cancelled mid-sync", "processed", result.processed)
		// the row is already cancelled; FailJob leaves it untouched
		w.store.FailJob(ctx, job.ID, errCancelled, false)
		return
	}
	if err != nil {
		log.Error("sync failed", "error", err, "processed", result.processed)
		w.metrics.JobsFailed.Inc()
		if ferr := w.store.FailJob(ctx, job.ID, err, true); ferr != nil {
			log.Error("failed to record job failure", "error", ferr)
		}
		w.publish("job_failed", map[string]any{
			"jobId": job.ID, "wallet": job.WalletAddress, "error": err.Error(),
		})
		return
	}

	meta := map[string]any{
		"processed": result.processed,
		"errors":    result.errors,
		"tip":       result.tip,
	}
	if cerr := w.store.CompleteJob(ctx, job.ID, meta); cerr != nil {
		log.Error("failed to complete job", "error", cerr)
		return
	}

	w.metrics.JobsCompleted.Inc()
	w.metrics.SyncDuration.Observe(time.Since(started).Seconds())
	w.publish("job_completed", map[string]any{
		"jobId": job.ID, "wallet": job.WalletAddress,
		"processed": result.processed, "errors": result.errors, "tip": result.tip,
	})
	log.Info("sync completed",
		"processed", result.processed, "errors", result.errors,
		"tip", result.tip, "took", time.Since(started).Round(time.Millisecond))
}

type syncResult struct {
	processed int
	errors    int
	tip       int64
}

func (w *Worker) sync(ctx context.Context, job *storage.SyncJob, log *logging.Logger) (syncResult, error) {
	var res syncResult

	wallet, err := w.store.EnsureWallet(ctx, job.WalletAddress, job.UserID)
	if err != nil {
		return res, fmt.Errorf("failed to load wallet: %w", err)
	}

	tip, err := w.indexer.CurrentBlockHeight(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to read chain tip: %w", err)
	}
	res.tip = tip

	// a fromBlock seeded at enqueue time forces a full or partial resync;
	// the wallet cursor is the default resume point
	fromBlock := wallet.SyncedBlockHeight
	if v, ok := metaInt64(job.Metadata, "fromBlock"); ok {
		fromBlock = v
	}
	log.Info("sync started", "from_block", fromBlock, "tip", tip)

	wref := parser.WalletRef{
		Address:      job.WalletAddress,
		StakeAddress: metaString(job.Metadata, "stakeAddress"),
		OwnerUserID:  job.UserID,
	}
	pager := w.indexer.ListTxHashes(job.WalletAddress, fromBlock)

	var batch []*chain.WalletTransaction
	var highest int64

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		saved, err := w.store.SaveBatch(ctx, batch)
		if err != nil {
			return fmt.Errorf("failed to persist batch: %w", err)
		}
		res.processed += len(batch)
		batch = batch[:0]

		w.metrics.TxPersisted.Add(float64(saved.Inserted))
		w.metrics.TxSkipped.Add(float64(saved.Skipped))
		if err := w.store.UpdateJobProgress(ctx, job.ID, map[string]any{
			"processed": res.processed, "errors": res.errors,
		}); err != nil {
			log.Warn("failed to update job progress", "error", err)
		}
		w.publish("sync_progress", map[string]any{
			"jobId": job.ID, "wallet": job.WalletAddress,
			"processed": res.processed, "errors": res.errors,
		})
		return nil
	}

	for {
		page, err := pager.Next(ctx)
		if err != nil {
			return res, fmt.Errorf("failed to list transactions: %w", err)
		}
		if page == nil {
			break
		}

		for _, ref := range page {
			cancelled, err := w.store.JobCancelled(ctx, job.ID)
			if err != nil {
				log.Warn("failed to poll cancellation", "error", err)
			} else if cancelled {
				return res, errCancelled
			}

			raw, err := w.indexer.FetchTxDetail(ctx, ref.TxHash)
			if err != nil {
				// one bad transaction must not sink the whole job
				res.errors++
				w.metrics.ParseErrors.Inc()
				log.Warn("failed to fetch transaction", "hash", helpers.ShortHash(ref.TxHash), "error", err)
				continue
			}
			if raw.BlockHeight > highest {
				highest = raw.BlockHeight
			}

			if wtx := w.parser.Parse(ctx, raw, wref); wtx != nil {
				batch = append(batch, wtx)
			}
			if len(batch) >= w.cfg.BatchSize {
				if err := flush(); err != nil {
					return res, err
				}
			}
			if w.cfg.TxDelay > 0 {
				select {
				case <-ctx.Done():
					return res, ctx.Err()
				case <-time.After(w.cfg.TxDelay):
				}
			}
		}
	}

	if err := flush(); err != nil {
		return res, err
	}

	balance := w.fetchBalance(ctx, job.WalletAddress, log)
	if balance != nil {
		// consistency probe only; fees and pre-tracking history make an
		// exact match unlikely
		if sum, serr := w.store.SumNetAdaChange(ctx, job.WalletAddress, job.UserID); serr == nil && sum.Cmp(balance) != 0 {
			log.Debug("balance differs from summed flows",
				"balance", helpers.FormatLovelace(balance), "summed", helpers.FormatLovelace(sum))
		}
	}

	// the cursor never outruns the tip observed at sync start, and a pass
	// that saw no transactions still advances to the tip
	cursor := tip
	if highest > 0 && highest < tip {
		cursor = highest
	}
	if err := w.store.UpdateWalletCursor(ctx, job.WalletAddress, job.UserID, cursor, balance); err != nil {
		return res, fmt.Errorf("failed to update wallet cursor: %w", err)
	}

	w.evictWalletCache(ctx, job.WalletAddress, job.UserID, log)
	return res, nil
}

// fetchBalance reads the authoritative balance from the indexer. Soft-fail:
// a balance error never fails the sync, the cursor update just keeps the
// previous balance.
func (w *Worker) fetchBalance(ctx context.Context, address string, log *logging.Logger) *big.Int {
	raw, err := w.indexer.FetchAddressBalance(ctx, address)
	if err != nil {
		log.Warn("failed to fetch balance, keeping previous", "error", err)
		return nil
	}
	balance, err := helpers.ParseBase(raw)
	if err != nil {
		log.Warn("indexer returned malformed balance", "value", raw)
		return nil
	}
	return balance
}

func (w *Worker) evictWalletCache(ctx context.Context, address, userID string, log *logging.Logger) {
	if w.cache == nil {
		return
	}
	if err := w.cache.Delete(ctx, cache.WalletKey(address, userID)); err != nil {
		log.Debug("wallet cache eviction failed", "error", err)
	}
	if err := w.cache.DeletePattern(ctx, cache.TxPattern(address)); err != nil {
		log.Debug("tx cache eviction failed", "error", err)
	}
}

// metaInt64 reads a numeric metadata field. Values round-tripped through the
// database come back as float64.
func metaInt64(m map[string]any, key string) (int64, bool) {
	switch v := m[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}

func metaString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func (w *Worker) publish(event string, payload any) {
	if w.events != nil {
		w.events.Publish(event, payload)
	}
}
