package worker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/adawatch/adasync/internal/chain"
	"github.com/adawatch/adasync/internal/indexer"
	"github.com/adawatch/adasync/internal/metrics"
	"github.com/adawatch/adasync/internal/parser"
	"github.com/adawatch/adasync/internal/storage"
	"github.com/adawatch/adasync/internal/token"
	"github.com/adawatch/adasync/pkg/logging"
)

const walletAddr = "addr1qtestwallet"

type fakePager struct {
	pages [][]indexer.TxHashRef
}

func (p *fakePager) Next(_ context.Context) ([]indexer.TxHashRef, error) {
	if len(p.pages) == 0 {
		return nil, nil
	}
	page := p.pages[0]
	p.pages = p.pages[1:]
	return page, nil
}

type fakeIndexer struct {
	tip        int64
	tipErr     error
	pages      [][]indexer.TxHashRef
	details    map[string]*chain.RawTransaction
	balance    string
	balanceErr error
	listedFrom []int64
}

func (f *fakeIndexer) CurrentBlockHeight(_ context.Context) (int64, error) {
	return f.tip, f.tipErr
}

func (f *fakeIndexer) ListTxHashes(_ string, fromBlock int64) Pager {
	f.listedFrom = append(f.listedFrom, fromBlock)
	pages := make([][]indexer.TxHashRef, len(f.pages))
	copy(pages, f.pages)
	return &fakePager{pages: pages}
}

func (f *fakeIndexer) FetchTxDetail(_ context.Context, hash string) (*chain.RawTransaction, error) {
	raw, ok := f.details[hash]
	if !ok {
		return nil, fmt.Errorf("tx %s: %w", hash, indexer.ErrNotFound)
	}
	return raw, nil
}

func (f *fakeIndexer) FetchAddressBalance(_ context.Context, _ string) (string, error) {
	return f.balance, f.balanceErr
}

func (f *fakeIndexer) FetchTokenMetadata(_ context.Context, _ string) (*chain.Token, error) {
	return nil, nil
}

func (f *fakeIndexer) FetchTokenMetadataBatch(_ context.Context, _ []string) (map[string]*chain.Token, error) {
	return nil, nil
}

func receiveTx(hash string, height int64, lovelace string) *chain.RawTransaction {
	return &chain.RawTransaction{
		Hash:        hash,
		BlockHeight: height,
		BlockTime:   1700000000 + height,
		Fees:        "170000",
		Outputs: []chain.TxOutput{
			{Address: walletAddr, Amounts: []chain.TokenAmount{
				{Unit: chain.LovelaceUnit, Quantity: lovelace},
			}},
		},
	}
}

func newTestWorker(t *testing.T, idx *fakeIndexer) (*Worker, *storage.Storage) {
	t.Helper()

	store, err := storage.New(&storage.Config{DSN: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	log := logging.Default()
	registry, err := token.New(store, idx, nil, 0, log)
	if err != nil {
		t.Fatalf("token.New() error = %v", err)
	}
	p := parser.New(registry, log)

	w := New(store, idx, p, nil, metrics.New(), nil, Config{BatchSize: 2}, log)
	return w, store
}

func claim(t *testing.T, store *storage.Storage) *storage.SyncJob {
	return claimWithMeta(t, store, nil)
}

func claimWithMeta(t *testing.T, store *storage.Storage, meta map[string]any) *storage.SyncJob {
	t.Helper()

	if _, _, err := store.EnqueueJob(context.Background(), walletAddr, "user-1", storage.JobTypeWalletSync, 5, 3, meta); err != nil {
		t.Fatalf("EnqueueJob() error = %v", err)
	}
	job, err := store.ClaimJob(context.Background(), storage.JobTypeWalletSync)
	if err != nil || job == nil {
		t.Fatalf("ClaimJob() = %v, %v", job, err)
	}
	return job
}

func TestRunJobFullSync(t *testing.T) {
	ctx := context.Background()
	idx := &fakeIndexer{
		tip: 1250,
		pages: [][]indexer.TxHashRef{
			{{TxHash: "aa11", BlockHeight: 1200}, {TxHash: "bb22", BlockHeight: 1210}},
			{{TxHash: "cc33", BlockHeight: 1220}},
		},
		details: map[string]*chain.RawTransaction{
			"aa11": receiveTx("aa11", 1200, "25000000"),
			"bb22": receiveTx("bb22", 1210, "1000000"),
			"cc33": receiveTx("cc33", 1220, "3000000"),
		},
		balance: "29000000",
	}
	w, store := newTestWorker(t, idx)

	job := claim(t, store)
	w.RunJob(ctx, job)

	got, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != chain.JobCompleted {
		t.Fatalf("status = %s (%s), want completed", got.Status, got.ErrorMessage)
	}
	if got.Metadata["processed"] != float64(3) || got.Metadata["errors"] != float64(0) {
		t.Errorf("result metadata = %v", got.Metadata)
	}

	wallet, err := store.GetWallet(ctx, walletAddr, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	// highest seen block is 1220, below the tip of 1250
	if wallet.SyncedBlockHeight != 1220 {
		t.Errorf("cursor = %d, want 1220", wallet.SyncedBlockHeight)
	}
	if wallet.Balance == nil || wallet.Balance.Int64() != 29_000_000 {
		t.Errorf("balance = %v, want 29000000", wallet.Balance)
	}

	n, _ := store.CountTransactions(ctx, walletAddr, "user-1", "")
	if n != 3 {
		t.Errorf("persisted txs = %d, want 3", n)
	}
}

func TestRunJobRerunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	idx := &fakeIndexer{
		tip: 1250,
		pages: [][]indexer.TxHashRef{
			{{TxHash: "aa11", BlockHeight: 1200}},
		},
		details: map[string]*chain.RawTransaction{
			"aa11": receiveTx("aa11", 1200, "25000000"),
		},
		balance: "25000000",
	}
	w, store := newTestWorker(t, idx)

	w.RunJob(ctx, claim(t, store))
	w.RunJob(ctx, claim(t, store))

	n, _ := store.CountTransactions(ctx, walletAddr, "user-1", "")
	if n != 1 {
		t.Errorf("persisted txs after rerun = %d, want 1", n)
	}
}

func TestRunJobBadTransactionDoesNotFailJob(t *testing.T) {
	ctx := context.Background()
	idx := &fakeIndexer{
		tip: 1250,
		pages: [][]indexer.TxHashRef{
			{{TxHash: "aa11", BlockHeight: 1200}, {TxHash: "gone", BlockHeight: 1205}},
		},
		details: map[string]*chain.RawTransaction{
			"aa11": receiveTx("aa11", 1200, "25000000"),
		},
		balance: "25000000",
	}
	w, store := newTestWorker(t, idx)

	job := claim(t, store)
	w.RunJob(ctx, job)

	got, _ := store.GetJob(ctx, job.ID)
	if got.Status != chain.JobCompleted {
		t.Fatalf("status = %s, want completed despite one bad tx", got.Status)
	}
	if got.Metadata["errors"] != float64(1) {
		t.Errorf("errors = %v, want 1", got.Metadata["errors"])
	}

	n, _ := store.CountTransactions(ctx, walletAddr, "user-1", "")
	if n != 1 {
		t.Errorf("persisted txs = %d, want 1", n)
	}
}

func TestRunJobObservesCancellation(t *testing.T) {
	ctx := context.Background()
	idx := &fakeIndexer{
		tip: 1250,
		pages: [][]indexer.TxHashRef{
			{{TxHash: "aa11", BlockHeight: 1200}},
		},
		details: map[string]*chain.RawTransaction{
			"aa11": receiveTx("aa11", 1200, "25000000"),
		},
		balance: "25000000",
	}
	w, store := newTestWorker(t, idx)

	job := claim(t, store)
	if err := store.CancelJob(ctx, job.ID); err != nil {
		t.Fatal(err)
	}

	w.RunJob(ctx, job)

	got, _ := store.GetJob(ctx, job.ID)
	if got.Status != chain.JobCancelled {
		t.Errorf("status = %s, want cancelled preserved", got.Status)
	}
	n, _ := store.CountTransactions(ctx, walletAddr, "user-1", "")
	if n != 0 {
		t.Errorf("cancelled job persisted %d txs before its first hash", n)
	}
}

func TestRunJobTipFailureRetries(t *testing.T) {
	ctx := context.Background()
	idx := &fakeIndexer{tipErr: errors.New("indexer unreachable")}
	w, store := newTestWorker(t, idx)

	job := claim(t, store)
	w.RunJob(ctx, job)

	got, _ := store.GetJob(ctx, job.ID)
	if got.Status != chain.JobPending {
		t.Errorf("status = %s, want pending for a retryable failure", got.Status)
	}
	if got.RetryCount != 1 {
		t.Errorf("retry_count = %d, want 1", got.RetryCount)
	}
}

func TestRunJobBalanceSoftFail(t *testing.T) {
	ctx := context.Background()
	idx := &fakeIndexer{
		tip:        1250,
		balanceErr: errors.New("balance endpoint down"),
	}
	w, store := newTestWorker(t, idx)

	job := claim(t, store)
	w.RunJob(ctx, job)

	got, _ := store.GetJob(ctx, job.ID)
	if got.Status != chain.JobCompleted {
		t.Fatalf("status = %s, want completed despite balance failure", got.Status)
	}
	wallet, _ := store.GetWallet(ctx, walletAddr, "user-1")
	if wallet.Balance != nil {
		t.Errorf("balance = %v, want left unset", wallet.Balance)
	}
	if wallet.SyncedBlockHeight != 1250 {
		t.Errorf("cursor = %d, want advanced to tip with no txs seen", wallet.SyncedBlockHeight)
	}
}

func TestRunJobFromBlockOverride(t *testing.T) {
	ctx := context.Background()
	idx := &fakeIndexer{
		tip: 1250,
		pages: [][]indexer.TxHashRef{
			{{TxHash: "aa11", BlockHeight: 1200}},
		},
		details: map[string]*chain.RawTransaction{
			"aa11": receiveTx("aa11", 1200, "25000000"),
		},
		balance: "25000000",
	}
	w, store := newTestWorker(t, idx)

	// first pass advances the cursor
	w.RunJob(ctx, claim(t, store))
	wallet, _ := store.GetWallet(ctx, walletAddr, "user-1")
	if wallet.SyncedBlockHeight == 0 {
		t.Fatal("cursor did not advance on the first pass")
	}

	// a seeded fromBlock beats the cursor and forces a full resync
	idx.pages = [][]indexer.TxHashRef{{{TxHash: "aa11", BlockHeight: 1200}}}
	job := claimWithMeta(t, store, map[string]any{"fromBlock": int64(0)})
	w.RunJob(ctx, job)

	if len(idx.listedFrom) != 2 {
		t.Fatalf("listings = %d, want 2", len(idx.listedFrom))
	}
	if idx.listedFrom[0] != 0 || idx.listedFrom[1] != 0 {
		t.Errorf("listed from %v, want [0 0]", idx.listedFrom)
	}

	got, _ := store.GetJob(ctx, job.ID)
	if got.Status != chain.JobCompleted {
		t.Fatalf("status = %s (%s), want completed", got.Status, got.ErrorMessage)
	}
	n, _ := store.CountTransactions(ctx, walletAddr, "user-1", "")
	if n != 1 {
		t.Errorf("persisted txs after resync = %d, want 1 (replay deduplicated)", n)
	}
}

func TestRunJobStakeAddressEnablesRewardClaims(t *testing.T) {
	ctx := context.Background()
	const stakeAddr = "stake1qtestwallet"

	withdrawal := &chain.RawTransaction{
		Hash:        "dd44",
		BlockHeight: 1230,
		BlockTime:   1700001230,
		Fees:        "170000",
		Inputs: []chain.TxInput{
			{Address: walletAddr, Amounts: []chain.TokenAmount{
				{Unit: chain.LovelaceUnit, Quantity: "5000000"},
			}},
		},
		Outputs: []chain.TxOutput{
			{Address: walletAddr, Amounts: []chain.TokenAmount{
				{Unit: chain.LovelaceUnit, Quantity: "6330000"},
			}},
		},
		Withdrawals: []chain.Withdrawal{
			{Address: stakeAddr, AmountBase: "1500000"},
		},
	}
	idx := &fakeIndexer{
		tip: 1250,
		pages: [][]indexer.TxHashRef{
			{{TxHash: "dd44", BlockHeight: 1230}},
		},
		details: map[string]*chain.RawTransaction{"dd44": withdrawal},
		balance: "6330000",
	}
	w, store := newTestWorker(t, idx)

	job := claimWithMeta(t, store, map[string]any{"stakeAddress": stakeAddr})
	w.RunJob(ctx, job)

	txs, err := store.ListTransactions(ctx, walletAddr, "user-1", "", 10, 0)
	if err != nil || len(txs) != 1 {
		t.Fatalf("ListTransactions() = %d txs, %v, want 1", len(txs), err)
	}
	if txs[0].Action != chain.ActionClaimRewards {
		t.Errorf("action = %s, want claim_rewards", txs[0].Action)
	}
}
