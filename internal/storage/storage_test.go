package storage

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/adawatch/adasync/internal/chain"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := New(&Config{DSN: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEnsureWallet(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	if _, err := s.GetWallet(ctx, "addr1xyz", "user-1"); err != ErrNotFound {
		t.Fatalf("GetWallet() error = %v, want ErrNotFound", err)
	}

	w, err := s.EnsureWallet(ctx, "addr1xyz", "user-1")
	if err != nil {
		t.Fatalf("EnsureWallet() error = %v", err)
	}
	if w.SyncedBlockHeight != 0 {
		t.Errorf("new wallet height = %d, want 0", w.SyncedBlockHeight)
	}
	if w.Balance != nil {
		t.Errorf("new wallet balance = %v, want nil", w.Balance)
	}

	// same owner again returns the same row, not an error
	again, err := s.EnsureWallet(ctx, "addr1xyz", "user-1")
	if err != nil {
		t.Fatalf("EnsureWallet() second call error = %v", err)
	}
	if !again.CreatedAt.Equal(w.CreatedAt) {
		t.Error("EnsureWallet should not recreate an existing wallet")
	}

	// same address under a different owner is a distinct wallet
	if _, err := s.EnsureWallet(ctx, "addr1xyz", "user-2"); err != nil {
		t.Fatalf("EnsureWallet() other owner error = %v", err)
	}
}

func TestUpdateWalletCursorMonotonic(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	if _, err := s.EnsureWallet(ctx, "addr1xyz", "user-1"); err != nil {
		t.Fatal(err)
	}

	if err := s.UpdateWalletCursor(ctx, "addr1xyz", "user-1", 1000, big.NewInt(25_000_000)); err != nil {
		t.Fatalf("UpdateWalletCursor() error = %v", err)
	}

	// a pass that saw a lower tip must not move the cursor back
	if err := s.UpdateWalletCursor(ctx, "addr1xyz", "user-1", 900, nil); err != nil {
		t.Fatalf("UpdateWalletCursor() error = %v", err)
	}

	w, err := s.GetWallet(ctx, "addr1xyz", "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if w.SyncedBlockHeight != 1000 {
		t.Errorf("height = %d, want 1000", w.SyncedBlockHeight)
	}
	if w.Balance == nil || w.Balance.Int64() != 25_000_000 {
		t.Errorf("balance = %v, want 25000000 retained through nil update", w.Balance)
	}

	if err := s.UpdateWalletCursor(ctx, "missing", "user-1", 10, nil); err != ErrNotFound {
		t.Errorf("cursor update for unknown wallet error = %v, want ErrNotFound", err)
	}
}

func TestTokenUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	unit := "29d222ce763455e3d7a09a665ce554f00ac89d2e99a1a83d267170c64d494e"
	tok := &chain.Token{
		Unit:      unit,
		PolicyID:  unit[:chain.PolicyIDHexLen],
		AssetName: unit[chain.PolicyIDHexLen:],
		Name:      "Minswap",
		Ticker:    "MIN",
		Decimals:  6,
		Category:  chain.CategoryGovernance,
	}
	if err := s.UpsertToken(ctx, tok); err != nil {
		t.Fatalf("UpsertToken() error = %v", err)
	}

	got, err := s.GetToken(ctx, unit)
	if err != nil {
		t.Fatalf("GetToken() error = %v", err)
	}
	if got.Ticker != "MIN" || got.Decimals != 6 || got.Category != chain.CategoryGovernance {
		t.Errorf("GetToken() = %+v", got)
	}

	tok.Decimals = 8
	if err := s.UpsertToken(ctx, tok); err != nil {
		t.Fatalf("UpsertToken() update error = %v", err)
	}
	got, _ = s.GetToken(ctx, unit)
	if got.Decimals != 8 {
		t.Errorf("decimals after upsert = %d, want 8", got.Decimals)
	}

	many, err := s.GetTokens(ctx, []string{unit, "deadbeef"})
	if err != nil {
		t.Fatalf("GetTokens() error = %v", err)
	}
	if len(many) != 1 || many[unit] == nil {
		t.Errorf("GetTokens() = %v, want only the stored unit", many)
	}
}
