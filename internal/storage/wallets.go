package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/adawatch/adasync/pkg/helpers"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("not found")

// Wallet is a tracked wallet for one owner.
type Wallet struct {
	Address           string    `json:"address"`
	OwnerUserID       string    `json:"owner_user_id"`
	SyncedBlockHeight int64     `json:"synced_block_height"`
	LastSyncedAt      time.Time `json:"last_synced_at,omitempty"`
	Balance           *big.Int  `json:"balance"` // lovelace; nil until first sync
	CreatedAt         time.Time `json:"created_at"`
}

// GetWallet returns the wallet row for (address, owner).
func (s *Storage) GetWallet(ctx context.Context, address, ownerUserID string) (*Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT address, owner_user_id, synced_block_height, last_synced_at, balance_base, created_at
		FROM wallets WHERE address = ? AND owner_user_id = ?`,
		address, ownerUserID)

	return scanWallet(row)
}

// EnsureWallet returns the wallet row, creating it with a zero cursor if it
// does not exist yet.
func (s *Storage) EnsureWallet(ctx context.Context, address, ownerUserID string) (*Wallet, error) {
	w, err := s.GetWallet(ctx, address, ownerUserID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	s.mu.Lock()
	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO wallets (address, owner_user_id, synced_block_height, created_at)
		VALUES (?, ?, 0, ?)`,
		address, ownerUserID, s.now().Unix())
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	return s.GetWallet(ctx, address, ownerUserID)
}

// UpdateWalletCursor records the outcome of a sync pass. The synced height
// only ever moves forward; a pass that observed a lower tip leaves the
// cursor untouched. A nil balance keeps the stored balance.
func (s *Storage) UpdateWalletCursor(ctx context.Context, address, ownerUserID string, height int64, balance *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var balanceStr sql.NullString
	if balance != nil {
		balanceStr = sql.NullString{String: balance.String(), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE wallets
		SET synced_block_height = MAX(synced_block_height, ?),
		    last_synced_at = ?,
		    balance_base = COALESCE(?, balance_base)
		WHERE address = ? AND owner_user_id = ?`,
		height, s.now().Unix(), balanceStr, address, ownerUserID)
	if err != nil {
		return fmt.Errorf("failed to update wallet cursor: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanWallet(row *sql.Row) (*Wallet, error) {
	var w Wallet
	var lastSynced sql.NullInt64
	var balance sql.NullString
	var createdAt int64

	err := row.Scan(&w.Address, &w.OwnerUserID, &w.SyncedBlockHeight, &lastSynced, &balance, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan wallet: %w", err)
	}

	if lastSynced.Valid {
		w.LastSyncedAt = time.Unix(lastSynced.Int64, 0)
	}
	if balance.Valid {
		w.Balance = helpers.ParseBaseOrZero(balance.String)
	}
	w.CreatedAt = time.Unix(createdAt, 0)
	return &w, nil
}
