package storage

import (
	"context"
	"fmt"
	"math/big"

	"github.com/adawatch/adasync/internal/chain"
	"github.com/adawatch/adasync/pkg/helpers"
)

// BatchResult reports the outcome of a SaveBatch call.
type BatchResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// SaveBatch persists a batch of parsed transactions in one database
// transaction. A row already present for (owner, tx hash) is skipped along
// with its flows, so replaying a batch after a crash is harmless.
func (s *Storage) SaveBatch(ctx context.Context, txs []*chain.WalletTransaction) (BatchResult, error) {
	var result BatchResult
	if len(txs) == 0 {
		return result, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin batch: %w", err)
	}
	defer dbTx.Rollback()

	insertTx, err := dbTx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO transactions
			(owner_user_id, wallet_address, tx_hash, block_height, timestamp,
			 action, protocol, description, net_ada_change, fees, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return result, err
	}
	defer insertTx.Close()

	insertFlow, err := dbTx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO asset_flows
			(transaction_id, token_unit, in_base, out_base, net_base)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return result, err
	}
	defer insertFlow.Close()

	now := s.now().Unix()
	for _, tx := range txs {
		res, err := insertTx.ExecContext(ctx,
			tx.OwnerUserID, tx.WalletAddress, tx.TxHash, tx.BlockHeight, tx.Timestamp,
			string(tx.Action), string(tx.Protocol), tx.Description,
			bigString(tx.NetAdaChange), bigString(tx.Fees), now)
		if err != nil {
			return result, fmt.Errorf("failed to insert tx %s: %w", tx.TxHash, err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return result, err
		}
		if n == 0 {
			result.Skipped++
			continue
		}
		result.Inserted++

		txID, err := res.LastInsertId()
		if err != nil {
			return result, err
		}
		for i := range tx.AssetFlows {
			f := &tx.AssetFlows[i]
			_, err := insertFlow.ExecContext(ctx, txID, f.Unit,
				bigString(f.In), bigString(f.Out), bigString(f.Net))
			if err != nil {
				return result, fmt.Errorf("failed to insert flow %s/%s: %w", tx.TxHash, f.Unit, err)
			}
		}
	}

	if err := dbTx.Commit(); err != nil {
		return result, fmt.Errorf("failed to commit batch: %w", err)
	}
	return result, nil
}

// ListTransactions returns a page of a wallet's transactions, newest first.
// An empty action lists all actions.
func (s *Storage) ListTransactions(ctx context.Context, address, ownerUserID string, action chain.Action, limit, offset int) ([]*chain.WalletTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, owner_user_id, wallet_address, tx_hash, block_height, timestamp,
		       action, protocol, description, net_ada_change, fees
		FROM transactions
		WHERE wallet_address = ? AND owner_user_id = ?`
	args := []any{address, ownerUserID}
	if action != "" {
		query += ` AND action = ?`
		args = append(args, string(action))
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []*chain.WalletTransaction
	ids := make([]int64, 0, limit)
	byID := make(map[int64]*chain.WalletTransaction, limit)
	for rows.Next() {
		var id int64
		var tx chain.WalletTransaction
		var actionStr, protocolStr, netAda, fees string

		err := rows.Scan(&id, &tx.OwnerUserID, &tx.WalletAddress, &tx.TxHash,
			&tx.BlockHeight, &tx.Timestamp, &actionStr, &protocolStr,
			&tx.Description, &netAda, &fees)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		if tx.Action, err = chain.ParseAction(actionStr); err != nil {
			return nil, err
		}
		if tx.Protocol, err = chain.ParseProtocol(protocolStr); err != nil {
			return nil, err
		}
		tx.NetAdaChange = helpers.ParseBaseOrZero(netAda)
		tx.Fees = helpers.ParseBaseOrZero(fees)

		txs = append(txs, &tx)
		ids = append(ids, id)
		byID[id] = &tx
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return txs, nil
	}

	if err := s.attachFlows(ctx, ids, byID); err != nil {
		return nil, err
	}
	return txs, nil
}

// CountTransactions returns the number of stored transactions for a wallet,
// optionally filtered by action.
func (s *Storage) CountTransactions(ctx context.Context, address, ownerUserID string, action chain.Action) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT COUNT(*) FROM transactions WHERE wallet_address = ? AND owner_user_id = ?`
	args := []any{address, ownerUserID}
	if action != "" {
		query += ` AND action = ?`
		args = append(args, string(action))
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}

// SumNetAdaChange totals the stored net ADA movement for a wallet. Used as
// a consistency probe against the indexer's authoritative balance; the two
// legitimately differ by fees and pre-tracking history.
func (s *Storage) SumNetAdaChange(ctx context.Context, address, ownerUserID string) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT net_ada_change FROM transactions
		WHERE wallet_address = ? AND owner_user_id = ?`, address, ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum net ada: %w", err)
	}
	defer rows.Close()

	sum := new(big.Int)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		sum.Add(sum, helpers.ParseBaseOrZero(v))
	}
	return sum, rows.Err()
}

func (s *Storage) attachFlows(ctx context.Context, ids []int64, byID map[int64]*chain.WalletTransaction) error {
	query := `
		SELECT transaction_id, token_unit, in_base, out_base, net_base
		FROM asset_flows WHERE transaction_id IN (`
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += "?"
		args[i] = id
	}
	query += `) ORDER BY transaction_id, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query flows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var txID int64
		var f chain.Flow
		var in, out, net string
		if err := rows.Scan(&txID, &f.Unit, &in, &out, &net); err != nil {
			return fmt.Errorf("failed to scan flow: %w", err)
		}
		f.In = helpers.ParseBaseOrZero(in)
		f.Out = helpers.ParseBaseOrZero(out)
		f.Net = helpers.ParseBaseOrZero(net)

		if tx, ok := byID[txID]; ok {
			tx.AssetFlows = append(tx.AssetFlows, f)
		}
	}
	return rows.Err()
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
