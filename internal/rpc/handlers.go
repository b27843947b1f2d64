package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/adawatch/adasync/internal/cache"
	"github.com/adawatch/adasync/internal/chain"
	"github.com/adawatch/adasync/internal/storage"
	"github.com/adawatch/adasync/pkg/helpers"
)

const defaultJobPriority = 5

type syncEnqueueParams struct {
	WalletAddress string `json:"walletAddress"`
	UserID        string `json:"userId"`
	StakeAddress  string `json:"stakeAddress"`
	FromBlock     *int64 `json:"fromBlock"` // nil resumes from the wallet cursor
	Priority      int    `json:"priority"`
}

func (s *Server) handleSyncEnqueue(ctx context.Context, params json.RawMessage) (interface{}, *rpcError) {
	var p syncEnqueueParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.WalletAddress == "" {
		return nil, &rpcError{Code: codeInvalidParams, Message: "walletAddress is required"}
	}
	if p.FromBlock != nil && *p.FromBlock < 0 {
		return nil, &rpcError{Code: codeInvalidParams, Message: "fromBlock must not be negative"}
	}
	if p.Priority == 0 {
		p.Priority = defaultJobPriority
	}

	var meta map[string]any
	if p.FromBlock != nil || p.StakeAddress != "" {
		meta = make(map[string]any, 2)
		if p.FromBlock != nil {
			meta["fromBlock"] = *p.FromBlock
		}
		if p.StakeAddress != "" {
			meta["stakeAddress"] = p.StakeAddress
		}
	}

	job, created, err := s.store.EnqueueJob(ctx, p.WalletAddress, p.UserID, storage.JobTypeWalletSync, p.Priority, s.cfg.MaxRetries, meta)
	if err != nil {
		return nil, internalError(err)
	}

	if created {
		s.hub.Publish("job_enqueued", map[string]any{
			"jobId": job.ID, "wallet": job.WalletAddress, "priority": job.Priority,
		})
		s.log.Info("sync job enqueued",
			"job", job.ID, "wallet", helpers.ShortHash(job.WalletAddress))
	}

	return map[string]any{"job": job, "created": created}, nil
}

type jobGetParams struct {
	ID string `json:"id"`
}

func (s *Server) handleJobGet(ctx context.Context, params json.RawMessage) (interface{}, *rpcError) {
	var p jobGetParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	job, err := s.store.GetJob(ctx, p.ID)
	if err != nil {
		return nil, internalError(err)
	}
	return job, nil
}

type jobListParams struct {
	WalletAddress string `json:"walletAddress"`
	Limit         int    `json:"limit"`
}

func (s *Server) handleJobListByWallet(ctx context.Context, params json.RawMessage) (interface{}, *rpcError) {
	var p jobListParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.WalletAddress == "" {
		return nil, &rpcError{Code: codeInvalidParams, Message: "walletAddress is required"}
	}

	jobs, err := s.store.ListJobsByWallet(ctx, p.WalletAddress, p.Limit)
	if err != nil {
		return nil, internalError(err)
	}
	if jobs == nil {
		jobs = []*storage.SyncJob{}
	}
	return jobs, nil
}

func (s *Server) handleJobCancel(ctx context.Context, params json.RawMessage) (interface{}, *rpcError) {
	var p jobGetParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	if err := s.store.CancelJob(ctx, p.ID); err != nil {
		return nil, internalError(err)
	}
	job, err := s.store.GetJob(ctx, p.ID)
	if err != nil {
		return nil, internalError(err)
	}
	return job, nil
}

func (s *Server) handleQueueStats(ctx context.Context, _ json.RawMessage) (interface{}, *rpcError) {
	stats, err := s.store.JobStats(ctx)
	if err != nil {
		return nil, internalError(err)
	}
	return stats, nil
}

type walletGetParams struct {
	Address string `json:"address"`
	UserID  string `json:"userId"`
}

func (s *Server) handleWalletGet(ctx context.Context, params json.RawMessage) (interface{}, *rpcError) {
	var p walletGetParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	key := cache.WalletKey(p.Address, p.UserID)
	if data, ok := s.cacheGet(ctx, key); ok {
		return json.RawMessage(data), nil
	}

	wallet, err := s.store.GetWallet(ctx, p.Address, p.UserID)
	if err != nil {
		return nil, internalError(err)
	}

	balance := "0"
	if wallet.Balance != nil {
		balance = wallet.Balance.String()
	}
	result := map[string]any{
		"address":           wallet.Address,
		"ownerUserId":       wallet.OwnerUserID,
		"syncedBlockHeight": wallet.SyncedBlockHeight,
		"lastSyncedAt":      wallet.LastSyncedAt.Unix(),
		"balanceBase":       balance,
		"balanceAda":        helpers.FormatLovelace(wallet.Balance),
	}
	s.cachePut(ctx, key, result, s.cfg.WalletTTL)
	return result, nil
}

type txListParams struct {
	Address string `json:"address"`
	UserID  string `json:"userId"`
	Action  string `json:"action"`
	Limit   int    `json:"limit"`
	Offset  int    `json:"offset"`
}

func (s *Server) handleTxList(ctx context.Context, params json.RawMessage) (interface{}, *rpcError) {
	var p txListParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Address == "" {
		return nil, &rpcError{Code: codeInvalidParams, Message: "address is required"}
	}

	var action chain.Action
	if p.Action != "" {
		parsed, err := chain.ParseAction(p.Action)
		if err != nil {
			return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
		}
		action = parsed
	}

	// the worker evicts these pages after each sync pass
	key := cache.TxKey(p.Address, p.UserID, fmt.Sprintf("%s:%d:%d", action, p.Limit, p.Offset))
	if data, ok := s.cacheGet(ctx, key); ok {
		return json.RawMessage(data), nil
	}

	txs, err := s.store.ListTransactions(ctx, p.Address, p.UserID, action, p.Limit, p.Offset)
	if err != nil {
		return nil, internalError(err)
	}
	total, err := s.store.CountTransactions(ctx, p.Address, p.UserID, action)
	if err != nil {
		return nil, internalError(err)
	}

	if txs == nil {
		txs = []*chain.WalletTransaction{}
	}
	result := map[string]any{"transactions": txs, "total": total}
	s.cachePut(ctx, key, result, s.cfg.TxTTL)
	return result, nil
}
