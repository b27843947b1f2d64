// Package indexer provides the HTTP client for the upstream Cardano chain
// indexer. All methods are read-only.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adawatch/adasync/internal/chain"
	"github.com/adawatch/adasync/pkg/logging"
)

// Common errors.
var (
	ErrNotFound    = errors.New("not found")
	ErrRateLimited = errors.New("rate limited")
)

// Client talks to a Blockfrost-compatible chain indexer.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	pageSize   int
	batchSize  int
	batchDelay time.Duration
	log        *logging.Logger
}

// Config holds indexer client configuration.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	PageSize   int
	BatchSize  int           // sub-batch size for metadata fetches
	BatchDelay time.Duration // inter-batch sleep for metadata fetches
	Logger     *logging.Logger
}

// New creates a new indexer client.
func New(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	pageSize := cfg.PageSize
	if pageSize == 0 {
		pageSize = 100 // server max
	}
	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = 10
	}
	batchDelay := cfg.BatchDelay
	if batchDelay == 0 {
		batchDelay = 100 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetDefault().Component("indexer")
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		pageSize:   pageSize,
		batchSize:  batchSize,
		batchDelay: batchDelay,
		log:        logger,
	}
}

// get performs a GET request and decodes the JSON response. A single retry
// is attempted on 429, honoring the Retry-After hint when present.
func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	for attempt := 0; ; attempt++ {
		err := c.getOnce(ctx, path, result)
		if err == nil {
			return nil
		}

		var rl *rateLimitError
		if errors.As(err, &rl) && attempt == 0 {
			wait := rl.retryAfter
			if wait <= 0 {
				wait = time.Second
			}
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return err
	}
}

type rateLimitError struct {
	retryAfter time.Duration
}

func (e *rateLimitError) Error() string { return ErrRateLimited.Error() }
func (e *rateLimitError) Unwrap() error { return ErrRateLimited }

func (c *Client) getOnce(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("project_id", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		var retryAfter time.Duration
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return &rateLimitError{retryAfter: retryAfter}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// CurrentBlockHeight returns the chain tip height.
func (c *Client) CurrentBlockHeight(ctx context.Context) (int64, error) {
	var result struct {
		Height int64 `json:"height"`
	}
	if err := c.get(ctx, "/blocks/latest", &result); err != nil {
		return 0, err
	}
	return result.Height, nil
}

// addressInfo is the indexer's address summary payload.
type addressInfo struct {
	Address string              `json:"address"`
	Amounts []chain.TokenAmount `json:"amount"`
}

// FetchAddressBalance returns the address's lovelace balance as a base-unit
// string. An unknown address is a zero balance, not an error.
func (c *Client) FetchAddressBalance(ctx context.Context, address string) (string, error) {
	var result addressInfo
	if err := c.get(ctx, "/addresses/"+address, &result); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "0", nil
		}
		return "", err
	}

	for _, a := range result.Amounts {
		if a.Unit == chain.LovelaceUnit {
			return a.Quantity, nil
		}
	}
	return "0", nil
}

// AddressExists reports whether the indexer knows the address.
func (c *Client) AddressExists(ctx context.Context, address string) (bool, error) {
	var result addressInfo
	if err := c.get(ctx, "/addresses/"+address, &result); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// UTXO is one unspent output of an address.
type UTXO struct {
	TxHash      string              `json:"tx_hash"`
	OutputIndex int                 `json:"output_index"`
	Amounts     []chain.TokenAmount `json:"amount"`
	Block       string              `json:"block"`
	DataHash    string              `json:"data_hash,omitempty"`
}

// FetchAddressUTXOs returns the unspent outputs of an address.
func (c *Client) FetchAddressUTXOs(ctx context.Context, address string) ([]UTXO, error) {
	var result []UTXO
	if err := c.get(ctx, "/addresses/"+address+"/utxos", &result); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return result, nil
}

// txDetail is the indexer's transaction payload.
type txDetail struct {
	Hash            string `json:"hash"`
	Block           string `json:"block"`
	BlockHeight     int64  `json:"block_height"`
	BlockTime       int64  `json:"block_time"`
	Slot            int64  `json:"slot"`
	Fees            string `json:"fees"`
	WithdrawalCount int    `json:"withdrawal_count"`
}

// txUTXOs is the indexer's resolved input/output payload.
type txUTXOs struct {
	Inputs []struct {
		Address     string              `json:"address"`
		Amounts     []chain.TokenAmount `json:"amount"`
		TxHash      string              `json:"tx_hash"`
		OutputIndex int                 `json:"output_index"`
		DataHash    string              `json:"data_hash"`
		Collateral  bool                `json:"collateral"`
		Reference   bool                `json:"reference"`
	} `json:"inputs"`
	Outputs []struct {
		Address     string              `json:"address"`
		Amounts     []chain.TokenAmount `json:"amount"`
		OutputIndex int                 `json:"output_index"`
		DataHash    string              `json:"data_hash"`
		Collateral  bool                `json:"collateral"`
	} `json:"outputs"`
}

type txWithdrawal struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// FetchTxDetail returns the fully hydrated transaction: detail, resolved
// inputs/outputs (collateral and reference entries excluded), and stake
// withdrawals.
func (c *Client) FetchTxDetail(ctx context.Context, hash string) (*chain.RawTransaction, error) {
	var detail txDetail
	if err := c.get(ctx, "/txs/"+hash, &detail); err != nil {
		return nil, fmt.Errorf("failed to fetch tx %s: %w", hash, err)
	}

	var utxos txUTXOs
	if err := c.get(ctx, "/txs/"+hash+"/utxos", &utxos); err != nil {
		return nil, fmt.Errorf("failed to fetch tx utxos %s: %w", hash, err)
	}

	raw := &chain.RawTransaction{
		Hash:        detail.Hash,
		BlockHash:   detail.Block,
		BlockHeight: detail.BlockHeight,
		BlockTime:   detail.BlockTime,
		Slot:        detail.Slot,
		Fees:        detail.Fees,
	}

	for _, in := range utxos.Inputs {
		if in.Collateral || in.Reference {
			continue
		}
		raw.Inputs = append(raw.Inputs, chain.TxInput{
			Address:     in.Address,
			Amounts:     in.Amounts,
			RefTxHash:   in.TxHash,
			OutputIndex: in.OutputIndex,
			DataHash:    in.DataHash,
		})
	}
	for _, out := range utxos.Outputs {
		if out.Collateral {
			continue
		}
		raw.Outputs = append(raw.Outputs, chain.TxOutput{
			Address:     out.Address,
			Amounts:     out.Amounts,
			OutputIndex: out.OutputIndex,
			DataHash:    out.DataHash,
		})
	}

	if detail.WithdrawalCount > 0 {
		var withdrawals []txWithdrawal
		if err := c.get(ctx, "/txs/"+hash+"/withdrawals", &withdrawals); err != nil {
			return nil, fmt.Errorf("failed to fetch tx withdrawals %s: %w", hash, err)
		}
		for _, w := range withdrawals {
			raw.Withdrawals = append(raw.Withdrawals, chain.Withdrawal{
				Address:    w.Address,
				AmountBase: w.Amount,
			})
		}
	}

	return raw, nil
}
