package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/adawatch/adasync/internal/chain"
)

// assetDetail is the indexer's asset payload.
type assetDetail struct {
	Asset     string `json:"asset"`
	PolicyID  string `json:"policy_id"`
	AssetName string `json:"asset_name"`
	Quantity  string `json:"quantity"`
	Metadata  *struct {
		Name     string `json:"name"`
		Ticker   string `json:"ticker"`
		Decimals *uint8 `json:"decimals"`
		Logo     string `json:"logo"`
	} `json:"metadata"`
	OnchainMetadata json.RawMessage `json:"onchain_metadata"`
}

// FetchTokenMetadata resolves registry metadata for a unit. A nil result
// with nil error means the indexer has no metadata for it; lovelace always
// resolves to nil without I/O.
func (c *Client) FetchTokenMetadata(ctx context.Context, unit string) (*chain.Token, error) {
	if unit == chain.LovelaceUnit {
		return nil, nil
	}

	var detail assetDetail
	if err := c.get(ctx, "/assets/"+unit, &detail); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	token := &chain.Token{
		Unit:      unit,
		PolicyID:  detail.PolicyID,
		AssetName: detail.AssetName,
		Category:  chain.CategoryFungible,
	}
	if info, ok := chain.LookupPolicy(unit); ok {
		token.Category = info.Category
	} else if detail.Quantity == "1" {
		token.Category = chain.CategoryNFT
	}

	if detail.Metadata != nil {
		token.Name = detail.Metadata.Name
		token.Ticker = detail.Metadata.Ticker
		token.Logo = detail.Metadata.Logo
		if detail.Metadata.Decimals != nil {
			token.Decimals = *detail.Metadata.Decimals
		}
	}
	if len(detail.OnchainMetadata) > 0 && string(detail.OnchainMetadata) != "null" {
		token.Metadata = string(detail.OnchainMetadata)
	}
	if detail.Metadata == nil && token.Metadata == "" {
		// Asset is known but carries no metadata at all.
		return nil, nil
	}

	return token, nil
}

// FetchTokenMetadataBatch resolves metadata for many units, processing
// sub-batches with a short delay in between to respect upstream rate
// limits. Units the indexer cannot resolve are absent from the result.
func (c *Client) FetchTokenMetadataBatch(ctx context.Context, units []string) (map[string]*chain.Token, error) {
	result := make(map[string]*chain.Token, len(units))

	for start := 0; start < len(units); start += c.batchSize {
		end := start + c.batchSize
		if end > len(units) {
			end = len(units)
		}

		for _, unit := range units[start:end] {
			token, err := c.FetchTokenMetadata(ctx, unit)
			if err != nil {
				c.log.Warn("failed to fetch token metadata",
					"unit", shortUnit(unit), "error", err)
				continue
			}
			if token != nil {
				result[unit] = token
			}
		}

		if end < len(units) {
			select {
			case <-time.After(c.batchDelay):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
	}

	return result, nil
}

func shortUnit(unit string) string {
	if len(unit) <= 16 {
		return unit
	}
	return unit[:16] + ".." + strconv.Itoa(len(unit))
}
