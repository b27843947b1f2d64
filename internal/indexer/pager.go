package indexer

import (
	"context"
	"fmt"
)

// TxHashRef is one entry in an address's transaction listing.
type TxHashRef struct {
	TxHash      string `json:"tx_hash"`
	TxIndex     int    `json:"tx_index"`
	BlockHeight int64  `json:"block_height"`
	BlockTime   int64  `json:"block_time"`
}

// TxPager is a pull iterator over an address's transaction history.
//
// With fromBlock > 0 the indexer is walked in descending block order and
// iteration stops at the first page containing any entry at or below
// fromBlock; that page yields only the strictly-greater entries. With
// fromBlock == 0 the walk is ascending over the entire history.
//
// A pager is single-use; callers needing to restart build a new one.
type TxPager struct {
	client    *Client
	address   string
	fromBlock int64
	page      int
	done      bool
}

// ListTxHashes returns a pager over the address's transaction hashes.
func (c *Client) ListTxHashes(address string, fromBlock int64) *TxPager {
	return &TxPager{
		client:    c,
		address:   address,
		fromBlock: fromBlock,
		page:      1,
	}
}

// Next returns the next page of entries. A nil slice with nil error means
// the sequence is exhausted.
func (p *TxPager) Next(ctx context.Context) ([]TxHashRef, error) {
	if p.done {
		return nil, nil
	}

	order := "asc"
	if p.fromBlock > 0 {
		order = "desc"
	}

	path := fmt.Sprintf("/addresses/%s/transactions?page=%d&count=%d&order=%s",
		p.address, p.page, p.client.pageSize, order)

	var items []TxHashRef
	if err := p.client.get(ctx, path, &items); err != nil {
		return nil, err
	}
	p.page++

	if len(items) == 0 {
		p.done = true
		return nil, nil
	}
	if len(items) < p.client.pageSize {
		p.done = true
	}

	if p.fromBlock > 0 {
		// Descending walk: stop at the first page that reaches the
		// cursor, keeping only entries above it.
		filtered := items[:0]
		for _, it := range items {
			if it.BlockHeight <= p.fromBlock {
				p.done = true
				continue
			}
			filtered = append(filtered, it)
		}
		items = filtered
		if len(items) == 0 {
			return nil, nil
		}
	}

	return items, nil
}
