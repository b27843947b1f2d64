// Package token resolves asset metadata through a tiered lookup: an
// in-process LRU, the shared cache, the local database, and finally the
// indexer. Unknown assets always resolve to a usable synthetic record, so
// parsing never blocks on metadata.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/adawatch/adasync/internal/cache"
	"github.com/adawatch/adasync/internal/chain"
	"github.com/adawatch/adasync/internal/storage"
	"github.com/adawatch/adasync/pkg/helpers"
	"github.com/adawatch/adasync/pkg/logging"
)

const (
	defaultLRUSize   = 2048
	defaultSharedTTL = 15 * time.Minute
)

// Fetcher fetches token metadata from the indexer.
type Fetcher interface {
	FetchTokenMetadata(ctx context.Context, unit string) (*chain.Token, error)
	FetchTokenMetadataBatch(ctx context.Context, units []string) (map[string]*chain.Token, error)
}

// Store is the database capability the registry needs.
type Store interface {
	GetToken(ctx context.Context, unit string) (*chain.Token, error)
	GetTokens(ctx context.Context, units []string) (map[string]*chain.Token, error)
	UpsertToken(ctx context.Context, t *chain.Token) error
}

// Registry is the tiered token metadata resolver. Safe for concurrent use.
type Registry struct {
	local     *lru.Cache[string, *chain.Token]
	shared    cache.Store // may be nil
	sharedTTL time.Duration
	store     Store
	fetcher   Fetcher
	log       *logging.Logger
}

// New creates a registry. shared may be nil to disable the shared tier;
// sharedTTL <= 0 uses the default.
func New(store Store, fetcher Fetcher, shared cache.Store, sharedTTL time.Duration, log *logging.Logger) (*Registry, error) {
	local, err := lru.New[string, *chain.Token](defaultLRUSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create token LRU: %w", err)
	}
	if sharedTTL <= 0 {
		sharedTTL = defaultSharedTTL
	}
	return &Registry{
		local:     local,
		shared:    shared,
		sharedTTL: sharedTTL,
		store:     store,
		fetcher:   fetcher,
		log:       log.Component("token-registry"),
	}, nil
}

// Get resolves metadata for one unit. It never returns a nil token on a nil
// error: assets the indexer does not know get a synthetic record.
func (r *Registry) Get(ctx context.Context, unit string) (*chain.Token, error) {
	if unit == chain.LovelaceUnit {
		return chain.NativeADA(), nil
	}

	if tok, ok := r.local.Get(unit); ok {
		return tok, nil
	}

	if tok := r.sharedGet(ctx, unit); tok != nil {
		r.local.Add(unit, tok)
		return tok, nil
	}

	tok, err := r.store.GetToken(ctx, unit)
	if err == nil {
		r.cacheToken(ctx, tok)
		return tok, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	fetched, err := r.fetcher.FetchTokenMetadata(ctx, unit)
	if err != nil {
		r.log.Warn("token fetch failed, using synthetic record", "unit", helpers.ShortHash(unit), "error", err)
		tok = Synthetic(unit)
		r.local.Add(unit, tok)
		return tok, nil
	}
	if fetched == nil {
		tok = Synthetic(unit)
		r.local.Add(unit, tok)
		return tok, nil
	}

	r.persist(ctx, fetched)
	return fetched, nil
}

// GetMany resolves metadata for a set of units, deduplicated. Every
// requested unit is present in the result.
func (r *Registry) GetMany(ctx context.Context, units []string) (map[string]*chain.Token, error) {
	result := make(map[string]*chain.Token, len(units))
	seen := make(map[string]struct{}, len(units))

	var misses []string
	for _, unit := range units {
		if _, dup := seen[unit]; dup {
			continue
		}
		seen[unit] = struct{}{}
		if unit == chain.LovelaceUnit {
			result[unit] = chain.NativeADA()
			continue
		}
		if tok, ok := r.local.Get(unit); ok {
			result[unit] = tok
			continue
		}
		misses = append(misses, unit)
	}
	if len(misses) == 0 {
		return result, nil
	}

	misses = r.sharedGetMany(ctx, misses, result)
	if len(misses) == 0 {
		return result, nil
	}

	stored, err := r.store.GetTokens(ctx, misses)
	if err != nil {
		return nil, err
	}
	remaining := misses[:0]
	for _, unit := range misses {
		if tok, ok := stored[unit]; ok {
			r.cacheToken(ctx, tok)
			result[unit] = tok
		} else {
			remaining = append(remaining, unit)
		}
	}
	if len(remaining) == 0 {
		return result, nil
	}

	fetched, err := r.fetcher.FetchTokenMetadataBatch(ctx, remaining)
	if err != nil {
		r.log.Warn("token batch fetch failed", "units", len(remaining), "error", err)
		fetched = nil
	}
	for _, unit := range remaining {
		if tok := fetched[unit]; tok != nil {
			r.persist(ctx, tok)
			result[unit] = tok
			continue
		}
		tok := Synthetic(unit)
		r.local.Add(unit, tok)
		result[unit] = tok
	}
	return result, nil
}

// RegisterDiscovered records a token seen on-chain with a category implied
// by context the indexer cannot provide, such as a qToken observed in a
// lending flow. Metadata already on record wins except for the category.
func (r *Registry) RegisterDiscovered(ctx context.Context, unit string, category chain.TokenCategory) error {
	if unit == chain.LovelaceUnit {
		return nil
	}

	tok, err := r.Get(ctx, unit)
	if err != nil {
		return err
	}
	if tok.Category == category {
		return nil
	}

	updated := *tok
	updated.Category = category
	r.log.Debug("reclassifying discovered token",
		"unit", helpers.ShortHash(unit), "from", tok.Category, "to", category)
	r.persist(ctx, &updated)
	return nil
}

// Synthetic builds the fallback record for a unit with no known metadata.
// It is cached in process but never written to the database, so a later
// registry entry can still take over.
func Synthetic(unit string) *chain.Token {
	policyID, assetName := chain.SplitUnit(unit)

	label := assetName
	if label == "" {
		label = unit
	}
	if len(label) > 8 {
		label = label[:8]
	}

	category := chain.CategoryFungible
	if info, ok := chain.LookupPolicy(unit); ok {
		category = info.Category
	}

	return &chain.Token{
		Unit:      unit,
		PolicyID:  policyID,
		AssetName: assetName,
		Name:      "Token " + label,
		Ticker:    helpers.UpperHex(label),
		Decimals:  0,
		Category:  category,
	}
}

func (r *Registry) persist(ctx context.Context, tok *chain.Token) {
	if err := r.store.UpsertToken(ctx, tok); err != nil {
		r.log.Warn("failed to persist token", "unit", helpers.ShortHash(tok.Unit), "error", err)
	}
	r.cacheToken(ctx, tok)
}

func (r *Registry) cacheToken(ctx context.Context, tok *chain.Token) {
	r.local.Add(tok.Unit, tok)
	if r.shared == nil {
		return
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return
	}
	if err := r.shared.Set(ctx, cache.TokenKey(tok.Unit), data, r.sharedTTL); err != nil {
		r.log.Debug("shared cache set failed", "unit", helpers.ShortHash(tok.Unit), "error", err)
	}
}

func (r *Registry) sharedGet(ctx context.Context, unit string) *chain.Token {
	if r.shared == nil {
		return nil
	}
	data, ok, err := r.shared.Get(ctx, cache.TokenKey(unit))
	if err != nil {
		r.log.Debug("shared cache get failed", "unit", helpers.ShortHash(unit), "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	var tok chain.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil
	}
	return &tok
}

// sharedGetMany resolves what it can from the shared cache into result and
// returns the units still missing.
func (r *Registry) sharedGetMany(ctx context.Context, units []string, result map[string]*chain.Token) []string {
	if r.shared == nil {
		return units
	}

	keys := make([]string, len(units))
	for i, unit := range units {
		keys[i] = cache.TokenKey(unit)
	}
	cached, err := r.shared.MGet(ctx, keys)
	if err != nil {
		r.log.Debug("shared cache mget failed", "error", err)
		return units
	}

	missing := units[:0]
	for i, unit := range units {
		data, ok := cached[keys[i]]
		if !ok {
			missing = append(missing, unit)
			continue
		}
		var tok chain.Token
		if err := json.Unmarshal(data, &tok); err != nil {
			missing = append(missing, unit)
			continue
		}
		r.local.Add(unit, &tok)
		result[unit] = &tok
	}
	return missing
}
