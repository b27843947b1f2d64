// Package cache defines the advisory key-value cache contract used by the
// token registry and the sync worker. Cache errors must never change
// behavior: callers log and continue, and every path is correct with the
// cache disabled entirely.
package cache

import (
	"context"
	"time"
)

// Store is the generic KV cache capability. Implementations must be safe
// for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeletePattern removes all keys matching a glob-style pattern where
	// '*' matches any suffix (e.g. "tx:addr1xyz:*").
	DeletePattern(ctx context.Context, pattern string) error
	Has(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context) error
	MGet(ctx context.Context, keys []string) (map[string][]byte, error)
	MSet(ctx context.Context, values map[string][]byte, ttl time.Duration) error
}

// Key builders for the logical caches.

// TokenKey is the shared-cache key for token metadata.
func TokenKey(unit string) string { return "token:" + unit }

// WalletKey is the shared-cache key for one owner's wallet snapshot.
func WalletKey(address, userID string) string { return "wallet:" + address + ":" + userID }

// TxKey is the shared-cache key for one page of an owner's transaction
// listing.
func TxKey(address, userID, page string) string {
	return "tx:" + address + ":" + userID + ":" + page
}

// TxPattern matches every cached transaction page for a wallet.
func TxPattern(address string) string { return "tx:" + address + ":*" }
