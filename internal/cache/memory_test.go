package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemorySetGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, ok, _ := m.Get(ctx, "missing"); ok {
		t.Error("Get on empty cache should miss")
	}

	if err := m.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	v, ok, err := m.Get(ctx, "k")
	if err != nil || !ok || string(v) != "v" {
		t.Errorf("Get() = %s, %v, %v", v, ok, err)
	}

	has, _ := m.Has(ctx, "k")
	if !has {
		t.Error("Has() = false after Set")
	}
}

func TestMemoryTTL(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	m.Set(ctx, "short", []byte("x"), 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	if _, ok, _ := m.Get(ctx, "short"); ok {
		t.Error("expired entry should miss")
	}
}

func TestMemoryDeletePattern(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	m.Set(ctx, TxKey("addr1a", "u1", "1"), []byte("p1"), 0)
	m.Set(ctx, TxKey("addr1a", "u1", "2"), []byte("p2"), 0)
	m.Set(ctx, TxKey("addr1b", "u1", "1"), []byte("p1"), 0)
	m.Set(ctx, WalletKey("addr1a", "u1"), []byte("w"), 0)

	if err := m.DeletePattern(ctx, TxPattern("addr1a")); err != nil {
		t.Fatalf("DeletePattern() error = %v", err)
	}

	if _, ok, _ := m.Get(ctx, TxKey("addr1a", "u1", "1")); ok {
		t.Error("tx page for addr1a should be evicted")
	}
	if _, ok, _ := m.Get(ctx, TxKey("addr1b", "u1", "1")); !ok {
		t.Error("tx page for addr1b should survive")
	}
	if _, ok, _ := m.Get(ctx, WalletKey("addr1a", "u1")); !ok {
		t.Error("wallet key should survive tx pattern delete")
	}
}

func TestMemoryMGetMSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	err := m.MSet(ctx, map[string][]byte{"a": []byte("1"), "b": []byte("2")}, 0)
	if err != nil {
		t.Fatalf("MSet() error = %v", err)
	}

	got, err := m.MGet(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("MGet() error = %v", err)
	}
	if len(got) != 2 || string(got["a"]) != "1" || string(got["b"]) != "2" {
		t.Errorf("MGet() = %v", got)
	}
}

func TestMemoryClear(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Set(ctx, "k", []byte("v"), 0)

	if err := m.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Error("Clear should remove all entries")
	}
}
