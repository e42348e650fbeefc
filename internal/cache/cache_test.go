package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryGetSet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := NewMemory(true)

	if _, ok, _ := c.Get(ctx, "geo:tokyo"); ok {
		t.Fatal("expected miss on empty cache")
	}
	if err := c.Set(ctx, "geo:tokyo", []byte(`{"lat":35.68}`), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	data, ok, err := c.Get(ctx, "geo:tokyo")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if string(data) != `{"lat":35.68}` {
		t.Fatalf("Get data = %s", data)
	}
}

func TestMemoryExpiryAndEvict(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2025, 1, 10, 6, 0, 0, 0, time.UTC)
	c := NewMemory(true)
	c.now = func() time.Time { return now }

	_ = c.Set(ctx, "short", []byte("a"), time.Minute)
	_ = c.Set(ctx, "long", []byte("b"), time.Hour)

	now = now.Add(2 * time.Minute)

	if _, ok, _ := c.Get(ctx, "short"); ok {
		t.Fatal("expired entry returned")
	}
	if _, ok, _ := c.Get(ctx, "long"); !ok {
		t.Fatal("live entry missing")
	}

	stats := c.Stats()
	if stats["expired_keys"] != 1 || stats["active_keys"] != 1 {
		t.Fatalf("unexpected stats %v", stats)
	}
	if n := c.Evict(); n != 1 {
		t.Fatalf("Evict() = %d, want 1", n)
	}
	if stats := c.Stats(); stats["total_keys"] != 1 {
		t.Fatalf("total_keys after evict = %v", stats["total_keys"])
	}
}

func TestMemoryDisabled(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := NewMemory(false)
	_ = c.Set(ctx, "k", []byte("v"), time.Hour)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("disabled cache returned a value")
	}
}
