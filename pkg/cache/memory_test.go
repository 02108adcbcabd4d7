package cache

import (
	"context"
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	if got := Key("alerts", "u1", 1, 20); got != "alerts_u1_1_20" {
		t.Fatalf("unexpected key %s", got)
	}
	if got := Key("alert", "abc"); got != "alert_abc" {
		t.Fatalf("unexpected key %s", got)
	}
	if got := Key("ping"); got != "ping" {
		t.Fatalf("unexpected key %s", got)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(time.Minute)
	s.SetClock(func() time.Time { return now })

	_ = s.Set(ctx, "alerts_u1_1_20", []byte("v"), 0)
	if v, ok, _ := s.Get(ctx, "alerts_u1_1_20"); !ok || string(v) != "v" {
		t.Fatalf("expected hit, got %q %v", v, ok)
	}

	now = now.Add(time.Minute)
	if _, ok, _ := s.Get(ctx, "alerts_u1_1_20"); ok {
		t.Fatalf("entry should expire at ttl")
	}
	if s.Len() != 0 {
		t.Fatalf("expired entry should be evicted on read")
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewMemoryStore(time.Minute)
	s.SetClock(func() time.Time { return now })

	_ = s.Set(ctx, "a", []byte("1"), time.Second)
	_ = s.Set(ctx, "b", []byte("2"), time.Hour)
	now = now.Add(2 * time.Second)

	if n := s.Sweep(); n != 1 {
		t.Fatalf("expected 1 swept, got %d", n)
	}
	if _, ok, _ := s.Get(ctx, "b"); !ok {
		t.Fatalf("b should survive")
	}
}

func TestMemoryStoreInvalidation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)
	_ = s.Set(ctx, Key("alerts", "u1", 1, 20), []byte("x"), 0)
	_ = s.Set(ctx, Key("active_alerts", "u1"), []byte("x"), 0)
	_ = s.Set(ctx, Key("alerts", "u2", 1, 20), []byte("x"), 0)
	_ = s.Set(ctx, Key("alert", "id1"), []byte("x"), 0)

	_ = s.InvalidateByUser(ctx, "u1")
	if s.Len() != 2 {
		t.Fatalf("expected 2 entries after user invalidation, got %d", s.Len())
	}
	_ = s.InvalidateByKey(ctx, Key("alert", "id1"))
	if _, ok, _ := s.Get(ctx, Key("alert", "id1")); ok {
		t.Fatalf("key should be gone")
	}
	_ = s.Clear(ctx)
	if s.Len() != 0 {
		t.Fatalf("clear should empty the store")
	}
}
