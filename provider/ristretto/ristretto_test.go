package ristretto

import (
	"context"
	"testing"
)

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for zero config")
	}
}

func TestProviderSetIsVisible(t *testing.T) {
	ctx := context.Background()
	p, err := New(Config{NumCounters: 1000, MaxCost: 1 << 20, BufferItems: 64})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = p.Close(ctx) })

	ok, err := p.Set(ctx, "k", []byte("payload"), 7, 0)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !ok {
		t.Skip("admission refused the first write; nothing to check")
	}
	got, hit, err := p.Get(ctx, "k")
	if err != nil || !hit || string(got) != "payload" {
		t.Fatalf("Get: got=%q hit=%v err=%v", got, hit, err)
	}
	_ = p.Del(ctx, "k")
	if _, hit, _ := p.Get(ctx, "k"); hit {
		t.Fatalf("expected miss after Del")
	}
}
