package bigcache

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestProviderRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, err := New(ctx, Config{LifeWindow: time.Minute, Shards: 16})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = p.Close(ctx) })

	if _, ok, err := p.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("miss: ok=%v err=%v", ok, err)
	}
	if ok, err := p.Set(ctx, "k", []byte("v"), 1, time.Second); !ok || err != nil {
		t.Fatalf("set: ok=%v err=%v", ok, err)
	}
	got, ok, err := p.Get(ctx, "k")
	if !ok || err != nil || !bytes.Equal(got, []byte("v")) {
		t.Fatalf("get: %q ok=%v err=%v", got, ok, err)
	}
	if p.Len() != 1 {
		t.Fatalf("len=%d", p.Len())
	}
	if err := p.Del(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if err := p.Del(ctx, "k"); err != nil {
		t.Fatalf("deleting a missing key: %v", err)
	}
	if _, ok, _ := p.Get(ctx, "k"); ok {
		t.Fatal("deleted key still present")
	}
}

func TestNewValidatesLifeWindow(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected error without LifeWindow")
	}
}
