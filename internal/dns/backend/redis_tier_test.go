package backend

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestRedisCacheSetAndGet(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to run miniredis: %v", err)
	}
	defer mr.Close()

	cache := NewRedisCache(mr.Addr(), "", 0)
	ctx := context.Background()

	key := "example.com:A"
	data := []byte{1, 2, 3, 4}
	cache.Set(ctx, key, data, 10*time.Second)

	val, found := cache.Get(ctx, key)
	if !found {
		t.Fatal("expected key to be found in redis")
	}
	if string(val) != string(data) {
		t.Fatalf("expected %v, got %v", data, val)
	}

	if _, found := cache.Get(ctx, "nonexistent"); found {
		t.Fatal("expected a missing key to report not found")
	}
}

func TestRedisCachePing(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to run miniredis: %v", err)
	}
	defer mr.Close()

	cache := NewRedisCache(mr.Addr(), "", 0)
	if err := cache.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}

func TestRedisCacheInvalidatePublishes(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to run miniredis: %v", err)
	}
	defer mr.Close()

	cache := NewRedisCache(mr.Addr(), "", 0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	received := cache.Subscribe(ctx)
	// Allow the subscription to register before publishing.
	time.Sleep(50 * time.Millisecond)

	if err := cache.Invalidate(ctx, "example.com:A"); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}

	select {
	case msg := <-received:
		if msg.Payload != "example.com:A" {
			t.Fatalf("expected invalidation payload to match the key, got %q", msg.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an invalidation message within the timeout")
	}
}
