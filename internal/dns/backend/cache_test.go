package backend

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/poyrazK/godns/internal/dns/codec"
)

func miniredisAddr(t *testing.T) string {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return mr.Addr()
}

type countingBackend struct {
	calls   int
	records []codec.Record
}

func (b *countingBackend) GetAnswers(_ context.Context, _ string, _ codec.Type) (Answers, error) {
	b.calls++
	return Answers{Records: b.records, Source: "inner"}, nil
}
func (b *countingBackend) IsAuthority(string) bool   { return true }
func (b *countingBackend) RecursionAvailable() bool { return false }

func TestCacheHitAvoidsInnerCall(t *testing.T) {
	inner := &countingBackend{records: []codec.Record{
		{Name: "example.com", TTL: 3600, Content: codec.AContent{IP: net.ParseIP("1.1.1.1").To4()}},
	}}
	c, err := NewCache(inner, 10, time.Second, time.Hour, nil, nil)
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}

	if _, err := c.GetAnswers(context.Background(), "example.com", codec.TypeA); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.GetAnswers(context.Background(), "example.com", codec.TypeA); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected inner backend to be called exactly once, got %d", inner.calls)
	}
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	inner := &countingBackend{records: []codec.Record{
		{Name: "example.com", TTL: 0, Content: codec.AContent{IP: net.ParseIP("1.1.1.1").To4()}},
	}}
	// minTTL of 1ms forces near-immediate expiration even with a 0-second RR TTL.
	c, err := NewCache(inner, 10, time.Millisecond, time.Hour, nil, nil)
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}

	if _, err := c.GetAnswers(context.Background(), "example.com", codec.TypeA); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := c.GetAnswers(context.Background(), "example.com", codec.TypeA); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected expiry to force a second inner call, got %d calls", inner.calls)
	}
}

func TestCacheNegativeTTLForEmptyAnswers(t *testing.T) {
	inner := &countingBackend{}
	c, err := NewCache(inner, 10, time.Second, time.Hour, nil, nil)
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}
	if _, err := c.GetAnswers(context.Background(), "missing.example", codec.TypeA); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.GetAnswers(context.Background(), "missing.example", codec.TypeA); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected negative cache to suppress a second inner call, got %d calls", inner.calls)
	}
}

func TestCacheBoundedCapacityEvicts(t *testing.T) {
	inner := &countingBackend{records: []codec.Record{
		{Name: "x", TTL: 3600, Content: codec.AContent{IP: net.ParseIP("1.1.1.1").To4()}},
	}}
	c, err := NewCache(inner, 2, time.Second, time.Hour, nil, nil)
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}

	for i := 0; i < 10; i++ {
		domain := string(rune('a' + i))
		if _, err := c.GetAnswers(context.Background(), domain, codec.TypeA); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if c.lru.Len() > 2 {
		t.Fatalf("expected LRU to stay bounded at capacity 2, got %d entries", c.lru.Len())
	}
}

func TestCacheReadsThroughL2OnL1Miss(t *testing.T) {
	inner := &countingBackend{records: []codec.Record{
		{Name: "example.com", TTL: 3600, Content: codec.AContent{IP: net.ParseIP("1.1.1.1").To4()}},
	}}
	redis := NewRedisCache(miniredisAddr(t), "", 0)
	c, err := NewCache(inner, 10, time.Second, time.Hour, redis, nil)
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}

	if _, err := c.GetAnswers(context.Background(), "example.com", codec.TypeA); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected one inner call to populate L1 and L2, got %d", inner.calls)
	}

	// Evict from L1 only, then confirm L2 still serves the answer without
	// another inner call.
	c.lru.Remove(CacheKey("example.com", codec.TypeA))
	if _, err := c.GetAnswers(context.Background(), "example.com", codec.TypeA); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected an L2 hit to avoid a second inner call, got %d calls", inner.calls)
	}
}

func TestCacheTTLClampedToMinAndMax(t *testing.T) {
	c := &Cache{minTTL: 10 * time.Second, maxTTL: 30 * time.Second}

	if got := c.negativeOr([]codec.Record{{TTL: 1}}); got != 10*time.Second {
		t.Errorf("expected TTL clamped up to min, got %v", got)
	}
	if got := c.negativeOr([]codec.Record{{TTL: 1000}}); got != 30*time.Second {
		t.Errorf("expected TTL clamped down to max, got %v", got)
	}
	if got := c.negativeOr(nil); got != negativeCacheTTL {
		t.Errorf("expected negative cache TTL for empty answers, got %v", got)
	}
}
