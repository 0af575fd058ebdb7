package cache

import (
	"context"
	"testing"
	"time"

	"tooltally/internal/pkg/metrics"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	metrics.InitMetrics()

	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(s.Close)

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() {
		if err := rdb.Close(); err != nil {
			t.Fatalf("close redis: %v", err)
		}
	})

	return New(rdb, time.Minute), s
}

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestCache_RoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	key := Key("products", "makita", "1", "24")

	var missed payload
	hit, err := c.Get(ctx, key, &missed)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if hit {
		t.Fatal("expected a miss on empty cache")
	}

	if err := c.Set(ctx, key, payload{Name: "makita", Count: 3}); err != nil {
		t.Fatalf("set: %v", err)
	}

	var got payload
	hit, err = c.Get(ctx, key, &got)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !hit {
		t.Fatal("expected a hit after set")
	}
	if got.Name != "makita" || got.Count != 3 {
		t.Errorf("got %+v", got)
	}
}

func TestCache_ExpiredEntryMisses(t *testing.T) {
	c, s := newTestCache(t)
	ctx := context.Background()
	key := Key("categories")

	if err := c.Set(ctx, key, []string{"Combi Drills"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	s.FastForward(2 * time.Minute)

	var got []string
	hit, err := c.Get(ctx, key, &got)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if hit {
		t.Fatal("expected a miss after ttl expiry")
	}
}

func TestCache_CorruptEntryTreatedAsMiss(t *testing.T) {
	c, s := newTestCache(t)
	ctx := context.Background()
	key := Key("vendors")
	s.Set(key, "{not json")

	var got []string
	hit, err := c.Get(ctx, key, &got)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if hit {
		t.Fatal("corrupt payload must be treated as a miss")
	}
}

func TestCache_NilClientNoop(t *testing.T) {
	c := New(nil, time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, Key("x"), payload{}); err != nil {
		t.Fatalf("set on nil client: %v", err)
	}
	var got payload
	hit, err := c.Get(ctx, Key("x"), &got)
	if err != nil || hit {
		t.Fatalf("get on nil client = (%v, %v), want miss without error", hit, err)
	}
}

func TestKey_LongParamsHashed(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	k := Key("products", string(long))
	if len(k) > len(keyPrefix)+64 {
		t.Errorf("long key not hashed: %d chars", len(k))
	}
	if k == Key("products", string(long)+"b") {
		t.Error("distinct params must produce distinct keys")
	}
}
