package cache

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache[V any](clock *fakeClock, opts ...Option[V]) *Cache[V] {
	opts = append([]Option[V]{WithClock[V](clock.Now)}, opts...)
	return New(opts...)
}

func TestCacheBasic(t *testing.T) {
	c := New[string]()
	defer c.Stop()

	// Initially empty
	if _, found := c.Get("test"); found {
		t.Error("expected cache miss for non-existent key")
	}

	c.Set("test", "value", time.Minute)

	got, found := c.Get("test")
	if !found {
		t.Fatal("expected cache hit")
	}
	if got != "value" {
		t.Errorf("unexpected value: %q", got)
	}
}

func TestCacheTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	c := newTestCache[int](clock)
	defer c.Stop()

	c.Set("short", 1, 50*time.Millisecond)

	if _, found := c.Get("short"); !found {
		t.Error("expected cache hit immediately after set")
	}

	clock.Advance(100 * time.Millisecond)

	if _, found := c.Get("short"); found {
		t.Error("expected cache miss after TTL expired")
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry to be removed on read, got %d entries", c.Len())
	}
}

func TestCacheTouch(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	c := newTestCache[int](clock)
	defer c.Stop()

	c.Set("k", 1, time.Minute)
	clock.Advance(50 * time.Second)
	if !c.Touch("k", time.Minute) {
		t.Fatal("expected touch of live entry to succeed")
	}
	clock.Advance(50 * time.Second)
	if _, found := c.Get("k"); !found {
		t.Error("expected touched entry to survive past its original TTL")
	}

	if c.Touch("missing", time.Minute) {
		t.Error("expected touch of missing entry to fail")
	}
}

func TestCacheGetOrSet(t *testing.T) {
	c := New[*int]()
	defer c.Stop()

	calls := 0
	create := func() *int {
		calls++
		n := calls
		return &n
	}

	first := c.GetOrSet("k", time.Minute, create)
	second := c.GetOrSet("k", time.Minute, create)
	if first != second {
		t.Error("expected the same value for the same key")
	}
	if calls != 1 {
		t.Errorf("expected create to run once, ran %d times", calls)
	}
}

func TestCacheInvalidate(t *testing.T) {
	c := New[int]()
	defer c.Stop()

	c.Set("test1", 1, time.Minute)
	c.Set("test2", 2, time.Minute)

	c.Invalidate("test1")

	if _, found := c.Get("test1"); found {
		t.Error("expected test1 to be invalidated")
	}
	if _, found := c.Get("test2"); !found {
		t.Error("expected test2 to still exist")
	}

	c.InvalidateAll()
	if c.Len() != 0 {
		t.Errorf("expected empty cache after InvalidateAll, got %d", c.Len())
	}
}

func TestCacheCleanupEvicts(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	var evicted []string
	c := newTestCache(clock, WithOnEvict(func(key string, _ int) {
		evicted = append(evicted, key)
	}))
	defer c.Stop()

	c.Set("old", 1, time.Second)
	c.Set("new", 2, time.Hour)
	clock.Advance(2 * time.Second)

	c.Cleanup()

	if c.Len() != 1 {
		t.Errorf("expected 1 entry after cleanup, got %d", c.Len())
	}
	if len(evicted) != 1 || evicted[0] != "old" {
		t.Errorf("expected [old] evicted, got %v", evicted)
	}
}

func TestCacheStopIdempotent(t *testing.T) {
	c := New[int]()
	c.Stop()
	c.Stop()
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := New[int]()
	defer c.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := string(rune('a' + id))
				c.Set(key, j, time.Minute)
				c.Get(key)
				c.Touch(key, time.Minute)
			}
		}(i)
	}
	wg.Wait()
}

func TestCacheRangeSkipsExpired(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	c := newTestCache[int](clock)
	defer c.Stop()

	c.Set("a", 1, time.Second)
	c.Set("b", 2, time.Hour)
	clock.Advance(2 * time.Second)

	seen := map[string]int{}
	c.Range(func(key string, v int) bool {
		seen[key] = v
		return true
	})
	if len(seen) != 1 || seen["b"] != 2 {
		t.Errorf("expected only b, got %v", seen)
	}
}

func TestCacheTake(t *testing.T) {
	c := New[string]()
	defer c.Stop()

	c.Set("k", "v", time.Minute)
	v, ok := c.Take("k")
	if !ok || v != "v" {
		t.Fatalf("Take = %q, %v", v, ok)
	}
	if _, ok := c.Take("k"); ok {
		t.Error("expected second Take to miss")
	}
}
