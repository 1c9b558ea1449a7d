package infra

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock for TTL tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
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

func TestNewCache(t *testing.T) {
	c := NewCache[string](100)
	defer c.Close()

	if c == nil {
		t.Fatal("NewCache returned nil")
	}
	if c.maxEntries != 100 {
		t.Errorf("expected maxEntries=100, got %d", c.maxEntries)
	}
}

func TestNewCache_DefaultMaxEntries(t *testing.T) {
	c := NewCache[string](0)
	defer c.Close()

	if c.maxEntries != DefaultMaxCacheEntries {
		t.Errorf("expected maxEntries=%d for 0, got %d", DefaultMaxCacheEntries, c.maxEntries)
	}

	c2 := NewCache[string](-1)
	defer c2.Close()

	if c2.maxEntries != DefaultMaxCacheEntries {
		t.Errorf("expected maxEntries=%d for -1, got %d", DefaultMaxCacheEntries, c2.maxEntries)
	}
}

func TestCache_SetAndGet(t *testing.T) {
	c := NewCache[string](100)
	defer c.Close()

	c.Set("DE123456789", "valid", 5*time.Minute)

	got, ok := c.Get("DE123456789")
	if !ok {
		t.Fatal("expected to find DE123456789")
	}
	if got != "valid" {
		t.Errorf("expected 'valid', got %q", got)
	}
}

func TestCache_Get_NotFound(t *testing.T) {
	c := NewCache[int](100)
	defer c.Close()

	got, ok := c.Get("nonexistent")
	if ok {
		t.Error("expected ok=false for nonexistent key")
	}
	if got != 0 {
		t.Errorf("expected zero value, got %d", got)
	}
}

func TestCache_Get_Expired(t *testing.T) {
	clock := newFakeClock()
	var evicted []EvictReason
	c := NewCache[string](100,
		WithClock(clock.Now),
		WithCleanupInterval(0),
		WithEvictCallback(func(_ string, reason EvictReason) { evicted = append(evicted, reason) }),
	)
	defer c.Close()

	c.Set("key", "value", time.Minute)
	clock.Advance(time.Minute)

	if _, ok := c.Get("key"); ok {
		t.Error("expected expired entry to be a miss")
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry to be removed, Len = %d", c.Len())
	}
	if len(evicted) != 1 || evicted[0] != EvictExpired {
		t.Errorf("evictions = %v, want [expired]", evicted)
	}
}

func TestCache_Set_UpdateRenewsTTL(t *testing.T) {
	clock := newFakeClock()
	c := NewCache[string](100, WithClock(clock.Now), WithCleanupInterval(0))
	defer c.Close()

	c.Set("key", "v1", time.Minute)
	clock.Advance(50 * time.Second)
	c.Set("key", "v2", time.Minute)
	clock.Advance(50 * time.Second)

	got, ok := c.Get("key")
	if !ok {
		t.Fatal("expected renewed entry to be present")
	}
	if got != "v2" {
		t.Errorf("expected 'v2', got %q", got)
	}
	if c.Len() != 1 {
		t.Errorf("expected Len=1 after update, got %d", c.Len())
	}
}

func TestCache_LRUEviction(t *testing.T) {
	var evictedKeys []string
	c := NewCache[int](3, WithEvictCallback(func(key string, reason EvictReason) {
		if reason == EvictCapacity {
			evictedKeys = append(evictedKeys, key)
		}
	}))
	defer c.Close()

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Set("c", 3, time.Minute)

	// Touch "a" so "b" becomes least recently used.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a")
	}
	c.Set("d", 4, time.Minute)

	if c.Len() != 3 {
		t.Errorf("expected Len=3, got %d", c.Len())
	}
	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("expected %s to remain", k)
		}
	}
	if len(evictedKeys) != 1 || evictedKeys[0] != "b" {
		t.Errorf("evicted = %v, want [b]", evictedKeys)
	}
}

func TestCache_Sweep(t *testing.T) {
	clock := newFakeClock()
	c := NewCache[string](100, WithClock(clock.Now), WithCleanupInterval(0))
	defer c.Close()

	c.Set("short", "x", time.Second)
	c.Set("long", "y", time.Hour)
	clock.Advance(time.Minute)

	if n := c.Sweep(); n != 1 {
		t.Errorf("Sweep removed %d, want 1", n)
	}
	if c.Len() != 1 {
		t.Errorf("expected Len=1, got %d", c.Len())
	}
}

func TestCache_Close(t *testing.T) {
	c := NewCache[string](10)
	c.Close()
	c.Close()
}

func TestCache_ConcurrencySafety(t *testing.T) {
	c := NewCache[int](50)
	defer c.Close()

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := range 200 {
				key := fmt.Sprintf("k%d", (g*200+i)%80)
				c.Set(key, i, time.Minute)
				c.Get(key)
				if i%10 == 0 {
					c.Sweep()
				}
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 50 {
		t.Errorf("cache exceeded capacity: %d", c.Len())
	}
}
